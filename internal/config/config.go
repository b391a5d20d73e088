package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mehmetymw/ddb2es/internal/types"
)

const (
	DefaultIndexName    = "avai_index"
	DefaultDocType      = "_doc"
	DefaultService      = "es"
	DefaultKeyAttribute = "ROWID"
)

type IndexConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Name      string `yaml:"name"`
	DocType   string `yaml:"doc_type"`
	Service   string `yaml:"service"`
	Region    string `yaml:"region"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type KafkaSource struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type SourceConfig struct {
	Type         string      `yaml:"type"`
	KeyAttribute string      `yaml:"key_attribute"`
	Kafka        KafkaSource `yaml:"kafka"`
}

type Batching struct {
	BatchSize       int `yaml:"batch_size"`
	FlushIntervalMs int `yaml:"flush_interval_ms"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Index    IndexConfig  `yaml:"index"`
	Source   SourceConfig `yaml:"source"`
	Batching Batching     `yaml:"batching"`
	HTTP     HTTPConfig   `yaml:"http"`
}

// LoadFromEnv reads the optional YAML file at CONFIG_PATH, then applies
// ES_DOMAIN and defaults. A missing endpoint is a configuration error.
func LoadFromEnv() (Config, error) {
	var c Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
		}
	}
	if domain := os.Getenv("ES_DOMAIN"); domain != "" {
		c.Index.Endpoint = domain
	}

	if c.Index.Endpoint == "" {
		return Config{}, fmt.Errorf("%w: ES_DOMAIN is not set", types.ErrConfiguration)
	}
	endpoint, err := NormalizeEndpoint(c.Index.Endpoint)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	c.Index.Endpoint = endpoint

	// Apply defaults
	if c.Index.Name == "" {
		c.Index.Name = DefaultIndexName
	}
	if c.Index.DocType == "" {
		c.Index.DocType = DefaultDocType
	}
	if c.Index.Service == "" {
		c.Index.Service = DefaultService
	}
	if c.Index.TimeoutMs <= 0 {
		c.Index.TimeoutMs = 10000
	}
	if c.Source.Type == "" {
		c.Source.Type = "lambda"
	}
	if c.Source.KeyAttribute == "" {
		c.Source.KeyAttribute = DefaultKeyAttribute
	}
	if c.Batching.BatchSize <= 0 {
		c.Batching.BatchSize = 100
	}
	if c.Batching.FlushIntervalMs <= 0 {
		c.Batching.FlushIntervalMs = 500
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}

	switch c.Source.Type {
	case "lambda":
	case "kafka":
		if len(c.Source.Kafka.Brokers) == 0 || c.Source.Kafka.Topic == "" {
			return Config{}, fmt.Errorf("%w: kafka source needs brokers and topic", types.ErrConfiguration)
		}
		if c.Source.Kafka.GroupID == "" {
			c.Source.Kafka.GroupID = "ddb2es"
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown source type %q", types.ErrConfiguration, c.Source.Type)
	}
	return c, nil
}

// NormalizeEndpoint unescapes a form-encoded host and makes it an https
// base URL without a trailing slash.
func NormalizeEndpoint(raw string) (string, error) {
	host, err := url.QueryUnescape(raw)
	if err != nil {
		return "", err
	}
	host = strings.TrimSpace(host)
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
