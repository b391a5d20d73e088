package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/signer/awsv2"
	"go.uber.org/zap"

	"github.com/mehmetymw/ddb2es/internal/config"
	"github.com/mehmetymw/ddb2es/internal/types"
)

// Sink writes documents to an Amazon OpenSearch / Elasticsearch domain
// through a SigV4 signing opensearch-go client.
type Sink struct {
	client  *opensearch.Client
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

func New(ic config.IndexConfig, awsCfg aws.Config, logger *zap.Logger) (*Sink, error) {
	return NewWithTransport(ic, awsCfg, nil, logger)
}

// NewWithTransport is New with an explicit round tripper; nil uses the
// client default.
func NewWithTransport(ic config.IndexConfig, awsCfg aws.Config, transport http.RoundTripper, logger *zap.Logger) (*Sink, error) {
	if ic.Region != "" {
		awsCfg.Region = ic.Region
	}
	if awsCfg.Region == "" {
		return nil, fmt.Errorf("%w: AWS region could not be resolved", types.ErrConfiguration)
	}
	if awsCfg.Credentials == nil {
		return nil, fmt.Errorf("%w: AWS credentials could not be resolved", types.ErrConfiguration)
	}
	path, err := url.JoinPath("/", ic.Name, ic.DocType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	signer, err := awsv2.NewSignerWithService(awsCfg, ic.Service)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:    []string{ic.Endpoint},
		Signer:       signer,
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	logger.Info("Creating OpenSearch sink",
		zap.String("endpoint", ic.Endpoint),
		zap.String("path", path),
		zap.String("service", ic.Service),
		zap.String("region", awsCfg.Region))

	return &Sink{
		client:  client,
		path:    path,
		timeout: time.Duration(ic.TimeoutMs) * time.Millisecond,
		logger:  logger,
	}, nil
}

// docPath is <index>/<doc-type>/<id>. The doc type is configurable, which
// the typed opensearchapi requests (fixed to _doc) cannot express, so
// requests go through the client's Perform.
func (s *Sink) docPath(id string) string {
	return s.path + "/" + url.PathEscape(id)
}

func (s *Sink) Upsert(ctx context.Context, id string, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		s.logger.Error("Failed to marshal document", zap.Error(err), zap.String("id", id))
		return err
	}
	s.logger.Debug("Sending upsert request",
		zap.String("id", id),
		zap.Int("payload_size", len(b)))

	status, body, err := s.do(ctx, http.MethodPut, id, b)
	if err != nil {
		return &types.TransportError{Op: "upsert", ID: id, Err: err}
	}
	if status < 200 || status > 299 {
		s.logger.Error("Upsert failed",
			zap.String("id", id),
			zap.Int("status", status),
			zap.String("response", body))
		return &types.TransportError{Op: "upsert", ID: id, Status: status, Body: body}
	}
	s.logger.Debug("Document upserted", zap.String("id", id), zap.Int("status", status))
	return nil
}

// Delete removes the document. A document that is already gone counts as
// deleted.
func (s *Sink) Delete(ctx context.Context, id string) error {
	s.logger.Debug("Sending delete request", zap.String("id", id))

	status, body, err := s.do(ctx, http.MethodDelete, id, nil)
	if err != nil {
		return &types.TransportError{Op: "delete", ID: id, Err: err}
	}
	if status == http.StatusNotFound {
		s.logger.Debug("Document already absent", zap.String("id", id))
		return nil
	}
	if status < 200 || status > 299 {
		s.logger.Error("Delete failed",
			zap.String("id", id),
			zap.Int("status", status),
			zap.String("response", body))
		return &types.TransportError{Op: "delete", ID: id, Status: status, Body: body}
	}
	s.logger.Debug("Document deleted", zap.String("id", id), zap.Int("status", status))
	return nil
}

func (s *Sink) do(ctx context.Context, method, id string, payload []byte) (int, string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.docPath(id), body)
	if err != nil {
		return 0, "", err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Perform(req)
	if err != nil {
		s.logger.Error("Index request failed",
			zap.Error(err),
			zap.String("method", method),
			zap.String("id", id))
		return 0, "", err
	}
	defer resp.Body.Close()

	msg, _ := io.ReadAll(resp.Body)
	s.logger.Debug("Index request completed",
		zap.String("method", method),
		zap.String("id", id),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))
	return resp.StatusCode, string(msg), nil
}

func (s *Sink) Close() error {
	s.logger.Info("Closing OpenSearch sink")
	return nil
}
