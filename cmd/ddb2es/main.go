package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/mehmetymw/ddb2es/internal/config"
	"github.com/mehmetymw/ddb2es/internal/pipeline"
	"github.com/mehmetymw/ddb2es/internal/sink/opensearch"
	"github.com/mehmetymw/ddb2es/internal/source/kafka"
	"github.com/mehmetymw/ddb2es/internal/stream"
	"github.com/mehmetymw/ddb2es/internal/synchronizer"
	"github.com/mehmetymw/ddb2es/internal/types"
)

type healthz struct {
	Status     string `json:"status"`
	LastOffset string `json:"last_offset"`
	BatchSize  int    `json:"batch_size"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Timestamp  string `json:"timestamp"`
}

func main() {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	logger, _ := zapConfig.Build()

	defer logger.Sync()

	logger.Info("Starting ddb2es application")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	logger.Info("Configuration loaded successfully",
		zap.String("source_type", cfg.Source.Type),
		zap.String("endpoint", cfg.Index.Endpoint),
		zap.String("index", cfg.Index.Name),
		zap.String("doc_type", cfg.Index.DocType))

	// Credentials and region are resolved once, before any record is handled.
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	awsCfg, err := awsconfig.LoadDefaultConfig(initCtx)
	initCancel()
	if err != nil {
		logger.Fatal("aws config load failed", zap.Error(err))
	}

	sink, err := opensearch.New(cfg.Index, awsCfg, logger)
	if err != nil {
		logger.Fatal("sink init failed", zap.Error(err))
	}
	defer sink.Close()

	syncer := synchronizer.New(sink, cfg.Source.KeyAttribute, logger)

	switch cfg.Source.Type {
	case "lambda":
		logger.Info("Starting Lambda handler")
		lambda.Start(newHandler(syncer))
	case "kafka":
		runKafka(cfg, syncer, logger)
	default:
		logger.Fatal("unknown source type", zap.String("type", cfg.Source.Type))
	}
}

func newHandler(s *synchronizer.Synchronizer) func(context.Context, events.DynamoDBEvent) (string, error) {
	return func(ctx context.Context, ev events.DynamoDBEvent) (string, error) {
		return s.Process(ctx, stream.FromEvent(ev)).Message(), nil
	}
}

func runKafka(cfg config.Config, syncer *synchronizer.Synchronizer, logger *zap.Logger) {
	src, err := kafka.New(cfg.Source.Kafka.Brokers, cfg.Source.Kafka.Topic, cfg.Source.Kafka.GroupID, logger)
	if err != nil {
		logger.Fatal("kafka source init failed", zap.Error(err))
	}
	defer func() {
		logger.Info("Closing source")
		src.Close()
	}()

	pl := pipeline.NewPipeline(syncer, cfg.Batching, logger)

	deliveries := make(chan types.Delivery, cfg.Batching.BatchSize*4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Commits use a fresh context so the final batch is committed after cancel.
		pl.Start(context.Background(), deliveries, src)
		logger.Info("Pipeline stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(deliveries)
		if err := src.Run(ctx, deliveries); err != nil {
			logger.Error("Kafka source failed", zap.Error(err))
			select {
			case quit <- syscall.SIGTERM:
			default:
			}
		}
	}()

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("Health check requested")
		st := pl.Status()
		resp := healthz{
			Status:     "running",
			LastOffset: st.LastOffset,
			BatchSize:  st.PendingBatch,
			Processed:  st.Processed,
			Failed:     st.Failed,
			Timestamp:  time.Now().Format(time.RFC3339),
		}
		b, _ := json.Marshal(resp)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	})
	server := &http.Server{Addr: cfg.HTTP.Addr}
	logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("Application started successfully, waiting for signals")
	<-quit

	logger.Info("Shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All goroutines finished successfully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached, forcing exit")
	}

	logger.Info("Shutdown complete")
}
