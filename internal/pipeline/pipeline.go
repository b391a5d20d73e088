package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mehmetymw/ddb2es/internal/config"
	"github.com/mehmetymw/ddb2es/internal/synchronizer"
	"github.com/mehmetymw/ddb2es/internal/types"
)

// Pipeline groups deliveries from a long-running source into batches for
// the synchronizer and commits each batch once it has been attempted.
type Pipeline struct {
	syncer     *synchronizer.Synchronizer
	cfg        config.Batching
	logger     *zap.Logger
	batch      []types.Delivery
	mu         sync.Mutex
	lastOffset string
	processed  int
	failed     int
}

func NewPipeline(s *synchronizer.Synchronizer, cfg config.Batching, logger *zap.Logger) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushIntervalMs <= 0 {
		cfg.FlushIntervalMs = 500
	}
	logger.Info("Creating new pipeline",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Int("flush_interval_ms", cfg.FlushIntervalMs))
	return &Pipeline{syncer: s, cfg: cfg, logger: logger}
}

// Start runs until deliveries is closed, flushing what remains.
func (p *Pipeline) Start(ctx context.Context, deliveries <-chan types.Delivery, committer types.Committer) {
	p.logger.Info("Starting pipeline processing loop")
	ticker := time.NewTicker(time.Duration(p.cfg.FlushIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				p.logger.Info("Delivery channel closed, flushing final batch")
				p.flush(ctx, committer)
				return
			}
			if n := p.add(d); n >= p.cfg.BatchSize {
				p.logger.Debug("Batch size reached, flushing", zap.Int("batch_size", n))
				p.flush(ctx, committer)
			}
		case <-ticker.C:
			p.mu.Lock()
			n := len(p.batch)
			p.mu.Unlock()
			if n > 0 {
				p.logger.Debug("Flush interval reached, flushing", zap.Int("batch_size", n))
				p.flush(ctx, committer)
			}
		}
	}
}

func (p *Pipeline) add(d types.Delivery) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batch = append(p.batch, d)
	return len(p.batch)
}

func (p *Pipeline) flush(ctx context.Context, committer types.Committer) {
	p.mu.Lock()
	batch := p.batch
	p.batch = nil
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	records := make([]types.ChangeRecord, len(batch))
	tokens := make([]any, 0, len(batch))
	for i, d := range batch {
		records[i] = d.Record
		if d.Token != nil {
			tokens = append(tokens, d.Token)
		}
	}
	offset := batch[len(batch)-1].Offset

	p.logger.Info("Flushing batch",
		zap.Int("batch_size", len(batch)),
		zap.String("offset", offset))

	start := time.Now()
	res := p.syncer.Process(ctx, records)
	p.logger.Info("Batch processing completed",
		zap.String("result", res.Message()),
		zap.Int("failed", res.Failed()),
		zap.Duration("duration", time.Since(start)))

	p.mu.Lock()
	p.processed += res.Processed
	p.failed += res.Failed()
	p.mu.Unlock()

	if committer == nil {
		return
	}
	if err := committer.Commit(ctx, tokens); err != nil {
		p.logger.Error("Failed to commit offsets", zap.Error(err), zap.String("offset", offset))
		return
	}
	p.mu.Lock()
	p.lastOffset = offset
	p.mu.Unlock()
	p.logger.Debug("Offsets committed", zap.String("offset", offset))
}

type pipelineStatus struct {
	LastOffset   string
	PendingBatch int
	Processed    int
	Failed       int
}

func (p *Pipeline) Status() pipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pipelineStatus{LastOffset: p.lastOffset, PendingBatch: len(p.batch), Processed: p.processed, Failed: p.failed}
}
