package synchronizer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mehmetymw/ddb2es/internal/document"
	"github.com/mehmetymw/ddb2es/internal/types"
)

// Outcome is the result of handling one record. Err is nil on success.
type Outcome struct {
	Key       string
	EventKind types.EventKind
	Err       error
}

// Result reports a batch. Processed counts attempted records, not
// successful ones; Outcomes carries the per-record detail.
type Result struct {
	Processed int
	Outcomes  []Outcome
}

func (r Result) Message() string {
	return fmt.Sprintf("%d records processed.", r.Processed)
}

func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

type Synchronizer struct {
	index   types.Index
	keyAttr string
	logger  *zap.Logger
}

func New(index types.Index, keyAttr string, logger *zap.Logger) *Synchronizer {
	logger.Info("Creating synchronizer", zap.String("key_attribute", keyAttr))
	return &Synchronizer{index: index, keyAttr: keyAttr, logger: logger}
}

// Process mirrors each record into the index in input order. A failing
// record is logged and does not stop the batch.
func (s *Synchronizer) Process(ctx context.Context, batch []types.ChangeRecord) Result {
	res := Result{Outcomes: make([]Outcome, 0, len(batch))}
	for _, rec := range batch {
		out := s.processRecord(ctx, rec)
		if out.Err != nil {
			s.logger.Error("Failed to process record",
				zap.Error(out.Err),
				zap.String("event_id", rec.EventID),
				zap.String("event", string(rec.EventKind)),
				zap.String("key", out.Key))
		}
		res.Outcomes = append(res.Outcomes, out)
		res.Processed++
		s.logger.Info(res.Message())
	}
	s.logger.Debug("Batch completed",
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed()))
	return res
}

func (s *Synchronizer) processRecord(ctx context.Context, rec types.ChangeRecord) Outcome {
	out := Outcome{EventKind: rec.EventKind}
	key, err := document.Key(rec.Keys, s.keyAttr)
	if err != nil {
		out.Err = err
		return out
	}
	out.Key = key

	switch rec.EventKind {
	case types.EventRemove:
		s.logger.Debug("Processing delete", zap.String("key", key))
		out.Err = s.index.Delete(ctx, key)
	case types.EventInsert, types.EventModify:
		doc, err := document.Decode(key, rec.NewImage)
		if err != nil {
			out.Err = err
			return out
		}
		s.logger.Debug("Processing upsert", zap.String("key", key), zap.String("event", string(rec.EventKind)))
		out.Err = s.index.Upsert(ctx, key, doc)
	default:
		out.Err = &types.DecodeError{Field: "eventName", Reason: "unsupported event kind"}
	}
	return out
}
