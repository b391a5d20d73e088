package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mehmetymw/ddb2es/internal/stream"
	"github.com/mehmetymw/ddb2es/internal/types"
)

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Source consumes DynamoDB stream records, one JSON record per message.
type Source struct {
	reader reader
	topic  string
	logger *zap.Logger
}

func New(brokers []string, topic, groupID string, logger *zap.Logger) (*Source, error) {
	logger.Info("Creating Kafka source",
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
		zap.String("group_id", groupID))

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug("Kafka reader log", zap.String("msg", fmt.Sprintf(msg, args...)))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error("Kafka reader error", zap.String("msg", fmt.Sprintf(msg, args...)))
		}),
	})

	return &Source{reader: r, topic: topic, logger: logger}, nil
}

// Run fetches messages until ctx is done or the reader fails. Messages
// that do not decode are forwarded as records of unknown kind. Run never
// commits; offsets are committed only through Commit.
func (s *Source) Run(ctx context.Context, out chan<- types.Delivery) error {
	s.logger.Info("Starting Kafka source", zap.String("topic", s.topic))
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("Kafka source stopped")
				return nil
			}
			s.logger.Error("Failed to fetch message", zap.Error(err))
			return err
		}
		offset := fmt.Sprintf("%d/%d", msg.Partition, msg.Offset)

		rec, err := stream.Decode(msg.Value)
		if err != nil {
			s.logger.Error("Undecodable stream record",
				zap.Error(err),
				zap.String("offset", offset),
				zap.Int("message_size", len(msg.Value)))
			// Forwarded so it fails as malformed and commits in order with its batch.
			rec = types.ChangeRecord{EventKind: types.EventUnknown}
		}

		s.logger.Debug("Received stream record",
			zap.String("event_id", rec.EventID),
			zap.String("event", string(rec.EventKind)),
			zap.String("offset", offset))

		select {
		case out <- types.Delivery{Record: rec, Offset: offset, Token: msg}:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Source) Commit(ctx context.Context, tokens []any) error {
	msgs := make([]kafka.Message, 0, len(tokens))
	for _, t := range tokens {
		m, ok := t.(kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected commit token %T", t)
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		return nil
	}
	s.logger.Debug("Committing offsets", zap.Int("messages", len(msgs)))
	return s.reader.CommitMessages(ctx, msgs...)
}

func (s *Source) Close() error {
	s.logger.Info("Closing Kafka source")
	if s.reader != nil {
		return s.reader.Close()
	}
	return nil
}
