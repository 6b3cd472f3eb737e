package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/couchcryptid/town-data-etl/internal/config"
	"github.com/couchcryptid/town-data-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes town snapshots to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured snapshot topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes the snapshots and writes them in a single
// WriteMessages call. Messages are keyed by lowercase town name so every
// snapshot of a town lands on the same partition.
func (w *Writer) Publish(ctx context.Context, towns []domain.Town) error {
	if len(towns) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(towns))
	for i := range towns {
		msg, err := serializeToMessage(towns[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d snapshots: %w", len(msgs), err)
	}
	w.logger.Debug("snapshots published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Town into a Kafka message.
func serializeToMessage(town domain.Town) (kafkago.Message, error) {
	data, err := json.Marshal(town)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize town snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(town.NameLower),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "name_lower", Value: []byte(town.NameLower)},
			{Key: "last_updated", Value: []byte(strconv.FormatInt(town.LastUpdated, 10))},
		},
	}, nil
}
