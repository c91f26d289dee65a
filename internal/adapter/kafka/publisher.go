// Package kafka publishes output tables to a Kafka topic, one message per row.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Header keys set on every published row.
const (
	HeaderTable       = "table"
	HeaderRunID       = "run_id"
	HeaderPublishedAt = "published_at"
)

// TablePublisher produces table rows to a Kafka topic.
// It implements pipeline.Sink.
type TablePublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewTablePublisher creates a Kafka producer for the configured table topic.
// Rows are hashed by key so a row's updates stay on one partition.
func NewTablePublisher(cfg *config.Config, logger *slog.Logger) *TablePublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &TablePublisher{writer: w, logger: logger}
}

func (p *TablePublisher) Name() string { return "kafka" }

// WriteTable publishes every row of the table in a single WriteMessages call.
func (p *TablePublisher) WriteTable(ctx context.Context, t domain.Table) error {
	msgs, err := tableMessages(t, pipeline.RunIDFromContext(ctx), domain.Now())
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %s rows: %w", t.Name(), err)
	}
	p.logger.Debug("table published", "table", t.Name(), "rows", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *TablePublisher) Close() error {
	return p.writer.Close()
}

// tableMessages marshals each row into a JSON object keyed by column name. The
// message key is "<table>:<first column value>".
func tableMessages(t domain.Table, runID string, publishedAt time.Time) ([]kafkago.Message, error) {
	cols := t.Columns()
	headers := []kafkago.Header{
		{Key: HeaderTable, Value: []byte(t.Name())},
		{Key: HeaderRunID, Value: []byte(runID)},
		{Key: HeaderPublishedAt, Value: []byte(publishedAt.Format(time.RFC3339))},
	}

	msgs := make([]kafkago.Message, t.Len())
	for i := range msgs {
		values := t.Row(i)
		row := make(map[string]any, len(cols))
		for j, c := range cols {
			row[c] = values[j]
		}
		data, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("serialize %s row %d: %w", t.Name(), i+1, err)
		}
		msgs[i] = kafkago.Message{
			Key:     fmt.Appendf(nil, "%s:%v", t.Name(), values[0]),
			Value:   data,
			Headers: headers,
		}
	}
	return msgs, nil
}
