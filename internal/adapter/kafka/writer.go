package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/config"
	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes every event of each new feed to a Kafka topic, keyed by
// event ID so updates to the same event land on the same partition.
type Writer struct {
	writer  MessageWriter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured feed topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return NewWriterWith(w, logger, metrics)
}

// NewWriterWith wraps an existing message writer.
func NewWriterWith(w MessageWriter, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// Run publishes feeds from the channel until it is closed or ctx is done.
// A failed publish is logged and the next feed is still attempted.
func (w *Writer) Run(ctx context.Context, feeds <-chan domain.Feed) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case feed, ok := <-feeds:
			if !ok {
				return nil
			}
			if err := w.PublishFeed(ctx, feed); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("publish feed failed", "version", feed.Version, "pass_id", feed.PassID, "error", err)
			}
		}
	}
}

// PublishFeed serializes and publishes every event of feed in a single
// WriteMessages call.
func (w *Writer) PublishFeed(ctx context.Context, feed domain.Feed) error {
	if len(feed.Events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(feed.Events))
	for i := range feed.Events {
		msg, err := serializeToMessage(feed, feed.Events[i])
		if err != nil {
			w.metrics.PublishErrors.Inc()
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		w.metrics.PublishErrors.Inc()
		return fmt.Errorf("write %d events: %w", len(msgs), err)
	}
	w.metrics.EventsPublished.Add(float64(len(msgs)))
	w.logger.Debug("feed published to kafka", "events", len(msgs), "version", feed.Version)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Event into a Kafka message carrying the
// feed it was published in.
func serializeToMessage(feed domain.Feed, event domain.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hazard event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "severity", Value: []byte(event.Severity.String())},
			{Key: "feed_version", Value: []byte(strconv.FormatUint(feed.Version, 10))},
			{Key: "pass_id", Value: []byte(feed.PassID)},
			{Key: "generated_at", Value: []byte(feed.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
