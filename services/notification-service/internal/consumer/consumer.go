package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tabletopreserve/tabletop/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox remembers handled event ids.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, eventType string) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers     string
	GroupID     string
	Topic       string
	MaxAttempts int
	Backoff     time.Duration
}

// Consumer runs the handler for each event not yet in the inbox, records the
// event and then commits the offset. Handlers must tolerate a repeated event:
// it is run again when recording fails. A failing attempt is retried up to
// MaxAttempts times before the event is skipped.
type Consumer struct {
	reader      reader
	logger      *slog.Logger
	inbox       Inbox
	handler     Handler
	maxAttempts int
	backoff     time.Duration
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, logger, inbox, cfg, handler)
}

func newConsumer(r reader, logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	c := &Consumer{
		reader:      r,
		logger:      logger,
		inbox:       inbox,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	return c
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka fetch error", "err", err)
			if !sleep(ctx, c.backoff) {
				return
			}
			continue
		}

		c.process(ctx, msg)
		if ctx.Err() != nil {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit error", "err", err, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	meta := kafkax.ExtractEventMeta(msg)
	ctxSpan, span := otel.Tracer("kafka").Start(kafkax.ExtractTraceContext(ctx, msg), "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
		),
	)
	defer span.End()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.handleOnce(ctxSpan, msg, meta)
		if err == nil {
			return
		}

		span.RecordError(err)
		c.logger.Warn("event handling failed", "err", err, "event_id", meta.EventID, "attempt", attempt)
		if attempt < c.maxAttempts && !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return
		}
	}

	span.SetStatus(codes.Error, "event dropped")
	c.logger.Error("event dropped after retries", "event_id", meta.EventID, "event_type", meta.EventType, "attempts", c.maxAttempts)
}

func (c *Consumer) handleOnce(ctx context.Context, msg kafka.Message, meta kafkax.EventMeta) error {
	seen, err := c.inbox.Seen(ctx, meta.EventID)
	if err != nil {
		return err
	}
	if seen {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	if err := c.handler(ctx, msg); err != nil {
		return err
	}
	return c.inbox.Record(ctx, meta.EventID, meta.EventType)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
