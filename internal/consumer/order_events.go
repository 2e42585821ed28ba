package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logging"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultGroupID = "storefront-order-events"

	retryBase = 200 * time.Millisecond
	retryCap  = 30 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler reacts to one order event. A returned error makes the consumer
// retry the same event; nothing past it is committed until it succeeds.
type Handler interface {
	Handle(ctx context.Context, event domain.OrderEvent) error
}

type HandlerFunc func(ctx context.Context, event domain.OrderEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event domain.OrderEvent) error {
	return f(ctx, event)
}

type Consumer struct {
	reader  messageReader
	handler Handler
	backoff func() retry.Backoff
	log     *slog.Logger
}

func NewConsumer(handler Handler, topic, groupID string, brokers ...string) *Consumer {
	if groupID == "" {
		groupID = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, handler)
}

func newConsumer(reader messageReader, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		handler: handler,
		backoff: func() retry.Backoff {
			return retry.WithCappedDuration(retryCap, retry.WithJitterPercent(10, retry.NewExponential(retryBase)))
		},
		log: logging.New("order-events-consumer"),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := c.processMessage(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("process message", "err", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func (c *Consumer) processMessage(ctx context.Context) error {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return err
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		// a poison message would block the partition forever
		c.log.Warn("skipping malformed event", "offset", m.Offset, "partition", m.Partition, "err", err)
		return c.reader.CommitMessages(ctx, m)
	}
	if event.Type == "" {
		event.Type = headerValue(m, "event_type")
	}

	// FetchMessage has already moved past m, so a failed event is retried
	// here rather than left for redelivery
	attempt := 0
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		if err := c.handler.Handle(ctx, event); err != nil {
			c.log.Warn("handle event failed", "offset", m.Offset, "partition", m.Partition,
				"event_type", event.Type, "attempt", attempt, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.reader.CommitMessages(ctx, m)
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// CartCacheInvalidator drops the cached cart of a user once an order of
// theirs is created, so instances that served the cart earlier reload it.
func CartCacheInvalidator(cartCache cache.CartCache) Handler {
	return HandlerFunc(func(ctx context.Context, event domain.OrderEvent) error {
		if event.Type != domain.EventOrderCreated || event.UserID == "" {
			return nil
		}
		if err := cartCache.Delete(ctx, event.UserID); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			return err
		}
		return nil
	})
}

// LogHandler writes every event to l.
func LogHandler(l *slog.Logger) Handler {
	return HandlerFunc(func(_ context.Context, event domain.OrderEvent) error {
		l.Info("order event",
			"event_type", event.Type,
			"order_id", event.OrderID,
			"user_id", event.UserID,
			"status", event.Status.String(),
			"previous_status", event.PreviousStatus.String(),
			"total", event.Total.String(),
		)
		return nil
	})
}

// Chain runs handlers in order and stops at the first error.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, event domain.OrderEvent) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}
