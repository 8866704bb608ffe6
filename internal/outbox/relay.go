// Package outbox relays order events written alongside status transitions to
// the message broker. Delivery is at least once: a message is stamped
// processed only after the broker accepted it.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"payments/internal/metrics"
	"payments/internal/model"
)

type Source interface {
	ProcessOutbox(ctx context.Context, limit int, handle func(context.Context, model.OutboxMessage) error) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msg model.OutboxMessage) error
}

type Options struct {
	Interval  time.Duration
	BatchSize int
}

type Relay struct {
	source    Source
	publisher Publisher
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewRelay(source Source, publisher Publisher, opts Options, m *metrics.Metrics, logger *slog.Logger) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Relay{source: source, publisher: publisher, opts: opts, metrics: m, logger: logger}
}

// Run drains the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.opts.Interval.String(), "batch_size", r.opts.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("failed to relay outbox messages", "error", err)
			}
		}
	}
}

// Drain publishes batches until the outbox has no more pending messages or a
// batch fails. It returns how many messages were delivered.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.source.ProcessOutbox(ctx, r.opts.BatchSize, r.publish)
		total += n
		if err != nil {
			return total, err
		}
		if n > 0 {
			r.logger.Debug("outbox batch relayed", "count", n)
		}
		if n < r.opts.BatchSize {
			return total, nil
		}
	}
}

func (r *Relay) publish(ctx context.Context, msg model.OutboxMessage) error {
	if err := r.publisher.Publish(ctx, msg); err != nil {
		r.metrics.OutboxMessage("failed")
		r.logger.Warn("outbox message not published",
			"message_id", msg.ID.String(),
			"order_id", msg.EntityID,
			"event_type", msg.EventType,
			"error", err)
		return err
	}
	r.metrics.OutboxMessage("published")
	return nil
}
