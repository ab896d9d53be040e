package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// outboxStore is the part of OutboxRepository the relay drives.
type outboxStore interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Relay drains the outbox into Redis. Each row goes out as the StreamEntry
// built from its stored event, the layout events.RedisPublisher writes, so
// consumers read relayed and direct entries the same way.
type Relay struct {
	store   outboxStore
	streams StreamWriter
	cfg     RelayConfig
	logger  *slog.Logger
}

func NewRelay(db *DB, streams StreamWriter, logger *slog.Logger, cfg RelayConfig) *Relay {
	return newRelay(NewOutboxRepository(db), streams, logger, cfg)
}

func newRelay(store outboxStore, streams StreamWriter, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		store:   store,
		streams: streams,
		cfg:     cfg,
		logger:  logger.With("component", "outbox_relay"),
	}
}

// Run flushes right away and then on every poll tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started",
		"poll_interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox flush failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush forwards one batch of due rows and returns how many reached their
// stream. A row that cannot be forwarded is marked failed for a later flush
// and does not stop the batch.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	rows, err := r.store.GetPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := r.forward(ctx, row); err != nil {
			r.logger.Warn("event not relayed",
				"outbox_id", row.ID,
				"run_id", row.AggregateID,
				"type", row.EventType,
				"retry_count", row.RetryCount,
				"error", err)
			if markErr := r.store.MarkFailed(ctx, row.ID, err); markErr != nil {
				r.logger.Error("failed to mark outbox event failed", "outbox_id", row.ID, "error", markErr)
			}
			continue
		}
		sent++
	}

	if len(rows) > 0 {
		r.logger.Debug("outbox flushed", "relayed", sent, "batch", len(rows))
	}
	return sent, nil
}

func (r *Relay) forward(ctx context.Context, row *OutboxEvent) error {
	entry, err := row.StreamEntry()
	if err != nil {
		return err
	}
	if err := r.streams.XAdd(ctx, entry.Args(row.TargetStream)).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", row.TargetStream, err)
	}

	// The entry is out; failing to mark it only means it is sent again.
	if err := r.store.MarkProcessed(ctx, row.ID); err != nil {
		r.logger.Error("failed to mark outbox event processed", "outbox_id", row.ID, "error", err)
	}

	r.logger.Info("event relayed",
		"event_id", entry.EventID,
		"run_id", entry.RunID,
		"type", entry.EventType,
		"stream", row.TargetStream)
	return nil
}

// PendingCount returns the number of events still waiting to be relayed.
func (r *Relay) PendingCount(ctx context.Context) (int64, error) {
	return r.store.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

// DeadLetterCount returns the number of events the relay gave up on.
func (r *Relay) DeadLetterCount(ctx context.Context) (int64, error) {
	return r.store.CountByStatus(ctx, OutboxStatusDeadLetter)
}
