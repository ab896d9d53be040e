package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-pipeline/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeURLsDiscovered is published when a URL run persisted its file
	EventTypeURLsDiscovered EventType = "URLS_DISCOVERED"
	// EventTypeProductsScraped is published when a product run persisted its file
	EventTypeProductsScraped EventType = "PRODUCTS_SCRAPED"
	// EventTypeRunFailed is published when a run ends without an artifact
	EventTypeRunFailed EventType = "PIPELINE_RUN_FAILED"
)

// Event is the envelope for every pipeline event.
type Event struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Pipeline  string    `json:"pipeline"`
	Payload   any       `json:"payload,omitempty"`
	Source    string    `json:"source"`
}

func (e *Event) fill() {
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Source == "" {
		e.Source = "amazon-pipeline"
	}
}

// Publisher delivers pipeline events.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// Stager is implemented by publishers whose delivery is a database row. A
// caller holding a transaction inserts the staged row itself so the event
// commits with the data it describes.
type Stager interface {
	Stage(event *Event) (*database.OutboxEvent, error)
}

// RedisPublisher writes events straight to a Redis stream.
type RedisPublisher struct {
	client database.StreamWriter
	stream string
	logger *slog.Logger
}

func NewRedisPublisher(client database.StreamWriter, stream string, logger *slog.Logger) *RedisPublisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	return &RedisPublisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *Event) error {
	event.fill()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	entry := database.StreamEntry{
		EventID:   event.EventID,
		EventType: string(event.EventType),
		RunID:     event.RunID,
		Timestamp: event.Timestamp,
		Data:      data,
	}
	id, err := p.client.XAdd(ctx, entry.Args(p.stream)).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Info("event published",
		"type", event.EventType,
		"event_id", event.EventID,
		"run_id", event.RunID,
		"stream_id", id,
	)
	return nil
}

// OutboxPublisher stores events in the transactional outbox; a
// database.Relay forwards them to Redis.
type OutboxPublisher struct {
	outbox *database.OutboxRepository
	stream string
	logger *slog.Logger
}

func NewOutboxPublisher(db *database.DB, stream string, logger *slog.Logger) *OutboxPublisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	return &OutboxPublisher{
		outbox: database.NewOutboxRepository(db),
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

// Stage builds the outbox row for event. The row id is the event id.
func (p *OutboxPublisher) Stage(event *Event) (*database.OutboxEvent, error) {
	event.fill()

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	id, err := uuid.Parse(event.EventID)
	if err != nil {
		id = uuid.New()
	}
	return &database.OutboxEvent{
		ID:            id,
		AggregateType: "pipeline_run",
		AggregateID:   event.RunID,
		EventType:     string(event.EventType),
		Payload:       data,
		TargetStream:  p.stream,
	}, nil
}

// Publish inserts the event on its own. Pipelines with a run recorder stage
// the row into the recorder's transaction instead.
func (p *OutboxPublisher) Publish(ctx context.Context, event *Event) error {
	row, err := p.Stage(event)
	if err != nil {
		return err
	}

	if err := p.outbox.Insert(ctx, row); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", event.EventType,
		"event_id", event.EventID,
		"run_id", event.RunID,
	)
	return nil
}
