package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamWriter appends entries to a Redis stream. *redis.Client satisfies it.
type StreamWriter interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// StreamEntry is a pipeline event as it appears on the stream. Data holds the
// JSON encoded event; the other fields let consumers route without decoding
// it.
type StreamEntry struct {
	EventID   string
	EventType string
	RunID     string
	Timestamp time.Time
	Data      []byte
}

// Args renders e for XAdd on stream.
func (e StreamEntry) Args(stream string) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"data":       string(e.Data),
			"event_id":   e.EventID,
			"event_type": e.EventType,
			"run_id":     e.RunID,
			"timestamp":  strconv.FormatInt(e.Timestamp.UnixNano(), 10),
		},
	}
}

// StreamEntry rebuilds the entry for a stored row. The payload is the encoded
// event and is forwarded untouched.
func (e *OutboxEvent) StreamEntry() (StreamEntry, error) {
	var head struct {
		EventID   string    `json:"event_id"`
		RunID     string    `json:"run_id"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(e.Payload, &head); err != nil {
		return StreamEntry{}, fmt.Errorf("outbox event %s has an unreadable payload: %w", e.ID, err)
	}

	entry := StreamEntry{
		EventID:   head.EventID,
		EventType: e.EventType,
		RunID:     head.RunID,
		Timestamp: head.Timestamp,
		Data:      e.Payload,
	}
	if entry.EventID == "" {
		entry.EventID = e.ID.String()
	}
	if entry.RunID == "" {
		entry.RunID = e.AggregateID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.CreatedAt
	}
	return entry, nil
}
