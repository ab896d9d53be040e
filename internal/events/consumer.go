package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-pipeline/internal/database"
)

// StreamClient is the part of *redis.Client the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler processes one event. A returned error leaves the message pending.
type Handler func(ctx context.Context, event *Event) error

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
	Count  int64
}

// Consumer reads pipeline events from a Redis stream through a consumer
// group and dispatches them by type.
type Consumer struct {
	client   StreamClient
	cfg      ConsumerConfig
	handlers map[EventType]Handler
	fallback Handler
	logger   *slog.Logger
}

func NewConsumer(client StreamClient, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.DefaultStream
	}
	if cfg.Group == "" {
		cfg.Group = "pipeline-consumer-group"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count == 0 {
		cfg.Count = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:   client,
		cfg:      cfg,
		handlers: make(map[EventType]Handler),
		logger:   logger.With("component", "event_consumer"),
	}
}

func (c *Consumer) Handle(t EventType, h Handler) {
	c.handlers[t] = h
}

// HandleAll sets the handler for event types without a dedicated one.
func (c *Consumer) HandleAll(h Handler) {
	c.fallback = h
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.process(ctx, msg); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
			}
		}
	}
	return nil
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) error {
	event, err := DecodeMessage(msg)
	if err != nil {
		return err
	}

	h, ok := c.handlers[event.EventType]
	if !ok {
		h = c.fallback
	}
	if h == nil {
		return nil
	}
	return h(ctx, event)
}

// DecodeMessage turns a stream entry into an Event. Direct and relayed
// entries share the database.StreamEntry layout.
func DecodeMessage(msg redis.XMessage) (*Event, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no data field", msg.ID)
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	if event.EventType == "" {
		if t, ok := msg.Values["event_type"].(string); ok {
			event.EventType = EventType(t)
		}
	}
	if event.RunID == "" {
		if id, ok := msg.Values["run_id"].(string); ok {
			event.RunID = id
		}
	}
	return &event, nil
}

// DecodePayload converts the generic payload of a decoded event into v.
func (e *Event) DecodePayload(v any) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
