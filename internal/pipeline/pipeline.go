// Package pipeline implements the URL discovery and product detail runs.
// Each pipeline is built from a config, exposes a single Run, and returns an
// artifact describing the file it persisted.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/amazon-pipeline/internal/database"
	"github.com/maltedev/amazon-pipeline/internal/events"
	"github.com/maltedev/amazon-pipeline/internal/fetcher"
	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/ratelimit"
	"github.com/maltedev/amazon-pipeline/internal/scraper"
	"github.com/maltedev/amazon-pipeline/internal/storage"
)

var (
	ErrInvalidConfig  = errors.New("invalid pipeline configuration")
	ErrAllTermsFailed = errors.New("every search term failed")
)

const (
	NameURLs     = "urls"
	NameProducts = "products"
)

// FetcherFactory opens the page source for one run. headless is only
// meaningful for browser-backed fetchers.
type FetcherFactory func(headless bool) (fetcher.Fetcher, error)

// RunRecorder persists run summaries and scraped products, together with any
// outbox rows handed along. *database.DB implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run database.RunRecord, outbox ...*database.OutboxEvent) error
	SaveProductRun(ctx context.Context, run database.RunRecord, products []*models.Product, outbox ...*database.OutboxEvent) error
}

// Deps are the collaborators shared by both pipelines.
type Deps struct {
	NewFetcher FetcherFactory
	Store      *storage.Store
	Limiter    ratelimit.RateLimiter
	Publisher  events.Publisher
	Recorder   RunRecorder
	BaseURL    string
	Logger     *slog.Logger
	Now        func() time.Time
}

func (d *Deps) defaults() {
	if d.Store == nil {
		d.Store = storage.NewStore("")
	}
	if d.Publisher == nil {
		d.Publisher = events.NopPublisher{}
	}
	if d.BaseURL == "" {
		d.BaseURL = scraper.DefaultBaseURL
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

func (d *Deps) scraperOptions(f fetcher.Fetcher, logger *slog.Logger) scraper.Options {
	return scraper.Options{
		BaseURL: d.BaseURL,
		Fetcher: f,
		Limiter: d.Limiter,
		Logger:  logger,
	}
}

// finish records the run and publishes its event. Neither failure fails the
// run: the artifact is already on disk. When the publisher stages outbox rows
// the event is written in the recorder's transaction, and only published on
// its own if recording fails.
func (d *Deps) finish(ctx context.Context, logger *slog.Logger, run database.RunRecord, products []*models.Product, event *events.Event) {
	var staged []*database.OutboxEvent
	if stager, ok := d.Publisher.(events.Stager); ok && d.Recorder != nil {
		row, err := stager.Stage(event)
		if err != nil {
			logger.Error("failed to stage event", "run_id", run.RunID, "type", event.EventType, "error", err)
		} else {
			staged = append(staged, row)
		}
	}

	if d.Recorder != nil {
		var err error
		if run.Pipeline == NameProducts && run.Status == database.RunCompleted {
			err = d.Recorder.SaveProductRun(ctx, run, products, staged...)
		} else {
			err = d.Recorder.RecordRun(ctx, run, staged...)
		}
		if err != nil {
			logger.Error("failed to record run", "run_id", run.RunID, "error", err)
			staged = nil
		}
	}

	if len(staged) > 0 {
		logger.Debug("event committed with run", "run_id", run.RunID, "type", event.EventType)
		return
	}
	if err := d.Publisher.Publish(ctx, event); err != nil {
		logger.Error("failed to publish event", "run_id", run.RunID, "type", event.EventType, "error", err)
	}
}

func runStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}
