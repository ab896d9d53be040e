package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-pipeline/internal/browser"
	"github.com/maltedev/amazon-pipeline/internal/config"
	"github.com/maltedev/amazon-pipeline/internal/database"
	"github.com/maltedev/amazon-pipeline/internal/events"
	"github.com/maltedev/amazon-pipeline/internal/fetcher"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
	"github.com/maltedev/amazon-pipeline/internal/ratelimit"
	"github.com/maltedev/amazon-pipeline/internal/retry"
	"github.com/maltedev/amazon-pipeline/internal/storage"
)

// app owns the optional backends and builds pipeline dependencies from
// config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *database.DB
	redis     *redis.Client
	publisher events.Publisher

	// fetchers replaces the configured fetcher when set.
	fetchers pipeline.FetcherFactory
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, publisher: events.NopPublisher{}}

	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Name,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		a.db = db
	}

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	a.publisher = selectPublisher(a.db, a.redis, cfg.Redis.Stream, logger)
	return a, nil
}

// selectPublisher routes run events through the outbox only when a relay can
// drain it, which needs both Postgres and Redis.
func selectPublisher(db *database.DB, rdb *redis.Client, stream string, logger *slog.Logger) events.Publisher {
	switch {
	case db != nil && rdb != nil:
		return events.NewOutboxPublisher(db, stream, logger)
	case rdb != nil:
		return events.NewRedisPublisher(rdb, stream, logger)
	case db != nil:
		logger.Warn("database is enabled without redis, run events will not be published")
	}
	return events.NopPublisher{}
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) deps() pipeline.Deps {
	s := a.cfg.Scraper
	newFetcher := a.newFetcher
	if a.fetchers != nil {
		newFetcher = a.fetchers
	}
	deps := pipeline.Deps{
		NewFetcher: newFetcher,
		Store:      storage.NewStore(a.cfg.Artifacts.Dir),
		Limiter:    ratelimit.New(s.Limiter, s.RateLimitMin, s.RateLimitMax, s.Burst),
		Publisher:  a.publisher,
		BaseURL:    s.BaseURL,
		Logger:     a.logger,
	}
	if a.db != nil {
		deps.Recorder = a.db
	}
	return deps
}

func (a *app) newFetcher(headless bool) (fetcher.Fetcher, error) {
	s := a.cfg.Scraper
	b := a.cfg.Browser

	if s.FetchMode == "static" {
		var proxy *url.URL
		if s.Proxy != "" {
			u, err := url.Parse(s.Proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy %q: %w", s.Proxy, err)
			}
			proxy = u
		}
		policy := retry.NewExponentialPolicy(s.MaxRetries, s.RetryDelay, 10*s.RetryDelay,
			fetcher.ErrBlocked, fetcher.ErrNotFound)
		return fetcher.WithRetry(fetcher.NewColly(fetcher.CollyConfig{
			UserAgent:      s.UserAgent,
			AcceptLanguage: b.AcceptLanguage,
			Timeout:        b.Timeout,
			RespectRobots:  s.RespectRobots,
			Proxy:          proxy,
		}), policy), nil
	}

	br, err := browser.New(&browser.Options{
		Headless:       headless,
		Timeout:        b.Timeout,
		UserAgent:      s.UserAgent,
		ViewportWidth:  b.ViewportWidth,
		ViewportHeight: b.ViewportHeight,
		AcceptLanguage: b.AcceptLanguage,
		TimezoneID:     b.TimezoneID,
		Locale:         b.Locale,
		ProxyServer:    s.Proxy,
		MaxAttempts:    s.MaxRetries,
		RetryDelay:     s.RetryDelay,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	return br, nil
}

func (a *app) urlConfig(terms []string, target int, headless bool) pipeline.URLConfig {
	return pipeline.URLConfig{
		SearchTerms:      terms,
		TargetLinks:      target,
		Headless:         headless,
		MaxPages:         a.cfg.Scraper.MaxPages,
		IncludeSponsored: a.cfg.Scraper.IncludeSponsored,
	}
}

func (a *app) productConfig(path string, headless bool) pipeline.ProductConfig {
	return pipeline.ProductConfig{
		URLFilePath:  path,
		Headless:     headless,
		Concurrency:  a.cfg.Scraper.ConcurrentLimit,
		OutputFormat: a.cfg.Artifacts.OutputFormat,
	}
}

var errRelayDisabled = errors.New("relay needs database.enabled and redis.enabled")
