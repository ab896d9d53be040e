package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/amazon-pipeline/internal/api"
	"github.com/maltedev/amazon-pipeline/internal/database"
	"github.com/maltedev/amazon-pipeline/internal/jobs"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
	"github.com/maltedev/amazon-pipeline/internal/queue"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run submitted pipelines in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger

	deps := a.deps()

	manager := jobs.NewManager(queue.NewInMemoryQueue(), logger)
	manager.Register(pipeline.NameURLs, func(ctx context.Context, job *jobs.Job) (any, error) {
		params := job.Params.(pipeline.URLConfig)
		if params.MaxPages == 0 {
			params.MaxPages = cfg.Scraper.MaxPages
		}
		params.IncludeSponsored = params.IncludeSponsored || cfg.Scraper.IncludeSponsored
		p, err := pipeline.NewURLPipeline(params, deps)
		if err != nil {
			return nil, err
		}
		return p.Run(ctx)
	})
	manager.Register(pipeline.NameProducts, func(ctx context.Context, job *jobs.Job) (any, error) {
		params := job.Params.(pipeline.ProductConfig)
		if params.Concurrency == 0 {
			params.Concurrency = cfg.Scraper.ConcurrentLimit
		}
		if params.OutputFormat == "" {
			params.OutputFormat = cfg.Artifacts.OutputFormat
		}
		p, err := pipeline.NewProductPipeline(params, deps)
		if err != nil {
			return nil, err
		}
		return p.Run(ctx)
	})

	var outbox api.OutboxStats
	var relay *database.Relay
	if a.db != nil && a.redis != nil {
		relay = database.NewRelay(a.db, a.redis, logger, database.RelayConfig{
			PollInterval: cfg.Database.PollInterval,
			BatchSize:    cfg.Database.BatchSize,
		})
		outbox = relay
	}

	handlers := api.NewHandlers(manager, outbox, cfg.Browser.Headless, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		manager.Run(gctx, cfg.Jobs.Workers)
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		_ = manager.Close()
		return server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	logger.Info("server stopped")
	return err
}
