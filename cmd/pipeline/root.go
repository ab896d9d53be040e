package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-pipeline/internal/config"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
	"github.com/maltedev/amazon-pipeline/pkg/logger"
)

// cli holds what every subcommand needs once flags are parsed.
type cli struct {
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger

	// fetchers overrides the page source of every app the commands open.
	fetchers pipeline.FetcherFactory
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&cli{})
}

func newRootCmdWith(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Discover Amazon product URLs and scrape their detail pages",
		Long: `pipeline runs two stages against Amazon search and product pages.
The urls stage turns search terms into a URL file, the products stage turns
a URL file into a product file. Both can run back to back with "run" or as
background jobs behind the HTTP API with "serve".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default searches ./config.yaml, /etc/amazon-pipeline, $HOME/.amazon-pipeline)")
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "log format override (json, text)")

	cmd.AddCommand(
		newURLsCmd(c),
		newProductsCmd(c),
		newRunCmd(c),
		newServeCmd(c),
		newRelayCmd(c),
		newConsumeCmd(c),
		newConfigCmd(c),
	)
	return cmd
}

func (c *cli) init() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Logging.Format = c.logFormat
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	c.cfg = cfg
	c.logger = log
	return nil
}

func (c *cli) openApp(ctx context.Context) (*app, error) {
	a, err := newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return nil, err
	}
	a.fetchers = c.fetchers
	return a, nil
}

// headless resolves the --headless flag against the configured default.
func (c *cli) headless(cmd *cobra.Command, flag bool) bool {
	if cmd.Flags().Changed("headless") {
		return flag
	}
	return c.cfg.Browser.Headless
}
