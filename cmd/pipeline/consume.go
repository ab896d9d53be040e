package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-pipeline/internal/events"
	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
)

var errRedisDisabled = errors.New("consume needs redis.enabled")

func newConsumeCmd(c *cli) *cobra.Command {
	var (
		group          string
		name           string
		scrapeProducts bool
		headless       bool
	)

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Follow pipeline events on the Redis stream",
		Long: `consume reads pipeline events through a Redis consumer group and logs
them. With --scrape-products every URLS_DISCOVERED event starts a product run
over the URL file it announces.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.cfg.Redis.Enabled {
				return errRedisDisabled
			}

			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if name == "" {
				host, _ := os.Hostname()
				name = fmt.Sprintf("%s-%d", host, os.Getpid())
			}

			consumer := events.NewConsumer(a.redis, events.ConsumerConfig{
				Stream: c.cfg.Redis.Stream,
				Group:  group,
				Name:   name,
			}, a.logger)

			consumer.HandleAll(func(_ context.Context, e *events.Event) error {
				a.logger.Info("pipeline event", "type", e.EventType, "run_id", e.RunID, "pipeline", e.Pipeline)
				return nil
			})

			if scrapeProducts {
				h := c.headless(cmd, headless)
				deps := a.deps()
				consumer.Handle(events.EventTypeURLsDiscovered, func(ctx context.Context, e *events.Event) error {
					var artifact models.URLArtifact
					if err := e.DecodePayload(&artifact); err != nil {
						return fmt.Errorf("decode url artifact: %w", err)
					}
					if artifact.TotalURLs == 0 {
						a.logger.Info("url run found nothing, skipping", "run_id", e.RunID)
						return nil
					}

					p, err := pipeline.NewProductPipeline(a.productConfig(artifact.URLFilePath, h), deps)
					if err != nil {
						return err
					}
					result, err := p.Run(ctx)
					if err != nil {
						return err
					}
					a.logger.Info("product run finished from event",
						"source_run_id", e.RunID,
						"product_file", result.ProductFilePath,
						"scraped", result.ScrapedCount)
					return nil
				})
			}

			if err := consumer.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&group, "group", "pipeline-consumer-group", "consumer group name")
	cmd.Flags().StringVar(&name, "name", "", "consumer name (default host-pid)")
	cmd.Flags().BoolVar(&scrapeProducts, "scrape-products", false, "run the products stage for every URLS_DISCOVERED event")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")

	return cmd
}
