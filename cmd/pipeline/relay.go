package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-pipeline/internal/database"
)

func newRelayCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Forward outbox events from Postgres to the Redis stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !c.cfg.Database.Enabled || !c.cfg.Redis.Enabled {
				return errRelayDisabled
			}

			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			relay := database.NewRelay(a.db, a.redis, a.logger, database.RelayConfig{
				PollInterval: c.cfg.Database.PollInterval,
				BatchSize:    c.cfg.Database.BatchSize,
			})
			if err := relay.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
