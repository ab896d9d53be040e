package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maltedev/amazon-pipeline/internal/config"
)

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := marshalConfig(c.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// marshalConfig renders cfg with secrets masked.
func marshalConfig(cfg *config.Config) ([]byte, error) {
	masked := *cfg
	if masked.Database.Password != "" {
		masked.Database.Password = "********"
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = "********"
	}

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
