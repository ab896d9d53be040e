package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
)

func newURLsCmd(c *cli) *cobra.Command {
	var (
		terms    []string
		target   int
		headless bool
	)

	cmd := &cobra.Command{
		Use:   "urls",
		Short: "Discover product URLs for search terms",
		Example: `  pipeline urls --term "wireless mouse" --term "usb hub" --target-links 20
  pipeline urls -t laptop -n 50 --headless=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			artifact, err := runURLs(cmd, a, a.urlConfig(terms, target, c.headless(cmd, headless)))
			if err != nil {
				return err
			}
			printURLArtifact(cmd, artifact)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&terms, "term", "t", nil, "search term (repeatable)")
	cmd.Flags().IntVarP(&target, "target-links", "n", 10, "product links to collect per term")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	_ = cmd.MarkFlagRequired("term")

	return cmd
}

func runURLs(cmd *cobra.Command, a *app, cfg pipeline.URLConfig) (*models.URLArtifact, error) {
	p, err := pipeline.NewURLPipeline(cfg, a.deps())
	if err != nil {
		return nil, err
	}
	return p.Run(cmd.Context())
}

func printURLArtifact(cmd *cobra.Command, artifact *models.URLArtifact) {
	fmt.Fprintf(cmd.OutOrStdout(), "URLs saved to: %s\n", artifact.URLFilePath)
}
