package main

import (
	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	var (
		terms    []string
		target   int
		headless bool
	)

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Discover URLs and scrape their products in one go",
		Example: `  pipeline run --term "standing desk" --target-links 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			h := c.headless(cmd, headless)
			urls, err := runURLs(cmd, a, a.urlConfig(terms, target, h))
			if err != nil {
				return err
			}
			printURLArtifact(cmd, urls)
			if urls.TotalURLs == 0 {
				c.logger.Info("url run found nothing, skipping products", "run_id", urls.RunID)
				return nil
			}

			products, err := runProducts(cmd, a, a.productConfig(urls.URLFilePath, h))
			if err != nil {
				return err
			}
			printProductArtifact(cmd, products)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&terms, "term", "t", nil, "search term (repeatable)")
	cmd.Flags().IntVarP(&target, "target-links", "n", 10, "product links to collect per term")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	_ = cmd.MarkFlagRequired("term")

	return cmd
}
