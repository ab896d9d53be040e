package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/pipeline"
)

func newProductsCmd(c *cli) *cobra.Command {
	var (
		urlFile  string
		headless bool
	)

	cmd := &cobra.Command{
		Use:     "products",
		Short:   "Scrape product details for every URL in a URL file",
		Example: `  pipeline products --url-file data/20260504_103000/urls_1a2b3c4d.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			artifact, err := runProducts(cmd, a, a.productConfig(urlFile, c.headless(cmd, headless)))
			if err != nil {
				return err
			}
			printProductArtifact(cmd, artifact)
			return nil
		},
	}

	cmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "URL file written by the urls stage, or a JSON array of URLs")
	cmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	_ = cmd.MarkFlagRequired("url-file")

	return cmd
}

func runProducts(cmd *cobra.Command, a *app, cfg pipeline.ProductConfig) (*models.ProductArtifact, error) {
	p, err := pipeline.NewProductPipeline(cfg, a.deps())
	if err != nil {
		return nil, err
	}
	return p.Run(cmd.Context())
}

func printProductArtifact(cmd *cobra.Command, artifact *models.ProductArtifact) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Products saved to: %s\n", artifact.ProductFilePath)
	if artifact.CSVFilePath != "" {
		fmt.Fprintf(out, "CSV saved to: %s\n", artifact.CSVFilePath)
	}
	fmt.Fprintf(out, "Success: %d\n", artifact.ScrapedCount)
}
