package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/parser"
)

// AmazonScraper scrapes product detail pages.
type AmazonScraper struct {
	baseURL string
	loader  *pageLoader
	parser  parser.Parser
	logger  *slog.Logger
}

func NewAmazonScraper(opts Options) *AmazonScraper {
	opts.defaults()
	logger := opts.Logger.With("component", "product_scraper")
	return &AmazonScraper{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		loader:  &pageLoader{fetcher: opts.Fetcher, limiter: opts.Limiter, logger: logger},
		parser:  opts.Parser,
		logger:  logger,
	}
}

func (s *AmazonScraper) ScrapeProduct(ctx context.Context, url string) (*models.Product, error) {
	asin, err := ExtractASIN(url)
	if err != nil {
		return nil, err
	}

	return s.ScrapeByASIN(ctx, asin)
}

func (s *AmazonScraper) ScrapeByASIN(ctx context.Context, asin string) (*models.Product, error) {
	url := parser.CanonicalProductURL(s.baseURL, asin)
	s.logger.Info("scraping product", "asin", asin, "url", url)

	html, err := s.loader.load(ctx, "product", url)
	if err != nil {
		return nil, err
	}

	product, err := s.parser.ParseProductPage(html, asin)
	if err != nil {
		return nil, fmt.Errorf("failed to parse product: %w", err)
	}

	if problems := product.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrProductNotFound, asin, strings.Join(problems, ", "))
	}

	product.URL = url
	product.ASIN = asin

	return product, nil
}

// ExtractASIN returns the ASIN of an Amazon product URL or ErrInvalidURL.
func ExtractASIN(url string) (string, error) {
	asin, ok := parser.ExtractASIN(url)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	return asin, nil
}
