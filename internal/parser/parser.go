package parser

import (
	"github.com/maltedev/amazon-pipeline/internal/models"
)

type Parser interface {
	ParseSearchResults(html string) ([]SearchResult, error)
	NextPageURL(html string) string
	ParseProductPage(html string, asin string) (*models.Product, error)
	ExtractDimensions(html string) (*models.Dimension, error)
	ExtractWeight(html string) (*models.Weight, error)
	ExtractPrice(html string) (*models.Price, error)
}

// SearchResult is a single organic result block on a search page.
type SearchResult struct {
	ASIN      string
	Title     string
	URL       string
	Price     string
	Sponsored bool
}
