package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-pipeline/internal/models"
)

var csvHeader = []string{
	"asin", "url", "title", "brand", "category", "price", "currency",
	"rating", "review_count", "availability", "scraped_at",
}

// SaveProductCSV writes one row per product next to the JSON file.
func (s *Store) SaveProductCSV(dir, runID string, products []*models.Product) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, p := range products {
		if err := w.Write(productRow(p)); err != nil {
			return "", fmt.Errorf("write csv row %s: %w", p.ASIN, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}

	path := filepath.Join(dir, fileName("products", runID, "csv"))
	if err := s.writeAtomic(path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("save product csv: %w", err)
	}
	return path, nil
}

func productRow(p *models.Product) []string {
	var price, currency, rating, reviews string
	if p.Price != nil {
		price = strconv.FormatFloat(p.Price.Amount, 'f', 2, 64)
		currency = p.Price.Currency
	}
	if p.Rating != nil {
		rating = strconv.FormatFloat(*p.Rating, 'f', 1, 64)
	}
	if p.ReviewCount != nil {
		reviews = strconv.Itoa(*p.ReviewCount)
	}

	return []string{
		p.ASIN,
		p.URL,
		p.Title,
		p.Brand,
		p.Category,
		price,
		currency,
		rating,
		reviews,
		strings.TrimSpace(p.Availability),
		p.ScrapedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
