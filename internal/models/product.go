package models

import (
	"time"
)

type Product struct {
	ASIN         string     `json:"asin"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Brand        string     `json:"brand,omitempty"`
	Category     string     `json:"category,omitempty"`
	Price        *Price     `json:"price,omitempty"`
	Rating       *float64   `json:"rating,omitempty"`
	ReviewCount  *int       `json:"review_count,omitempty"`
	Availability string     `json:"availability,omitempty"`
	Features     []string   `json:"features,omitempty"`
	Images       []string   `json:"images,omitempty"`
	Dimensions   *Dimension `json:"dimensions,omitempty"`
	Weight       *Weight    `json:"weight,omitempty"`
	ScrapedAt    time.Time  `json:"scraped_at"`
}

type Dimension struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"`
}

type Weight struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// ScrapeResult is the outcome for a single input URL.
type ScrapeResult struct {
	URL     string   `json:"url"`
	Product *Product `json:"product,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (r ScrapeResult) Success() bool {
	return r.Product != nil && r.Error == ""
}

func NewProduct(asin, url string) *Product {
	return &Product{
		ASIN:      asin,
		URL:       url,
		ScrapedAt: time.Now().UTC(),
	}
}

func (d *Dimension) IsValid() bool {
	return d != nil && d.Length > 0 && d.Width > 0 && d.Height > 0 && d.Unit != ""
}

func (w *Weight) IsValid() bool {
	return w != nil && w.Value > 0 && w.Unit != ""
}

func (p *Price) IsValid() bool {
	return p != nil && p.Amount >= 0 && p.Currency != ""
}

// Validate returns the list of problems that keep the product from counting
// as scraped. Only a title is mandatory; everything else is best effort.
func (p *Product) Validate() []string {
	var errors []string

	if p.ASIN == "" {
		errors = append(errors, "ASIN is required")
	}

	if p.Title == "" {
		errors = append(errors, "Title is required")
	}

	return errors
}
