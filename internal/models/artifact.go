package models

import "time"

// URLArtifact is returned by the URL discovery pipeline.
type URLArtifact struct {
	RunID       string         `json:"run_id"`
	URLFilePath string         `json:"url_file_path"`
	SearchTerms []string       `json:"search_terms"`
	TotalURLs   int            `json:"total_urls"`
	PerTerm     map[string]int `json:"per_term"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ProductArtifact is returned by the product detail pipeline.
type ProductArtifact struct {
	RunID           string    `json:"run_id"`
	ProductFilePath string    `json:"product_file_path"`
	CSVFilePath     string    `json:"csv_file_path,omitempty"`
	SourceURLFile   string    `json:"source_url_file"`
	TotalURLs       int       `json:"total_urls"`
	ScrapedCount    int       `json:"scraped_count"`
	FailedCount     int       `json:"failed_count"`
	CreatedAt       time.Time `json:"created_at"`
}
