package models

import "time"

// ProductLink is a product URL discovered on a search results page.
type ProductLink struct {
	SearchTerm string `json:"search_term"`
	ASIN       string `json:"asin"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Price      string `json:"price,omitempty"`
	Rank       int    `json:"rank"`
	Page       int    `json:"page"`
	Sponsored  bool   `json:"sponsored,omitempty"`
}

// URLFile is the document the URL pipeline persists and the product
// pipeline consumes.
type URLFile struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	SearchTerms []string      `json:"search_terms"`
	TargetLinks int           `json:"target_links"`
	Links       []ProductLink `json:"links"`
}

// URLs returns the link URLs in file order.
func (f *URLFile) URLs() []string {
	urls := make([]string, 0, len(f.Links))
	for _, l := range f.Links {
		urls = append(urls, l.URL)
	}
	return urls
}

// ProductFile is the document the product pipeline persists.
type ProductFile struct {
	RunID         string         `json:"run_id"`
	GeneratedAt   time.Time      `json:"generated_at"`
	SourceURLFile string         `json:"source_url_file"`
	ScrapedCount  int            `json:"scraped_count"`
	FailedCount   int            `json:"failed_count"`
	Products      []*Product     `json:"products"`
	Failures      []ScrapeResult `json:"failures,omitempty"`
}
