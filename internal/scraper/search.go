package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/amazon-pipeline/internal/parser"
)

// SearchPage is one parsed page of search results.
type SearchPage struct {
	Term    string
	Page    int
	URL     string
	Results []parser.SearchResult
	NextURL string
}

type SearchScraper struct {
	baseURL string
	loader  *pageLoader
	parser  parser.Parser
	logger  *slog.Logger
}

func NewSearchScraper(opts Options) *SearchScraper {
	opts.defaults()
	logger := opts.Logger.With("component", "search_scraper")
	return &SearchScraper{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		loader:  &pageLoader{fetcher: opts.Fetcher, limiter: opts.Limiter, logger: logger},
		parser:  opts.Parser,
		logger:  logger,
	}
}

// ScrapeSearchPage fetches and parses result page number page for term.
func (s *SearchScraper) ScrapeSearchPage(ctx context.Context, term string, page int) (*SearchPage, error) {
	return s.ScrapeSearchURL(ctx, term, page, parser.SearchURL(s.baseURL, term, page))
}

// ScrapeSearchURL is ScrapeSearchPage for a URL taken from pagination links.
func (s *SearchScraper) ScrapeSearchURL(ctx context.Context, term string, page int, searchURL string) (*SearchPage, error) {
	s.logger.Info("scraping search results", "term", term, "page", page, "url", searchURL)

	html, err := s.loader.load(ctx, "search", searchURL)
	if err != nil {
		return nil, err
	}

	results, err := s.parser.ParseSearchResults(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page %d for %q: %w", page, term, err)
	}

	s.logger.Info("found products", "term", term, "page", page, "count", len(results))

	return &SearchPage{
		Term:    term,
		Page:    page,
		URL:     searchURL,
		Results: results,
		NextURL: s.parser.NextPageURL(html),
	}, nil
}
