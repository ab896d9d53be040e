package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/amazon-pipeline/internal/models"
)

type SearchCrawler struct {
	search           *SearchScraper
	logger           *slog.Logger
	maxPages         int
	includeSponsored bool
}

type CrawlOptions struct {
	MaxPages         int
	IncludeSponsored bool
}

func NewSearchCrawler(search *SearchScraper, opts CrawlOptions, logger *slog.Logger) *SearchCrawler {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchCrawler{
		search:           search,
		logger:           logger.With("component", "search_crawler"),
		maxPages:         opts.MaxPages,
		includeSponsored: opts.IncludeSponsored,
	}
}

// CrawlTerm walks the result pages for term until target unique products are
// collected, pagination ends, or maxPages is reached. A failure on the first
// page is returned; later failures end the crawl with what was found so far.
func (sc *SearchCrawler) CrawlTerm(ctx context.Context, term string, target int) ([]models.ProductLink, error) {
	sc.logger.Info("starting search crawl", "term", term, "target", target)

	seen := make(map[string]struct{})
	links := make([]models.ProductLink, 0, target)
	nextURL := ""

	pageNum := 1
	for ; pageNum <= sc.maxPages && len(links) < target; pageNum++ {
		if err := ctx.Err(); err != nil {
			return links, err
		}

		var (
			page *SearchPage
			err  error
		)
		if nextURL != "" {
			page, err = sc.search.ScrapeSearchURL(ctx, term, pageNum, nextURL)
		} else {
			page, err = sc.search.ScrapeSearchPage(ctx, term, pageNum)
		}
		if err != nil {
			if pageNum == 1 {
				return nil, fmt.Errorf("crawl %q: %w", term, err)
			}
			sc.logger.Warn("search page failed, keeping partial results",
				"term", term, "page", pageNum, "error", err)
			break
		}

		for _, r := range page.Results {
			if len(links) >= target {
				break
			}
			if r.Sponsored && !sc.includeSponsored {
				continue
			}
			if _, dup := seen[r.ASIN]; dup {
				continue
			}
			seen[r.ASIN] = struct{}{}
			links = append(links, models.ProductLink{
				SearchTerm: term,
				ASIN:       r.ASIN,
				URL:        r.URL,
				Title:      r.Title,
				Price:      r.Price,
				Rank:       len(links) + 1,
				Page:       pageNum,
				Sponsored:  r.Sponsored,
			})
		}

		if page.NextURL == "" {
			sc.logger.Info("no more pages found", "term", term, "page", pageNum)
			break
		}
		nextURL = page.NextURL
	}

	sc.logger.Info("search crawl completed", "term", term, "links", len(links))
	return links, nil
}
