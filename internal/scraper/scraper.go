package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maltedev/amazon-pipeline/internal/fetcher"
	"github.com/maltedev/amazon-pipeline/internal/metrics"
	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/parser"
	"github.com/maltedev/amazon-pipeline/internal/ratelimit"
)

var (
	ErrInvalidURL      = errors.New("invalid Amazon product URL")
	ErrProductNotFound = errors.New("product not found")
	ErrBlocked         = fetcher.ErrBlocked
	ErrRateLimited     = fetcher.ErrRateLimited
)

const DefaultBaseURL = "https://www.amazon.com"

type Scraper interface {
	ScrapeProduct(ctx context.Context, url string) (*models.Product, error)
	ScrapeByASIN(ctx context.Context, asin string) (*models.Product, error)
}

type Options struct {
	BaseURL string
	Fetcher fetcher.Fetcher
	Parser  parser.Parser
	Limiter ratelimit.RateLimiter
	Logger  *slog.Logger
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Parser == nil {
		o.Parser = parser.NewAmazonParser(o.BaseURL)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// pageLoader is the fetch path shared by search and product scraping:
// wait for the limiter, fetch, feed the outcome back, reject bot checks.
type pageLoader struct {
	fetcher fetcher.Fetcher
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
}

func (l *pageLoader) load(ctx context.Context, kind, url string) (string, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	page, err := l.fetcher.Fetch(ctx, url)
	if err == nil && parser.IsBotCheck(page.HTML) {
		err = ErrBlocked
	}

	feedback, _ := l.limiter.(ratelimit.Feedback)
	if err != nil {
		metrics.ObservePage(kind, resultLabel(err))
		if feedback != nil && (errors.Is(err, ErrBlocked) || errors.Is(err, ErrRateLimited)) {
			feedback.RecordError()
		}
		return "", fmt.Errorf("fetch %s page: %w", kind, err)
	}

	metrics.ObservePage(kind, "ok")
	if feedback != nil {
		feedback.RecordSuccess()
	}
	return page.HTML, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, fetcher.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
