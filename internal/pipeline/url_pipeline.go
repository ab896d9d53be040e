package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-pipeline/internal/database"
	"github.com/maltedev/amazon-pipeline/internal/events"
	"github.com/maltedev/amazon-pipeline/internal/metrics"
	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/scraper"
)

// URLConfig configures a URL discovery run.
type URLConfig struct {
	SearchTerms []string `json:"search_terms"`
	// TargetLinks is the number of product links wanted per term.
	TargetLinks      int  `json:"target_links"`
	Headless         bool `json:"headless"`
	MaxPages         int  `json:"max_pages,omitempty"`
	IncludeSponsored bool `json:"include_sponsored,omitempty"`
}

// Validate trims the search terms and rejects configs that cannot produce
// any links.
func (c *URLConfig) Validate() error {
	terms := make([]string, 0, len(c.SearchTerms))
	seen := make(map[string]struct{}, len(c.SearchTerms))
	for _, t := range c.SearchTerms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return fmt.Errorf("%w: at least one search term is required", ErrInvalidConfig)
	}
	if c.TargetLinks < 1 {
		return fmt.Errorf("%w: target links must be at least 1, got %d", ErrInvalidConfig, c.TargetLinks)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max pages cannot be negative", ErrInvalidConfig)
	}
	if c.MaxPages == 0 {
		c.MaxPages = 5
	}
	c.SearchTerms = terms
	return nil
}

// URLPipeline discovers product URLs for a set of search terms.
type URLPipeline struct {
	cfg    URLConfig
	deps   Deps
	logger *slog.Logger
}

func NewURLPipeline(cfg URLConfig, deps Deps) (*URLPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.NewFetcher == nil {
		return nil, fmt.Errorf("%w: a fetcher factory is required", ErrInvalidConfig)
	}
	deps.defaults()

	return &URLPipeline{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "url_pipeline"),
	}, nil
}

// Run crawls every term, writes the URL file and returns its artifact. A
// term whose first page cannot be fetched contributes no links; the run only
// fails when every term does.
func (p *URLPipeline) Run(ctx context.Context) (artifact *models.URLArtifact, err error) {
	runID := uuid.New().String()
	started := p.deps.Now()
	logger := p.logger.With("run_id", runID)

	logger.Info("starting url pipeline",
		"terms", p.cfg.SearchTerms,
		"target_links", p.cfg.TargetLinks,
		"max_pages", p.cfg.MaxPages,
		"headless", p.cfg.Headless)

	defer func() {
		metrics.ObserveRun(NameURLs, runStatus(err), p.deps.Now().Sub(started))
		if err != nil {
			p.recordFailure(ctx, logger, runID, started, err)
		}
	}()

	f, err := p.deps.NewFetcher(p.cfg.Headless)
	if err != nil {
		return nil, fmt.Errorf("open fetcher: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warn("failed to close fetcher", "error", cerr)
		}
	}()

	search := scraper.NewSearchScraper(p.deps.scraperOptions(f, logger))
	crawler := scraper.NewSearchCrawler(search, scraper.CrawlOptions{
		MaxPages:         p.cfg.MaxPages,
		IncludeSponsored: p.cfg.IncludeSponsored,
	}, logger)

	var (
		links   []models.ProductLink
		perTerm = make(map[string]int, len(p.cfg.SearchTerms))
		errs    []error
	)
	for _, term := range p.cfg.SearchTerms {
		termLinks, err := crawler.CrawlTerm(ctx, term, p.cfg.TargetLinks)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("url pipeline canceled: %w", ctxErr)
		}
		if err != nil {
			logger.Error("search term failed", "term", term, "error", err)
			errs = append(errs, err)
			perTerm[term] = 0
			continue
		}
		perTerm[term] = len(termLinks)
		links = append(links, termLinks...)
	}

	if len(errs) == len(p.cfg.SearchTerms) {
		return nil, fmt.Errorf("%w: %w", ErrAllTermsFailed, errors.Join(errs...))
	}

	dir, err := p.deps.Store.RunDir(started)
	if err != nil {
		return nil, err
	}

	path, err := p.deps.Store.SaveURLFile(dir, &models.URLFile{
		RunID:       runID,
		GeneratedAt: p.deps.Now().UTC(),
		SearchTerms: p.cfg.SearchTerms,
		TargetLinks: p.cfg.TargetLinks,
		Links:       links,
	})
	if err != nil {
		return nil, err
	}

	artifact = &models.URLArtifact{
		RunID:       runID,
		URLFilePath: path,
		SearchTerms: p.cfg.SearchTerms,
		TotalURLs:   len(links),
		PerTerm:     perTerm,
		CreatedAt:   p.deps.Now().UTC(),
	}
	metrics.ObserveLinks(len(links))

	logger.Info("url pipeline completed", "urls", len(links), "path", path)

	p.deps.finish(ctx, logger, database.RunRecord{
		RunID:        runID,
		Pipeline:     NameURLs,
		Status:       database.RunCompleted,
		ArtifactPath: path,
		Source:       strings.Join(p.cfg.SearchTerms, ", "),
		Total:        len(links),
		Succeeded:    len(links),
		StartedAt:    started,
		FinishedAt:   p.deps.Now(),
	}, nil, &events.Event{
		EventType: events.EventTypeURLsDiscovered,
		RunID:     runID,
		Pipeline:  NameURLs,
		Payload:   artifact,
	})

	return artifact, nil
}

func (p *URLPipeline) recordFailure(ctx context.Context, logger *slog.Logger, runID string, started time.Time, runErr error) {
	logger.Error("url pipeline failed", "error", runErr)

	ctx = context.WithoutCancel(ctx)
	p.deps.finish(ctx, logger, database.RunRecord{
		RunID:        runID,
		Pipeline:     NameURLs,
		Status:       database.RunFailed,
		Source:       strings.Join(p.cfg.SearchTerms, ", "),
		ErrorMessage: runErr.Error(),
		StartedAt:    started,
		FinishedAt:   p.deps.Now(),
	}, nil, &events.Event{
		EventType: events.EventTypeRunFailed,
		RunID:     runID,
		Pipeline:  NameURLs,
		Payload:   map[string]string{"error": runErr.Error()},
	})
}
