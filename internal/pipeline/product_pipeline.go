package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/amazon-pipeline/internal/database"
	"github.com/maltedev/amazon-pipeline/internal/events"
	"github.com/maltedev/amazon-pipeline/internal/metrics"
	"github.com/maltedev/amazon-pipeline/internal/models"
	"github.com/maltedev/amazon-pipeline/internal/parser"
	"github.com/maltedev/amazon-pipeline/internal/scraper"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"

	DefaultConcurrency = 2
)

// ProductConfig configures a product detail run.
type ProductConfig struct {
	URLFilePath string `json:"url_file_path"`
	Headless    bool   `json:"headless"`
	// Concurrency bounds the number of product pages in flight.
	Concurrency int `json:"concurrency,omitempty"`
	// OutputFormat adds a CSV export next to the JSON file when set to csv.
	OutputFormat string `json:"output_format,omitempty"`
}

func (c *ProductConfig) Validate() error {
	c.URLFilePath = strings.TrimSpace(c.URLFilePath)
	if c.URLFilePath == "" {
		return fmt.Errorf("%w: url file path is required", ErrInvalidConfig)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency cannot be negative", ErrInvalidConfig)
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	switch c.OutputFormat {
	case "":
		c.OutputFormat = FormatJSON
	case FormatJSON, FormatCSV:
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, c.OutputFormat)
	}
	return nil
}

// ProductPipeline scrapes the detail page of every URL in a URL file.
type ProductPipeline struct {
	cfg    ProductConfig
	deps   Deps
	logger *slog.Logger
}

func NewProductPipeline(cfg ProductConfig, deps Deps) (*ProductPipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.NewFetcher == nil {
		return nil, fmt.Errorf("%w: a fetcher factory is required", ErrInvalidConfig)
	}
	deps.defaults()

	return &ProductPipeline{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "product_pipeline"),
	}, nil
}

// Run scrapes every unique URL of the input file. Individual product
// failures are recorded in the product file and never abort the run; only
// an unreadable input, a fetcher that cannot start, cancellation or a failed
// write end it early.
func (p *ProductPipeline) Run(ctx context.Context) (artifact *models.ProductArtifact, err error) {
	runID := uuid.New().String()
	started := p.deps.Now()
	logger := p.logger.With("run_id", runID)

	defer func() {
		metrics.ObserveRun(NameProducts, runStatus(err), p.deps.Now().Sub(started))
		if err != nil {
			p.recordFailure(ctx, logger, runID, started, err)
		}
	}()

	urlFile, err := p.deps.Store.LoadURLFile(p.cfg.URLFilePath)
	if err != nil {
		return nil, err
	}
	urls := uniqueURLs(urlFile.URLs())

	logger.Info("starting product pipeline",
		"url_file", p.cfg.URLFilePath,
		"urls", len(urls),
		"concurrency", p.cfg.Concurrency,
		"headless", p.cfg.Headless)

	f, err := p.deps.NewFetcher(p.cfg.Headless)
	if err != nil {
		return nil, fmt.Errorf("open fetcher: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warn("failed to close fetcher", "error", cerr)
		}
	}()

	s := scraper.NewAmazonScraper(p.deps.scraperOptions(f, logger))
	results := p.scrapeAll(ctx, logger, s, urls)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("product pipeline canceled: %w", ctxErr)
	}

	file := &models.ProductFile{
		RunID:         runID,
		GeneratedAt:   p.deps.Now().UTC(),
		SourceURLFile: p.cfg.URLFilePath,
		Products:      make([]*models.Product, 0, len(results)),
	}
	for _, r := range results {
		if r.Success() {
			file.Products = append(file.Products, r.Product)
			continue
		}
		file.Failures = append(file.Failures, r)
	}
	file.ScrapedCount = len(file.Products)
	file.FailedCount = len(file.Failures)

	dir, err := p.deps.Store.RunDir(started)
	if err != nil {
		return nil, err
	}
	path, err := p.deps.Store.SaveProductFile(dir, file)
	if err != nil {
		return nil, err
	}

	artifact = &models.ProductArtifact{
		RunID:           runID,
		ProductFilePath: path,
		SourceURLFile:   p.cfg.URLFilePath,
		TotalURLs:       len(urls),
		ScrapedCount:    file.ScrapedCount,
		FailedCount:     file.FailedCount,
		CreatedAt:       p.deps.Now().UTC(),
	}

	if p.cfg.OutputFormat == FormatCSV {
		csvPath, err := p.deps.Store.SaveProductCSV(dir, runID, file.Products)
		if err != nil {
			return nil, err
		}
		artifact.CSVFilePath = csvPath
	}

	metrics.ObserveProducts(file.ScrapedCount, file.FailedCount)
	logger.Info("product pipeline completed",
		"scraped", file.ScrapedCount,
		"failed", file.FailedCount,
		"path", path)

	p.deps.finish(ctx, logger, database.RunRecord{
		RunID:        runID,
		Pipeline:     NameProducts,
		Status:       database.RunCompleted,
		ArtifactPath: path,
		Source:       p.cfg.URLFilePath,
		Total:        len(urls),
		Succeeded:    file.ScrapedCount,
		Failed:       file.FailedCount,
		StartedAt:    started,
		FinishedAt:   p.deps.Now(),
	}, file.Products, &events.Event{
		EventType: events.EventTypeProductsScraped,
		RunID:     runID,
		Pipeline:  NameProducts,
		Payload:   artifact,
	})

	return artifact, nil
}

// scrapeAll returns one result per input URL, in input order.
func (p *ProductPipeline) scrapeAll(ctx context.Context, logger *slog.Logger, s scraper.Scraper, urls []string) []models.ScrapeResult {
	results := make([]models.ScrapeResult, len(urls))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for i, u := range urls {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = models.ScrapeResult{URL: u}
			if ctx.Err() != nil {
				results[i].Error = ctx.Err().Error()
				return nil
			}

			product, err := s.ScrapeProduct(ctx, u)
			if err != nil {
				logger.Warn("failed to scrape product", "url", u, "error", err)
				results[i].Error = err.Error()
				return nil
			}

			logger.Info("scraped product", "asin", product.ASIN, "title", product.Title)
			results[i].Product = product
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (p *ProductPipeline) recordFailure(ctx context.Context, logger *slog.Logger, runID string, started time.Time, runErr error) {
	logger.Error("product pipeline failed", "error", runErr)

	ctx = context.WithoutCancel(ctx)
	p.deps.finish(ctx, logger, database.RunRecord{
		RunID:        runID,
		Pipeline:     NameProducts,
		Status:       database.RunFailed,
		Source:       p.cfg.URLFilePath,
		ErrorMessage: runErr.Error(),
		StartedAt:    started,
		FinishedAt:   p.deps.Now(),
	}, nil, &events.Event{
		EventType: events.EventTypeRunFailed,
		RunID:     runID,
		Pipeline:  NameProducts,
		Payload:   map[string]string{"error": runErr.Error()},
	})
}

// uniqueURLs drops repeated products, keyed by ASIN when the URL has one,
// keeping the first occurrence.
func uniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		key := u
		if asin, ok := parser.ExtractASIN(u); ok {
			key = asin
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}
