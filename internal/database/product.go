package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-pipeline/internal/models"
)

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is one row of pipeline_runs.
type RunRecord struct {
	RunID        string
	Pipeline     string
	Status       RunStatus
	ArtifactPath string
	Source       string
	Total        int
	Succeeded    int
	Failed       int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

const upsertProductSQL = `
	INSERT INTO products (
		asin, url, title, brand, category, price_amount, price_currency,
		rating, review_count, availability, features, images, dimensions,
		weight, last_run_id, scraped_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
	)
	ON CONFLICT (asin) DO UPDATE SET
		url = EXCLUDED.url,
		title = EXCLUDED.title,
		brand = EXCLUDED.brand,
		category = EXCLUDED.category,
		price_amount = EXCLUDED.price_amount,
		price_currency = EXCLUDED.price_currency,
		rating = EXCLUDED.rating,
		review_count = EXCLUDED.review_count,
		availability = EXCLUDED.availability,
		features = EXCLUDED.features,
		images = EXCLUDED.images,
		dimensions = EXCLUDED.dimensions,
		weight = EXCLUDED.weight,
		last_run_id = EXCLUDED.last_run_id,
		scraped_at = EXCLUDED.scraped_at,
		updated_at = CURRENT_TIMESTAMP`

const insertRunSQL = `
	INSERT INTO pipeline_runs (
		run_id, pipeline, status, artifact_path, source,
		total, succeeded, failed, error_message, started_at, finished_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
	)
	ON CONFLICT (run_id) DO UPDATE SET
		status = EXCLUDED.status,
		artifact_path = EXCLUDED.artifact_path,
		total = EXCLUDED.total,
		succeeded = EXCLUDED.succeeded,
		failed = EXCLUDED.failed,
		error_message = EXCLUDED.error_message,
		finished_at = EXCLUDED.finished_at`

// UpsertProduct inserts p or refreshes the stored row for its ASIN.
func (db *DB) UpsertProduct(ctx context.Context, runID string, p *models.Product) error {
	return upsertProduct(ctx, db.pool, runID, p)
}

// RecordRun stores the summary of a finished pipeline run. Outbox events
// passed along are inserted in the same transaction as the run row.
func (db *DB) RecordRun(ctx context.Context, run RunRecord, outbox ...*OutboxEvent) error {
	if len(outbox) == 0 {
		return insertRun(ctx, db.pool, run)
	}
	return db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		return db.insertOutbox(ctx, tx, outbox)
	})
}

// SaveProductRun upserts every product, the run summary and any outbox
// events in one transaction.
func (db *DB) SaveProductRun(ctx context.Context, run RunRecord, products []*models.Product, outbox ...*OutboxEvent) error {
	return db.Transaction(ctx, func(tx pgx.Tx) error {
		for _, p := range products {
			if err := upsertProduct(ctx, tx, run.RunID, p); err != nil {
				return err
			}
		}
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		return db.insertOutbox(ctx, tx, outbox)
	})
}

func (db *DB) insertOutbox(ctx context.Context, tx pgx.Tx, outbox []*OutboxEvent) error {
	repo := NewOutboxRepository(db)
	for _, e := range outbox {
		if err := repo.InsertWith(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func upsertProduct(ctx context.Context, q execer, runID string, p *models.Product) error {
	features, err := jsonColumn(p.Features)
	if err != nil {
		return err
	}
	images, err := jsonColumn(p.Images)
	if err != nil {
		return err
	}
	dimensions, err := jsonColumn(p.Dimensions)
	if err != nil {
		return err
	}
	weight, err := jsonColumn(p.Weight)
	if err != nil {
		return err
	}

	var amount *float64
	var currency *string
	if p.Price != nil {
		amount = &p.Price.Amount
		currency = &p.Price.Currency
	}

	_, err = q.Exec(ctx, upsertProductSQL,
		p.ASIN, p.URL, p.Title, nullString(p.Brand), nullString(p.Category),
		amount, currency, p.Rating, p.ReviewCount, nullString(p.Availability),
		features, images, dimensions, weight, runID, p.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ASIN, err)
	}
	return nil
}

func insertRun(ctx context.Context, q execer, run RunRecord) error {
	_, err := q.Exec(ctx, insertRunSQL,
		run.RunID, run.Pipeline, string(run.Status), nullString(run.ArtifactPath),
		nullString(run.Source), run.Total, run.Succeeded, run.Failed,
		nullString(run.ErrorMessage), run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// jsonColumn marshals v for a JSONB column; nil and empty slices map to NULL.
func jsonColumn(v any) ([]byte, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case *models.Dimension:
		if t == nil {
			return nil, nil
		}
	case *models.Weight:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return data, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
