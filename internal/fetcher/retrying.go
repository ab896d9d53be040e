package fetcher

import (
	"context"

	"github.com/maltedev/amazon-pipeline/internal/retry"
)

// Retrying wraps a Fetcher and retries failed fetches per policy.
type Retrying struct {
	next   Fetcher
	policy retry.Policy
}

func WithRetry(next Fetcher, policy retry.Policy) *Retrying {
	return &Retrying{next: next, policy: policy}
}

func (r *Retrying) Fetch(ctx context.Context, url string) (*Page, error) {
	var page *Page
	err := retry.Do(ctx, r.policy, func(ctx context.Context, _ int) error {
		p, err := r.next.Fetch(ctx, url)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (r *Retrying) Close() error {
	return r.next.Close()
}
