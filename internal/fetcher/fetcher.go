// Package fetcher defines how pages are retrieved for parsing.
package fetcher

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBlocked     = errors.New("blocked by Amazon anti-bot")
	ErrRateLimited = errors.New("rate limited by Amazon")
	ErrNotFound    = errors.New("page not found")
)

// Page is a fetched document.
type Page struct {
	URL        string
	StatusCode int
	HTML       string
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Close() error
}

// Mode selects the Fetcher implementation.
type Mode string

const (
	ModeBrowser Mode = "browser"
	ModeStatic  Mode = "static"
)

// StatusError maps HTTP status codes onto the sentinel errors above.
func StatusError(code int) error {
	switch {
	case code == 404:
		return ErrNotFound
	case code == 429 || code == 503:
		return ErrRateLimited
	case code >= 400:
		return &HTTPError{StatusCode: code}
	default:
		return nil
	}
}

type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}
