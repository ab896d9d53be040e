// Package fetchertest provides an in-memory fetcher.Fetcher and HTML
// builders for tests that exercise scraping without a network.
package fetchertest

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/maltedev/amazon-pipeline/internal/fetcher"
)

// Site serves canned pages keyed by URL. Unknown URLs return
// fetcher.ErrNotFound.
type Site struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	hits   map[string]int
	order  []string
	closed bool
}

func NewSite() *Site {
	return &Site{
		pages: make(map[string]string),
		errs:  make(map[string]error),
		hits:  make(map[string]int),
	}
}

func (s *Site) Handle(url, body string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = body
	return s
}

func (s *Site) Fail(url string, err error) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[url] = err
	return s
}

func (s *Site) Fetch(ctx context.Context, url string) (*fetcher.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[url]++
	s.order = append(s.order, url)

	if err, ok := s.errs[url]; ok {
		return nil, err
	}
	body, ok := s.pages[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, fetcher.ErrNotFound)
	}
	return &fetcher.Page{URL: url, StatusCode: 200, HTML: body}, nil
}

func (s *Site) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Hits returns how often url was fetched.
func (s *Site) Hits(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[url]
}

// Requests returns every fetched URL in request order.
func (s *Site) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Site) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Result is one search result tile.
type Result struct {
	ASIN      string
	Title     string
	Sponsored bool
}

// SearchPage renders a search results page. An empty next omits the
// pagination link.
func SearchPage(next string, results ...Result) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="s-main-slot">`)
	for _, r := range results {
		fmt.Fprintf(&b, `<div data-component-type="s-search-result" data-asin="%s">`, r.ASIN)
		if r.Sponsored {
			b.WriteString(`<span class="puis-sponsored-label-text">Sponsored</span>`)
		}
		fmt.Fprintf(&b, `<h2><a href="/item/dp/%s/ref=sr_1"><span>%s</span></a></h2></div>`,
			r.ASIN, html.EscapeString(r.Title))
	}
	b.WriteString(`</div>`)
	if next != "" {
		fmt.Fprintf(&b, `<a class="s-pagination-item s-pagination-next" href="%s">Next</a>`, html.EscapeString(next))
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

// ProductPage renders a minimal product detail page.
func ProductPage(title, price string) string {
	return fmt.Sprintf(`<html><body>
<span id="productTitle">%s</span>
<a id="bylineInfo">Brand: Acme</a>
<div id="corePriceDisplay_desktop_feature_div"><span class="a-price"><span class="a-offscreen">%s</span></span></div>
<div id="availability"><span>In Stock</span></div>
</body></html>`, html.EscapeString(title), html.EscapeString(price))
}

// BotCheckPage renders Amazon's robot check interstitial.
func BotCheckPage() string {
	return `<html><head><title>Robot Check</title></head><body>
<p>Enter the characters you see below</p><input id="captchacharacters"></body></html>`
}
