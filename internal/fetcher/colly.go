package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// CollyConfig controls the static fetcher.
type CollyConfig struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	RespectRobots  bool
	// Proxy overrides the proxy taken from the environment.
	Proxy *url.URL
}

// CollyFetcher retrieves pages over plain HTTP without a browser.
type CollyFetcher struct {
	cfg  CollyConfig
	base *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

func NewColly(cfg CollyConfig) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.WithTransport(newHTTPTransport(cfg.Proxy))
	c.SetRequestTimeout(cfg.Timeout)

	return &CollyFetcher{
		cfg:  cfg,
		base: c,
	}
}

func (f *CollyFetcher) Fetch(ctx context.Context, target string) (*Page, error) {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}

	var (
		page     Page
		fetchErr error
	)
	f.configureHooks(collector, target, &page, &fetchErr)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fetchErr
		}
		if err != nil {
			return nil, fmt.Errorf("colly visit failed: %w", err)
		}
	}

	return &page, nil
}

func (f *CollyFetcher) configureHooks(hooks collectorHooks, target string, page *Page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(r.Body),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			if statusErr := StatusError(r.StatusCode); statusErr != nil {
				*fetchErr = fmt.Errorf("fetch %s: %w", target, statusErr)
				return
			}
		}
		*fetchErr = fmt.Errorf("fetch %s: %w", target, err)
	})
}

func (f *CollyFetcher) Close() error {
	return nil
}

func newHTTPTransport(proxy *url.URL) *http.Transport {
	proxyFunc := http.ProxyFromEnvironment
	if proxy != nil {
		proxyFunc = http.ProxyURL(proxy)
	}
	return &http.Transport{
		Proxy: proxyFunc,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
