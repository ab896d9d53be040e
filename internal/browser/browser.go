package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/amazon-pipeline/internal/fetcher"
	"github.com/maltedev/amazon-pipeline/internal/parser"
	"github.com/maltedev/amazon-pipeline/internal/retry"
)

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	policy  retry.Policy
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	// ProxyServer is handed to Chromium as-is.
	ProxyServer  string
	ExtraHeaders map[string]string
	MaxAttempts  int
	RetryDelay   time.Duration
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "America/New_York",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
		MaxAttempts: 3,
		RetryDelay:  time.Second,
	}
}

func launchOptions(opts *Options) playwright.BrowserTypeLaunchOptions {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}
	return launchOpts
}

func contextOptions(opts *Options) playwright.BrowserNewContextOptions {
	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	if opts.AcceptLanguage != "" {
		headers["Accept-Language"] = opts.AcceptLanguage
	}

	return playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(launchOptions(opts))
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(contextOptions(opts))
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: context,
		opts:    opts,
		policy:  newPolicy(opts),
		logger:  logger.With("component", "browser"),
	}, nil
}

func newPolicy(opts *Options) retry.Policy {
	return retry.NewExponentialPolicy(opts.MaxAttempts, opts.RetryDelay, 10*opts.RetryDelay,
		fetcher.ErrBlocked, fetcher.ErrNotFound)
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Fetch renders url in a fresh tab and returns the resulting HTML.
func (b *Browser) Fetch(ctx context.Context, url string) (*fetcher.Page, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	return b.NavigateWithRetry(ctx, &playwrightTab{page: page}, url)
}

// tab is the slice of playwright.Page that navigation needs.
type tab interface {
	Goto(url string, timeout time.Duration) (status int, err error)
	Content() (string, error)
}

type playwrightTab struct {
	page playwright.Page
}

func (t *playwrightTab) Goto(url string, timeout time.Duration) (int, error) {
	resp, err := t.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 200, nil
	}
	return resp.Status(), nil
}

func (t *playwrightTab) Content() (string, error) {
	return t.page.Content()
}

// NavigateWithRetry loads url, retrying transient failures per the browser's
// retry policy. Bot-check pages and 404s are returned at once.
func (b *Browser) NavigateWithRetry(ctx context.Context, t tab, url string) (*fetcher.Page, error) {
	var result *fetcher.Page

	err := retry.Do(ctx, b.policy, func(ctx context.Context, attempt int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			b.logger.Info("retrying navigation", "attempt", attempt, "url", url)
		}

		status, err := t.Goto(url, b.gotoTimeout(ctx))
		if err != nil {
			b.logger.Error("navigation failed", "error", err, "attempt", attempt, "url", url)
			return fmt.Errorf("navigate %s: %w", url, err)
		}
		if err := fetcher.StatusError(status); err != nil {
			return fmt.Errorf("navigate %s: %w", url, err)
		}

		html, err := t.Content()
		if err != nil {
			return fmt.Errorf("failed to get page content: %w", err)
		}
		if err := DetectBotCheck(html); err != nil {
			b.logger.Warn("bot check page detected", "url", url)
			return err
		}

		result = &fetcher.Page{URL: url, StatusCode: status, HTML: html}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *Browser) gotoTimeout(ctx context.Context) time.Duration {
	timeout := b.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	return timeout
}

// DetectBotCheck reports fetcher.ErrBlocked for captcha and robot check
// pages. No attempt is made to get past them.
func DetectBotCheck(html string) error {
	if parser.IsBotCheck(html) {
		return fetcher.ErrBlocked
	}
	return nil
}
