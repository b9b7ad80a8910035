package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

var ErrClosed = errors.New("browser is closed")

// launchArgs keep Chromium stable inside containers. The automation flags
// are left alone, so pages see an ordinary automated browser.
var launchArgs = []string{
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--disable-setuid-sandbox",
}

// tab is the slice of a playwright page the renderer needs.
type tab interface {
	Goto(url string, timeout time.Duration) error
	Content() (string, error)
	Close() error
}

// Browser renders product pages in headless Chromium so client-side
// scripts can populate the markup before extraction.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	open    func() (tab, error)
	logger  *slog.Logger
}

type Options struct {
	Headless          bool
	Timeout           time.Duration
	NavigationRetries int
	SettleDelay       time.Duration
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	AcceptLanguage    string
	TimezoneID        string
	Locale            string
	ExtraHeaders      map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:          true,
		Timeout:           30 * time.Second,
		NavigationRetries: 2,
		SettleDelay:       2 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		AcceptLanguage:    "en-PH,en;q=0.9",
		TimezoneID:        "Asia/Manila",
		Locale:            "en-PH",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
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

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args:     launchArgs,
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := map[string]string{"Accept-Language": opts.AcceptLanguage}
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	b := &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}
	b.open = b.newTab
	return b, nil
}

func (b *Browser) newTab() (tab, error) {
	if b.context == nil {
		return nil, ErrClosed
	}

	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))
	return &playwrightTab{page: page}, nil
}

// Render loads url in a fresh page and returns the markup once scripts have
// had SettleDelay to run. The page is closed when ctx is done, which aborts
// any pending playwright call.
func (b *Browser) Render(ctx context.Context, url string) ([]byte, error) {
	t, err := b.open()
	if err != nil {
		return nil, err
	}

	type result struct {
		html string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		html, err := b.load(ctx, t, url)
		done <- result{html: html, err: err}
	}()

	select {
	case res := <-done:
		if err := t.Close(); err != nil {
			b.logger.Debug("failed to close page", "error", err)
		}
		if res.err != nil {
			return nil, res.err
		}
		return []byte(res.html), nil
	case <-ctx.Done():
		_ = t.Close()
		return nil, fmt.Errorf("render aborted: %w", ctx.Err())
	}
}

func (b *Browser) load(ctx context.Context, t tab, url string) (string, error) {
	if err := b.navigateWithRetry(ctx, t, url); err != nil {
		return "", err
	}

	if b.opts.SettleDelay > 0 {
		select {
		case <-time.After(b.opts.SettleDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	html, err := t.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

func (b *Browser) navigateWithRetry(ctx context.Context, t tab, url string) error {
	attempts := b.opts.NavigationRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			select {
			case <-time.After(time.Duration(i) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := t.Goto(url, b.opts.Timeout)
		if err == nil {
			return nil
		}

		lastErr = err
		b.logger.Warn("navigation failed", "error", err, "attempt", i+1)
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
		b.context = nil
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

type playwrightTab struct {
	page playwright.Page
}

func (p *playwrightTab) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *playwrightTab) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightTab) Close() error {
	return p.page.Close()
}
