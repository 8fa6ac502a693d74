package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures the headless-browser fetcher.
type BrowserConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// NavTimeout bounds navigation + load of one page. Default: 60s.
	NavTimeout time.Duration

	// SettleDelay is the wait after load for late JS content. Default: 2s.
	SettleDelay time.Duration

	// URLValidator validates URLs before navigation. Default: ValidateURL.
	URLValidator func(string) error

	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserFetcher renders pages in headless Chrome with stealth applied,
// for sites that serve bot walls to plain HTTP clients. Chrome is
// launched lazily on the first Fetch and reused until Close.
type BrowserFetcher struct {
	cfg  BrowserConfig
	mu   sync.Mutex
	b    *rod.Browser
	lnch *launcher.Launcher
}

// NewBrowser creates a BrowserFetcher. No Chrome is started yet.
func NewBrowser(cfg BrowserConfig) *BrowserFetcher {
	cfg.defaults()
	return &BrowserFetcher{cfg: cfg}
}

// Fetch navigates to the URL in a fresh stealth tab, scrolls to the
// bottom to trigger lazy loading, and returns the serialised DOM.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := f.cfg.URLValidator(url); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	b, err := f.browser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", ErrFetchFailed, url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		f.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	// Nudge lazy-loaded content into the DOM before serialising.
	if _, err := page.Context(navCtx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		f.cfg.Logger.Debug("browser: scroll failed", "url", url, "error", err)
	}
	select {
	case <-time.After(f.cfg.SettleDelay):
	case <-navCtx.Done():
	}

	res, err := page.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("%w: get DOM %s: %v", ErrFetchFailed, url, err)
	}

	// A rendered page has no transport status; report it as a 200.
	return &Result{Body: []byte(res.Value.Str()), StatusCode: 200}, nil
}

// Close shuts down the browser if one was launched.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.b != nil {
		f.b.Close()
		f.b = nil
	}
	if f.lnch != nil {
		f.lnch.Cleanup()
		f.lnch = nil
	}
	return nil
}

func (f *BrowserFetcher) browser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.b != nil {
		return f.b, nil
	}

	wsURL := f.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		f.lnch = l
		f.cfg.Logger.Info("browser: launched local chrome", "url", wsURL)
	} else {
		f.cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	f.b = b
	return b, nil
}
