package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	Timeout   time.Duration // Default: 30s.
	MaxBytes  int64         // Max response body size. Default: 10MB.
	UserAgent string
	// URLValidator validates URLs before fetch. Default: ValidateURL.
	URLValidator func(string) error
}

func (c *HTTPConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "curator/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
}

// HTTPFetcher retrieves pages with net/http. Good enough for feeds and
// plain sites; bot-walled pages need the browser fetcher.
type HTTPFetcher struct {
	client *http.Client
	config HTTPConfig
}

// NewHTTP creates an HTTPFetcher with URL validation on redirects.
func NewHTTP(cfg HTTPConfig) *HTTPFetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves a URL. Non-2xx statuses and transport failures are
// reported as ErrFetchFailed so callers can mark the record instead of
// aborting the run.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := f.config.URLValidator(url); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{StatusCode: resp.StatusCode},
			fmt.Errorf("%w: http %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := LimitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}

	return &Result{Body: body, StatusCode: resp.StatusCode}, nil
}
