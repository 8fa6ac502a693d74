// Package fetch retrieves page content for the pipeline workers.
//
// It provides two Fetcher implementations — plain HTTP and a stealth
// headless browser — plus a Cache that fronts them with the scrape
// table and on-disk content files, so a URL is fetched at most once
// per run family.
package fetch

import (
	"context"
	"errors"
)

// ErrFetchFailed marks errors caused by the remote side (network,
// HTTP status, navigation). Workers translate it into scrape_error;
// anything not wrapping it is an internal failure that aborts the run.
var ErrFetchFailed = errors.New("fetch: fetch failed")

// Result is the outcome of a successful fetch.
type Result struct {
	Body       []byte
	StatusCode int
}

// Fetcher retrieves the rendered content of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}
