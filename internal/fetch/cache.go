package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/curator/internal/store"
)

// CacheConfig configures the scrape cache.
type CacheConfig struct {
	// Dir holds the content files (<url_hash>.html.gz).
	Dir string

	// MaxAge makes cache entries stale after this duration; stale
	// entries are re-fetched. 0 = entries never go stale.
	MaxAge time.Duration

	Logger *slog.Logger
}

// Cache fronts a Fetcher with the scrape table plus on-disk content
// files. Failed fetches are cached too: asking again for a URL that
// errored returns the cached error without touching the network, until
// the entry goes stale or is deleted.
type Cache struct {
	store   *store.Store
	fetcher Fetcher
	cfg     CacheConfig
}

// NewCache creates a Cache over the given store and fetcher.
func NewCache(st *store.Store, f Fetcher, cfg CacheConfig) *Cache {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Cache{store: st, fetcher: f, cfg: cfg}
}

// Get returns the content of url, fetching on a cache miss or stale
// entry. cached reports whether the network was avoided. Fetch
// failures (fresh or cached) wrap ErrFetchFailed; other errors are
// internal (store or filesystem) and should abort the caller's run.
func (c *Cache) Get(ctx context.Context, kind store.Kind, url string) (body []byte, cached bool, err error) {
	hash := store.HashURL(kind, url)

	rec, err := c.store.GetScrape(ctx, url)
	if err != nil {
		return nil, false, fmt.Errorf("cache: lookup %s: %w", url, err)
	}
	if rec != nil && !c.stale(rec.FetchedAt) {
		if rec.Error != "" {
			return nil, true, fmt.Errorf("%w: cached: %s", ErrFetchFailed, rec.Error)
		}
		data, err := c.readContent(rec.URLHash)
		if err == nil {
			return data, true, nil
		}
		// Row without file: fall through to a re-fetch.
		c.cfg.Logger.Warn("cache: content file unreadable, re-fetching",
			"url", url, "error", err)
	}

	res, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, ErrFetchFailed) {
			srec := &store.ScrapeRecord{URL: url, URLHash: hash, Kind: string(kind), Error: err.Error()}
			if res != nil && res.StatusCode != 0 {
				code := int64(res.StatusCode)
				srec.StatusCode = &code
			}
			if uerr := c.store.UpsertScrape(ctx, srec); uerr != nil {
				return nil, false, fmt.Errorf("cache: record fetch error: %w", uerr)
			}
		}
		return nil, false, err
	}

	if err := c.writeContent(hash, res.Body); err != nil {
		return nil, false, err
	}
	code := int64(res.StatusCode)
	if err := c.store.UpsertScrape(ctx, &store.ScrapeRecord{
		URL: url, URLHash: hash, Kind: string(kind), StatusCode: &code,
	}); err != nil {
		return nil, false, fmt.Errorf("cache: record fetch: %w", err)
	}
	return res.Body, false, nil
}

func (c *Cache) stale(fetchedAt int64) bool {
	if c.cfg.MaxAge <= 0 {
		return false
	}
	return time.Since(time.UnixMilli(fetchedAt)) > c.cfg.MaxAge
}

func (c *Cache) contentPath(hash string) string {
	return filepath.Join(c.cfg.Dir, hash+".html.gz")
}

func (c *Cache) readContent(hash string) ([]byte, error) {
	f, err := os.Open(c.contentPath(hash))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cache: gzip %s: %w", hash, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func (c *Cache) writeContent(hash string, data []byte) error {
	if err := os.MkdirAll(c.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir: %w", err)
	}
	path := c.contentPath(hash)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: create %s: %w", tmp, err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache: write %s: %w", tmp, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache: close gzip %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
