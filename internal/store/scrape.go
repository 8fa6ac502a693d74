package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hazyhaar/curator/dbopen"
)

// HashURL returns the cache identity of a URL: hex sha256 of "kind:url".
// The kind prefix keeps collect and classify fetches of the same URL as
// distinct cache entries.
func HashURL(kind Kind, url string) string {
	sum := sha256.Sum256([]byte(string(kind) + ":" + url))
	return hex.EncodeToString(sum[:])
}

// UpsertScrape records a fetch attempt, replacing any previous row for
// the same URL.
func (s *Store) UpsertScrape(ctx context.Context, rec *ScrapeRecord) error {
	if rec.FetchedAt == 0 {
		rec.FetchedAt = time.Now().UnixMilli()
	}
	if rec.URLHash == "" {
		rec.URLHash = HashURL(Kind(rec.Kind), rec.URL)
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO scrape (url, url_hash, kind, fetched_at, status_code, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			url_hash=excluded.url_hash, kind=excluded.kind,
			fetched_at=excluded.fetched_at, status_code=excluded.status_code,
			error=excluded.error`,
		rec.URL, rec.URLHash, rec.Kind, rec.FetchedAt,
		rec.StatusCode, nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("upsert scrape %s: %w", rec.URL, err)
	}
	return nil
}

// GetScrape returns the cache row for a URL, or nil if never fetched.
func (s *Store) GetScrape(ctx context.Context, url string) (*ScrapeRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT url, url_hash, kind, fetched_at, status_code, error
		FROM scrape WHERE url = ?`, url)
	return scanScrape(row)
}

// GetScrapeByHash returns the cache row for a url_hash, or nil.
func (s *Store) GetScrapeByHash(ctx context.Context, hash string) (*ScrapeRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT url, url_hash, kind, fetched_at, status_code, error
		FROM scrape WHERE url_hash = ?`, hash)
	return scanScrape(row)
}

// DeleteScrape drops the cache row for a URL (the next fetch is a miss).
func (s *Store) DeleteScrape(ctx context.Context, url string) error {
	_, err := dbopen.Exec(ctx, s.DB, `DELETE FROM scrape WHERE url = ?`, url)
	return err
}

func scanScrape(row *sql.Row) (*ScrapeRecord, error) {
	var rec ScrapeRecord
	var errMsg sql.NullString
	err := row.Scan(&rec.URL, &rec.URLHash, &rec.Kind, &rec.FetchedAt,
		&rec.StatusCode, &errMsg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan scrape: %w", err)
	}
	rec.Error = errMsg.String
	return &rec, nil
}
