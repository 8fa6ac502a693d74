package store

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all three tables without error.
	// WHY: Schema is the foundation — if it fails, nothing works.
	s := openTestStore(t)
	for _, table := range []string{"scrape", "collect", "classify"} {
		var name string
		err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestSchemaStatusCheck(t *testing.T) {
	// WHAT: The CHECK constraint rejects statuses outside the closed set.
	// WHY: Defence in depth below the Go-level status validation.
	s := openTestStore(t)
	_, err := s.DB.Exec(`INSERT INTO collect (url, status, added_at) VALUES ('u', 'bogus', 1)`)
	if err == nil {
		t.Fatal("expected CHECK violation for bogus status")
	}
	// classify_error belongs to classify, not collect.
	_, err = s.DB.Exec(`INSERT INTO collect (url, status, added_at) VALUES ('u', 'classify_error', 1)`)
	if err == nil {
		t.Fatal("expected CHECK violation for classify_error in collect")
	}
}

func TestHashURL(t *testing.T) {
	// WHAT: HashURL is deterministic and kind-scoped.
	// WHY: The hash names on-disk cache files; collect and classify
	// fetches of the same URL must not collide.
	h1 := HashURL(KindCollect, "https://example.com")
	h2 := HashURL(KindCollect, "https://example.com")
	h3 := HashURL(KindClassify, "https://example.com")
	if h1 != h2 {
		t.Error("hash not deterministic")
	}
	if h1 == h3 {
		t.Error("kinds must hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
}

func TestUpsertScrape(t *testing.T) {
	// WHAT: Upsert inserts then replaces the row for the same URL.
	// WHY: Re-fetching a page must overwrite the old cache entry.
	s := openTestStore(t)
	ctx := context.Background()

	code := int64(200)
	if err := s.UpsertScrape(ctx, &ScrapeRecord{
		URL: "https://example.com", Kind: "collect", StatusCode: &code,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetScrape(ctx, "https://example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("scrape row not found")
	}
	if got.StatusCode == nil || *got.StatusCode != 200 {
		t.Errorf("status_code = %v, want 200", got.StatusCode)
	}
	if got.URLHash == "" {
		t.Error("url_hash not filled in")
	}
	if got.FetchedAt == 0 {
		t.Error("fetched_at not filled in")
	}

	// Replace with an error row.
	if err := s.UpsertScrape(ctx, &ScrapeRecord{
		URL: "https://example.com", Kind: "collect", Error: "connection refused",
	}); err != nil {
		t.Fatalf("upsert replace: %v", err)
	}
	got, _ = s.GetScrape(ctx, "https://example.com")
	if got.Error != "connection refused" {
		t.Errorf("error = %q", got.Error)
	}
	if got.StatusCode != nil {
		t.Errorf("status_code should be cleared, got %v", *got.StatusCode)
	}

	byHash, err := s.GetScrapeByHash(ctx, got.URLHash)
	if err != nil || byHash == nil {
		t.Fatalf("get by hash: %v %v", byHash, err)
	}
}

func TestGetScrapeMissing(t *testing.T) {
	// WHAT: Looking up a never-fetched URL returns nil, nil.
	// WHY: Cache misses are the normal path, not an error.
	s := openTestStore(t)
	got, err := s.GetScrape(context.Background(), "https://nowhere.invalid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing row")
	}
}

func TestDeleteScrape(t *testing.T) {
	// WHAT: DeleteScrape drops the cache row.
	// WHY: Forced re-fetch needs a way to invalidate one entry.
	s := openTestStore(t)
	ctx := context.Background()
	s.UpsertScrape(ctx, &ScrapeRecord{URL: "u", Kind: "collect"})
	if err := s.DeleteScrape(ctx, "u"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.GetScrape(ctx, "u")
	if got != nil {
		t.Fatal("row still present after delete")
	}
}
