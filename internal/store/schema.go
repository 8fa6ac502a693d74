package store

import "database/sql"

// Schema holds the three pipeline tables. CHECK constraints mirror the
// closed status sets enforced in Go; the status+added_at indexes back the
// oldest-first work scans.
const Schema = `
-- Page cache: one row per fetched URL, success or failure
CREATE TABLE IF NOT EXISTS scrape (
    url         TEXT PRIMARY KEY,
    url_hash    TEXT NOT NULL UNIQUE,
    kind        TEXT NOT NULL,
    fetched_at  INTEGER NOT NULL,
    status_code INTEGER,
    error       TEXT
);

-- Link-extraction queue
CREATE TABLE IF NOT EXISTS collect (
    url          TEXT PRIMARY KEY,
    status       TEXT NOT NULL DEFAULT 'new'
                 CHECK (status IN ('new','scrape_error','extract_error','done')),
    source       TEXT,
    added_at     INTEGER NOT NULL,
    processed_at INTEGER,
    data         TEXT,
    preprocess   TEXT,
    error        TEXT
);
CREATE INDEX IF NOT EXISTS idx_collect_status ON collect(status, added_at);

-- Classification queue
CREATE TABLE IF NOT EXISTS classify (
    url               TEXT PRIMARY KEY,
    status            TEXT NOT NULL DEFAULT 'new'
                      CHECK (status IN ('new','scrape_error','classify_error','done')),
    source            TEXT,
    source_url        TEXT,
    collect_relevancy REAL,
    added_at          INTEGER NOT NULL,
    processed_at      INTEGER,
    data              TEXT,
    preprocess        TEXT,
    error             TEXT
);
CREATE INDEX IF NOT EXISTS idx_classify_status ON classify(status, added_at);
CREATE INDEX IF NOT EXISTS idx_classify_source ON classify(source);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
