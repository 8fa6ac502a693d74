package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/curator/dbopen"
)

// ClassifyInsert describes a candidate entering the classify queue.
type ClassifyInsert struct {
	URL              string
	Source           string   // "manual" or "collect"
	SourceURL        string   // collect page that linked here, if any
	CollectRelevancy *float64 // extraction-time relevancy, if any
}

// InsertClassify adds a URL to the classify queue in status new. Returns
// false when the URL is already present; duplicates from fan-out are
// silently ignored so re-running collect over the same pages is safe.
func (s *Store) InsertClassify(ctx context.Context, in ClassifyInsert) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`INSERT OR IGNORE INTO classify (url, status, source, source_url, collect_relevancy, added_at)
		VALUES (?, 'new', ?, ?, ?, ?)`,
		in.URL, nullString(in.Source), nullString(in.SourceURL),
		in.CollectRelevancy, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert classify %s: %w", in.URL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertClassifyBatch adds a batch of candidates in one transaction and
// returns how many were genuinely new. The collect fan-out uses this so
// a page's links land atomically; re-inserting known URLs is a no-op,
// like InsertClassify.
func (s *Store) InsertClassifyBatch(ctx context.Context, ins []ClassifyInsert) (int, error) {
	if len(ins) == 0 {
		return 0, nil
	}
	now := time.Now().UnixMilli()
	inserted := 0
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		inserted = 0
		for _, in := range ins {
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO classify (url, status, source, source_url, collect_relevancy, added_at)
				VALUES (?, 'new', ?, ?, ?, ?)`,
				in.URL, nullString(in.Source), nullString(in.SourceURL),
				in.CollectRelevancy, now)
			if err != nil {
				return fmt.Errorf("insert classify %s: %w", in.URL, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert classify batch: %w", err)
	}
	return inserted, nil
}

// GetClassify returns the classify record for a URL, or nil.
func (s *Store) GetClassify(ctx context.Context, url string) (*ClassifyRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+classifyCols+` FROM classify WHERE url = ?`, url)
	rec, err := scanClassify(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ScanClassifyOptions filter a classify work scan.
type ScanClassifyOptions struct {
	Statuses     []Status // default: {new}
	Source       string   // restrict to one source label
	MinRelevancy *float64 // records with NULL collect_relevancy always pass
	Limit        int      // <= 0: no limit
}

// ScanClassify returns records matching the options, oldest first.
func (s *Store) ScanClassify(ctx context.Context, opt ScanClassifyOptions) ([]*ClassifyRecord, error) {
	statuses := opt.Statuses
	if len(statuses) == 0 {
		statuses = []Status{StatusNew}
	}
	for _, st := range statuses {
		if !KindClassify.ValidStatus(st) {
			return nil, fmt.Errorf("%w: %q for classify", ErrInvalidStatus, st)
		}
	}

	q := `SELECT ` + classifyCols + ` FROM classify
		WHERE status IN (` + inPlaceholders(len(statuses)) + `)`
	args := statusArgs(statuses)
	if opt.Source != "" {
		q += ` AND source = ?`
		args = append(args, opt.Source)
	}
	if opt.MinRelevancy != nil {
		q += ` AND (collect_relevancy IS NULL OR collect_relevancy >= ?)`
		args = append(args, *opt.MinRelevancy)
	}
	q += ` ORDER BY added_at ASC, url ASC`
	if opt.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opt.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("scan classify: %w", err)
	}
	defer rows.Close()

	var recs []*ClassifyRecord
	for rows.Next() {
		rec, err := scanClassify(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkClassifyDone moves a new record to done with its classification.
func (s *Store) MarkClassifyDone(ctx context.Context, url string, data *ClassificationResult, pre *PreprocessStats) error {
	dataJSON, err := marshalPayload(data)
	if err != nil {
		return err
	}
	preJSON, err := marshalPayload(pre)
	if err != nil {
		return err
	}
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE classify SET status='done', processed_at=?, data=?, preprocess=?, error=NULL
		WHERE url=? AND status='new'`,
		time.Now().UnixMilli(), dataJSON, preJSON, url)
	if err != nil {
		return fmt.Errorf("mark classify done %s: %w", url, err)
	}
	return requireOneRow(res)
}

// MarkClassifyError moves a new record to the given error status.
func (s *Store) MarkClassifyError(ctx context.Context, url string, st Status, msg string) error {
	if !KindClassify.IsError(st) {
		return fmt.Errorf("%w: %q for classify", ErrInvalidStatus, st)
	}
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE classify SET status=?, processed_at=?, error=?, data=NULL, preprocess=NULL
		WHERE url=? AND status='new'`,
		string(st), time.Now().UnixMilli(), msg, url)
	if err != nil {
		return fmt.Errorf("mark classify error %s: %w", url, err)
	}
	return requireOneRow(res)
}

const classifyCols = `url, status, source, source_url, collect_relevancy, added_at, processed_at, data, preprocess, error`

func scanClassify(scan func(...any) error) (*ClassifyRecord, error) {
	var rec ClassifyRecord
	var status string
	var source, sourceURL, data, pre, errMsg *string
	if err := scan(&rec.URL, &status, &source, &sourceURL, &rec.CollectRelevancy,
		&rec.AddedAt, &rec.ProcessedAt, &data, &pre, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan classify: %w", err)
	}
	rec.Status = Status(status)
	if source != nil {
		rec.Source = *source
	}
	if sourceURL != nil {
		rec.SourceURL = *sourceURL
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	if err := unmarshalPayload(data, &rec.Data); err != nil {
		return nil, err
	}
	if err := unmarshalPayload(pre, &rec.Preprocess); err != nil {
		return nil, err
	}
	return &rec, nil
}
