package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/curator/dbopen"
)

// InsertCollect adds a URL to the collect queue in status new. Returns
// false when the URL is already present (any status); the existing row
// is left untouched. A single INSERT OR IGNORE, so concurrent inserters
// cannot race.
func (s *Store) InsertCollect(ctx context.Context, url, source string) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB,
		`INSERT OR IGNORE INTO collect (url, status, source, added_at)
		VALUES (?, 'new', ?, ?)`,
		url, nullString(source), time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert collect %s: %w", url, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetCollect returns the collect record for a URL, or nil.
func (s *Store) GetCollect(ctx context.Context, url string) (*CollectRecord, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+collectCols+` FROM collect WHERE url = ?`, url)
	rec, err := scanCollect(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ScanCollect returns records in the given statuses, oldest first.
// limit <= 0 means no limit.
func (s *Store) ScanCollect(ctx context.Context, statuses []Status, limit int) ([]*CollectRecord, error) {
	if len(statuses) == 0 {
		statuses = []Status{StatusNew}
	}
	for _, st := range statuses {
		if !KindCollect.ValidStatus(st) {
			return nil, fmt.Errorf("%w: %q for collect", ErrInvalidStatus, st)
		}
	}
	q := `SELECT ` + collectCols + ` FROM collect
		WHERE status IN (` + inPlaceholders(len(statuses)) + `)
		ORDER BY added_at ASC, url ASC`
	args := statusArgs(statuses)
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("scan collect: %w", err)
	}
	defer rows.Close()

	var recs []*CollectRecord
	for rows.Next() {
		rec, err := scanCollect(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkCollectDone moves a new record to done, attaching the extraction
// payload. ErrNotNew if the record was processed or requeued meanwhile.
func (s *Store) MarkCollectDone(ctx context.Context, url string, data *ExtractionResult, pre *PreprocessStats) error {
	dataJSON, err := marshalPayload(data)
	if err != nil {
		return err
	}
	preJSON, err := marshalPayload(pre)
	if err != nil {
		return err
	}
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE collect SET status='done', processed_at=?, data=?, preprocess=?, error=NULL
		WHERE url=? AND status='new'`,
		time.Now().UnixMilli(), dataJSON, preJSON, url)
	if err != nil {
		return fmt.Errorf("mark collect done %s: %w", url, err)
	}
	return requireOneRow(res)
}

// MarkCollectError moves a new record to the given error status.
func (s *Store) MarkCollectError(ctx context.Context, url string, st Status, msg string) error {
	if !KindCollect.IsError(st) {
		return fmt.Errorf("%w: %q for collect", ErrInvalidStatus, st)
	}
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE collect SET status=?, processed_at=?, error=?, data=NULL, preprocess=NULL
		WHERE url=? AND status='new'`,
		string(st), time.Now().UnixMilli(), msg, url)
	if err != nil {
		return fmt.Errorf("mark collect error %s: %w", url, err)
	}
	return requireOneRow(res)
}

const collectCols = `url, status, source, added_at, processed_at, data, preprocess, error`

func scanCollect(scan func(...any) error) (*CollectRecord, error) {
	var rec CollectRecord
	var status string
	var source, data, pre, errMsg *string
	if err := scan(&rec.URL, &status, &source, &rec.AddedAt,
		&rec.ProcessedAt, &data, &pre, &errMsg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan collect: %w", err)
	}
	rec.Status = Status(status)
	if source != nil {
		rec.Source = *source
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

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotNew
	}
	return nil
}
