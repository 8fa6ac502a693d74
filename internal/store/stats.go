package store

import (
	"context"
	"fmt"
)

// KindStats is the status breakdown of one queue.
type KindStats struct {
	Kind     Kind           `json:"kind"`
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// ScrapeStats summarises the page cache.
type ScrapeStats struct {
	Total   int `json:"total"`
	Success int `json:"success"` // 2xx status codes
	Errored int `json:"errored"` // rows with a cached error
}

// StatusCounts returns the per-status record counts of a queue.
func (s *Store) StatusCounts(ctx context.Context, kind Kind) (*KindStats, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM `+string(kind)+` GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("status counts %s: %w", kind, err)
	}
	defer rows.Close()

	stats := &KindStats{Kind: kind, ByStatus: map[Status]int{}}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[Status(st)] = n
		stats.Total += n
	}
	return stats, rows.Err()
}

// StatusCountsBySource returns per-source status breakdowns of a queue.
// Records with a NULL source are grouped under "".
func (s *Store) StatusCountsBySource(ctx context.Context, kind Kind) (map[string]map[Status]int, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT COALESCE(source, ''), status, COUNT(*)
		FROM `+string(kind)+` GROUP BY source, status`)
	if err != nil {
		return nil, fmt.Errorf("status counts by source %s: %w", kind, err)
	}
	defer rows.Close()

	out := map[string]map[Status]int{}
	for rows.Next() {
		var src, st string
		var n int
		if err := rows.Scan(&src, &st, &n); err != nil {
			return nil, err
		}
		if out[src] == nil {
			out[src] = map[Status]int{}
		}
		out[src][Status(st)] = n
	}
	return out, rows.Err()
}

// ScrapeCounts summarises the page cache table.
func (s *Store) ScrapeCounts(ctx context.Context) (*ScrapeStats, error) {
	var stats ScrapeStats
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status_code BETWEEN 200 AND 299 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM scrape`).Scan(&stats.Total, &stats.Success, &stats.Errored)
	if err != nil {
		return nil, fmt.Errorf("scrape counts: %w", err)
	}
	return &stats, nil
}
