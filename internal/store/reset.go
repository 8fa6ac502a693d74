package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/curator/dbopen"
)

// ResetOptions select which records ResetToNew requeues.
type ResetOptions struct {
	Statuses    []Status // default: the kind's error statuses
	Source      string   // restrict to one source label
	IncludeDone bool     // allow requeuing done records
}

// ResetToNew requeues records of the given kind back to status new,
// clearing processed_at, data, preprocess and error so a later run
// re-processes them from scratch. Returns the number of records moved.
//
// By default only error records are touched; done records require
// IncludeDone, and status new is never a valid selector.
func (s *Store) ResetToNew(ctx context.Context, kind Kind, opt ResetOptions) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	statuses := opt.Statuses
	if len(statuses) == 0 {
		statuses = kind.ErrorStatuses()
	}
	for _, st := range statuses {
		if !ValidTransition(kind, st, StatusNew) {
			return 0, fmt.Errorf("%w: cannot reset %q to new", ErrInvalidStatus, st)
		}
		if st == StatusDone && !opt.IncludeDone {
			return 0, fmt.Errorf("%w: resetting done records requires IncludeDone", ErrInvalidStatus)
		}
	}

	q := `UPDATE ` + string(kind) + ` SET status='new', processed_at=NULL,
		data=NULL, preprocess=NULL, error=NULL
		WHERE status IN (` + inPlaceholders(len(statuses)) + `)`
	args := statusArgs(statuses)
	if opt.Source != "" {
		q += ` AND source = ?`
		args = append(args, opt.Source)
	}

	res, err := dbopen.Exec(ctx, s.DB, q, args...)
	if err != nil {
		return 0, fmt.Errorf("reset %s to new: %w", kind, err)
	}
	return res.RowsAffected()
}
