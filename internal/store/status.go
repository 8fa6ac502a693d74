package store

import (
	"errors"
	"fmt"
)

// Status of a queue record. Each table admits its own closed subset,
// see Kind.ValidStatus.
type Status string

const (
	StatusNew           Status = "new"
	StatusScrapeError   Status = "scrape_error"
	StatusExtractError  Status = "extract_error"
	StatusClassifyError Status = "classify_error"
	StatusDone          Status = "done"
)

// Kind names one of the two work queues.
type Kind string

const (
	KindCollect  Kind = "collect"
	KindClassify Kind = "classify"
)

var (
	// ErrNotNew is returned by Mark operations when the record is no
	// longer in status new (already processed by another runner, or
	// requeued meanwhile).
	ErrNotNew = errors.New("store: record is not in status new")

	// ErrInvalidStatus is returned when a status does not belong to the
	// queue kind it is used with.
	ErrInvalidStatus = errors.New("store: invalid status for kind")

	// ErrInvalidKind is returned for a Kind outside {collect, classify}.
	ErrInvalidKind = errors.New("store: invalid kind")
)

// Valid reports whether k is a known queue kind.
func (k Kind) Valid() bool {
	return k == KindCollect || k == KindClassify
}

// Statuses returns the closed status set of the kind.
func (k Kind) Statuses() []Status {
	switch k {
	case KindCollect:
		return []Status{StatusNew, StatusScrapeError, StatusExtractError, StatusDone}
	case KindClassify:
		return []Status{StatusNew, StatusScrapeError, StatusClassifyError, StatusDone}
	}
	return nil
}

// ErrorStatuses returns the error subset of the kind's status set.
func (k Kind) ErrorStatuses() []Status {
	switch k {
	case KindCollect:
		return []Status{StatusScrapeError, StatusExtractError}
	case KindClassify:
		return []Status{StatusScrapeError, StatusClassifyError}
	}
	return nil
}

// ValidStatus reports whether st belongs to the kind's status set.
func (k Kind) ValidStatus(st Status) bool {
	for _, s := range k.Statuses() {
		if s == st {
			return true
		}
	}
	return false
}

// IsError reports whether st is an error status of the kind.
func (k Kind) IsError(st Status) bool {
	for _, s := range k.ErrorStatuses() {
		if s == st {
			return true
		}
	}
	return false
}

// ValidTransition reports whether a record of kind k may move from one
// status to another. Legal moves: new→done, new→error, error→new
// (requeue) and done→new (forced requeue, guarded by the caller).
func ValidTransition(k Kind, from, to Status) bool {
	if !k.ValidStatus(from) || !k.ValidStatus(to) {
		return false
	}
	switch {
	case from == StatusNew:
		return to == StatusDone || k.IsError(to)
	case k.IsError(from), from == StatusDone:
		return to == StatusNew
	}
	return false
}

// ParseStatuses converts raw strings into statuses of the given kind.
func ParseStatuses(k Kind, raw []string) ([]Status, error) {
	out := make([]Status, 0, len(raw))
	for _, r := range raw {
		st := Status(r)
		if !k.ValidStatus(st) {
			return nil, fmt.Errorf("%w: %q for %s", ErrInvalidStatus, r, k)
		}
		out = append(out, st)
	}
	return out, nil
}
