// Package pipeline runs the curation workers: collect (link
// extraction fan-out) and classify, plus the requeue controller.
//
// Workers claim batches of new records oldest-first and process them
// one by one. A record's status is only mutated after its external
// calls (fetch, model) finish, so a crash mid-record leaves it new and
// the next run picks it up again; the dedup inserts and conditional
// status updates in the store make that re-processing harmless.
// Per-record failures are recorded on the record and absorbed — only
// store or filesystem errors abort a run.
package pipeline

import (
	"context"

	"github.com/hazyhaar/curator/internal/extract"
	"github.com/hazyhaar/curator/internal/llm"
	"github.com/hazyhaar/curator/internal/store"
)

// ContentSource yields page content, cached or fresh. Implemented by
// fetch.Cache.
type ContentSource interface {
	Get(ctx context.Context, kind store.Kind, url string) (body []byte, cached bool, err error)
}

// LinkExtractor finds research links on an aggregator page.
// Implemented by llm.Extractor.
type LinkExtractor interface {
	ExtractLinks(ctx context.Context, url string, doc *extract.Document) (*store.ExtractionResult, llm.Usage, error)
}

// Classifier judges one candidate page. Implemented by llm.Classifier.
type Classifier interface {
	Classify(ctx context.Context, url string, doc *extract.Document) (*store.ClassificationResult, llm.Usage, error)
}
