package curator

import "github.com/hazyhaar/curator/internal/store"

// Aliases so embedders work against the root package without importing
// internals.
type (
	Kind                 = store.Kind
	Status               = store.Status
	ScrapeRecord         = store.ScrapeRecord
	CollectRecord        = store.CollectRecord
	ClassifyRecord       = store.ClassifyRecord
	ExtractionResult     = store.ExtractionResult
	ClassificationResult = store.ClassificationResult
	Link                 = store.Link
	KindStats            = store.KindStats
	ScrapeStats          = store.ScrapeStats
)

const (
	KindCollect  = store.KindCollect
	KindClassify = store.KindClassify

	StatusNew           = store.StatusNew
	StatusScrapeError   = store.StatusScrapeError
	StatusExtractError  = store.StatusExtractError
	StatusClassifyError = store.StatusClassifyError
	StatusDone          = store.StatusDone
)
