package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/curator/internal/extract"
	"github.com/hazyhaar/curator/internal/fetch"
	"github.com/hazyhaar/curator/internal/store"
)

// ClassifyConfig configures one classify run.
type ClassifyConfig struct {
	// Limit caps the number of records claimed. <= 0: all matching.
	Limit int

	// MinRelevancy skips records whose collect_relevancy is below it.
	// Records without a relevancy (manual adds) always qualify.
	// nil: no filter.
	MinRelevancy *float64

	// Source restricts the batch to one ingestion label.
	Source string

	// RetryErrors requeues this queue's error records before claiming.
	RetryErrors bool

	Logger *slog.Logger
}

func (c *ClassifyConfig) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ClassifyWorker processes classify records: fetch the candidate page
// and ask the model whether it belongs in the dataset.
type ClassifyWorker struct {
	store      *store.Store
	content    ContentSource
	classifier Classifier
	pre        *extract.Preprocessor
	cfg        ClassifyConfig
}

// NewClassifyWorker wires a classify worker.
func NewClassifyWorker(st *store.Store, content ContentSource, classifier Classifier, cfg ClassifyConfig) *ClassifyWorker {
	cfg.defaults()
	return &ClassifyWorker{
		store:      st,
		content:    content,
		classifier: classifier,
		pre:        extract.New(),
		cfg:        cfg,
	}
}

// Run processes one batch, with the same error contract as the collect
// worker: record failures are absorbed, internal failures abort.
func (w *ClassifyWorker) Run(ctx context.Context) (*RunStats, error) {
	log := w.cfg.Logger
	stats := newRunStats("classify")
	defer stats.finish()

	if w.cfg.RetryErrors {
		n, err := w.store.ResetToNew(ctx, store.KindClassify, store.ResetOptions{Source: w.cfg.Source})
		if err != nil {
			return stats, fmt.Errorf("classify: requeue errors: %w", err)
		}
		stats.Requeued = n
		if n > 0 {
			log.Info("classify: requeued error records", "count", n)
		}
	}

	recs, err := w.store.ScanClassify(ctx, store.ScanClassifyOptions{
		Statuses:     []store.Status{store.StatusNew},
		Source:       w.cfg.Source,
		MinRelevancy: w.cfg.MinRelevancy,
		Limit:        w.cfg.Limit,
	})
	if err != nil {
		return stats, fmt.Errorf("classify: scan: %w", err)
	}
	log.Info("classify: batch claimed", "records", len(recs), "limit", w.cfg.Limit)

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Processed++
		if err := w.process(ctx, rec, stats); err != nil {
			return stats, err
		}
	}

	stats.finish()
	log.Info("classify: run finished", "summary", stats.Summary())
	return stats, nil
}

func (w *ClassifyWorker) process(ctx context.Context, rec *store.ClassifyRecord, stats *RunStats) error {
	log := w.cfg.Logger.With("url", rec.URL)

	body, cached, err := w.content.Get(ctx, store.KindClassify, rec.URL)
	if cached {
		stats.Cached++
	} else if err == nil {
		stats.Fetched++
	}
	if err != nil {
		if errors.Is(err, fetch.ErrFetchFailed) {
			log.Warn("classify: fetch failed", "error", err)
			stats.Errored++
			return w.markError(ctx, rec.URL, store.StatusScrapeError, err)
		}
		return fmt.Errorf("classify: get content %s: %w", rec.URL, err)
	}

	doc, err := w.pre.Preprocess(body, rec.URL)
	if err != nil {
		log.Warn("classify: preprocess failed", "error", err)
		stats.Errored++
		return w.markError(ctx, rec.URL, store.StatusClassifyError, err)
	}

	res, usage, err := w.classifier.Classify(ctx, rec.URL, doc)
	stats.Usage.Add(usage)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("classify: classification failed", "error", err)
		stats.Errored++
		return w.markError(ctx, rec.URL, store.StatusClassifyError, err)
	}

	if err := w.store.MarkClassifyDone(ctx, rec.URL, res, &doc.Stats); err != nil {
		if errors.Is(err, store.ErrNotNew) {
			log.Warn("classify: record claimed elsewhere, result discarded")
			return nil
		}
		return err
	}
	stats.Done++
	log.Info("classify: record done",
		"relevance", res.AISafetyRelevance,
		"inclusion", res.ShallowReviewInclusion,
		"cached", cached)
	return nil
}

func (w *ClassifyWorker) markError(ctx context.Context, url string, st store.Status, cause error) error {
	err := w.store.MarkClassifyError(ctx, url, st, cause.Error())
	if err != nil && !errors.Is(err, store.ErrNotNew) {
		return err
	}
	return nil
}
