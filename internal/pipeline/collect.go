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

// CollectConfig configures one collect run.
type CollectConfig struct {
	// Limit caps the number of records claimed. <= 0: all new records.
	Limit int

	// MinLinkRelevancy is the fan-out threshold: extracted links scored
	// below it are not inserted into the classify queue. Unscored links
	// always fan out. Default: 0.3.
	MinLinkRelevancy float64

	// RetryErrors requeues this queue's error records before claiming.
	RetryErrors bool

	Logger *slog.Logger
}

func (c *CollectConfig) defaults() {
	if c.MinLinkRelevancy <= 0 {
		c.MinLinkRelevancy = 0.3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// CollectWorker processes collect records: fetch the aggregator page,
// extract its research links, fan them out into the classify queue.
type CollectWorker struct {
	store     *store.Store
	content   ContentSource
	extractor LinkExtractor
	pre       *extract.Preprocessor
	cfg       CollectConfig
}

// NewCollectWorker wires a collect worker.
func NewCollectWorker(st *store.Store, content ContentSource, extractor LinkExtractor, cfg CollectConfig) *CollectWorker {
	cfg.defaults()
	return &CollectWorker{
		store:     st,
		content:   content,
		extractor: extractor,
		pre:       extract.New(),
		cfg:       cfg,
	}
}

// Run processes one batch. Per-record failures are recorded on the
// record and do not fail the run; the returned error is reserved for
// store/internal failures and context cancellation.
func (w *CollectWorker) Run(ctx context.Context) (*RunStats, error) {
	log := w.cfg.Logger
	stats := newRunStats("collect")
	defer stats.finish()

	if w.cfg.RetryErrors {
		n, err := w.store.ResetToNew(ctx, store.KindCollect, store.ResetOptions{})
		if err != nil {
			return stats, fmt.Errorf("collect: requeue errors: %w", err)
		}
		stats.Requeued = n
		if n > 0 {
			log.Info("collect: requeued error records", "count", n)
		}
	}

	recs, err := w.store.ScanCollect(ctx, []store.Status{store.StatusNew}, w.cfg.Limit)
	if err != nil {
		return stats, fmt.Errorf("collect: scan: %w", err)
	}
	log.Info("collect: batch claimed", "records", len(recs), "limit", w.cfg.Limit)

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
	log.Info("collect: run finished", "summary", stats.Summary())
	return stats, nil
}

func (w *CollectWorker) process(ctx context.Context, rec *store.CollectRecord, stats *RunStats) error {
	log := w.cfg.Logger.With("url", rec.URL)

	body, cached, err := w.content.Get(ctx, store.KindCollect, rec.URL)
	if cached {
		stats.Cached++
	} else if err == nil {
		stats.Fetched++
	}
	if err != nil {
		if errors.Is(err, fetch.ErrFetchFailed) {
			log.Warn("collect: fetch failed", "error", err)
			stats.Errored++
			return w.markError(ctx, rec.URL, store.StatusScrapeError, err)
		}
		return fmt.Errorf("collect: get content %s: %w", rec.URL, err)
	}

	doc, err := w.pre.Preprocess(body, rec.URL)
	if err != nil {
		log.Warn("collect: preprocess failed", "error", err)
		stats.Errored++
		return w.markError(ctx, rec.URL, store.StatusExtractError, err)
	}

	res, usage, err := w.extractor.ExtractLinks(ctx, rec.URL, doc)
	stats.Usage.Add(usage)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("collect: extraction failed", "error", err)
		stats.Errored++
		return w.markError(ctx, rec.URL, store.StatusExtractError, err)
	}

	// Fan out before marking done: a crash in between leaves the
	// record new and the next run redoes the inserts, which the
	// OR IGNORE dedup absorbs.
	batch := make([]store.ClassifyInsert, 0, len(res.Links))
	for _, link := range res.Links {
		// Only an explicit low score is filtered; a link without one
		// passes, same rule as the classify-side relevancy floor.
		if link.Relevancy != nil && *link.Relevancy < w.cfg.MinLinkRelevancy {
			continue
		}
		batch = append(batch, store.ClassifyInsert{
			URL:              link.URL,
			Source:           "collect",
			SourceURL:        rec.URL,
			CollectRelevancy: link.Relevancy,
		})
	}
	inserted, err := w.store.InsertClassifyBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("collect: fan out %s: %w", rec.URL, err)
	}
	stats.Inserted += inserted

	if err := w.store.MarkCollectDone(ctx, rec.URL, res, &doc.Stats); err != nil {
		if errors.Is(err, store.ErrNotNew) {
			log.Warn("collect: record claimed elsewhere, result discarded")
			return nil
		}
		return err
	}
	stats.Done++
	log.Info("collect: record done",
		"links", len(res.Links), "inserted", inserted, "cached", cached)
	return nil
}

// markError records a per-record failure. Losing the race to another
// runner is fine; store failures are not.
func (w *CollectWorker) markError(ctx context.Context, url string, st store.Status, cause error) error {
	err := w.store.MarkCollectError(ctx, url, st, cause.Error())
	if err != nil && !errors.Is(err, store.ErrNotNew) {
		return err
	}
	return nil
}
