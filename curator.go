// Package curator implements an incremental pipeline that turns piles
// of candidate links into a classified dataset of AI safety research.
//
// Aggregator pages enter the collect queue, where a model extracts
// their outgoing research links; those fan out into the classify
// queue, where a model judges each candidate. All state lives in one
// sqlite database, so every step is resumable and idempotent.
package curator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/curator/internal/fetch"
	"github.com/hazyhaar/curator/internal/llm"
	"github.com/hazyhaar/curator/internal/pipeline"
	"github.com/hazyhaar/curator/internal/store"
)

// Service wires the store, fetchers and workers behind one façade used
// by the CLI, the HTTP API and the MCP server.
type Service struct {
	cfg   *Config
	log   *slog.Logger
	store *store.Store

	content    pipeline.ContentSource
	extractor  pipeline.LinkExtractor
	classifier pipeline.Classifier

	browser *fetch.BrowserFetcher // non-nil in browser mode, for Close
}

// New opens the database and builds the configured fetcher chain.
func New(cfg *Config, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, log: log, store: st}

	var fetcher fetch.Fetcher
	switch cfg.Fetch.Mode {
	case "browser":
		s.browser = fetch.NewBrowser(fetch.BrowserConfig{
			RemoteURL: cfg.Fetch.BrowserURL,
			Logger:    log,
		})
		fetcher = s.browser
	default:
		fetcher = fetch.NewHTTP(fetch.HTTPConfig{
			Timeout:   cfg.Fetch.Timeout,
			MaxBytes:  cfg.Fetch.MaxBytes,
			UserAgent: cfg.Fetch.UserAgent,
		})
	}
	s.content = fetch.NewCache(st, fetcher, fetch.CacheConfig{
		Dir:    filepath.Join(cfg.DataDir, "scraped"),
		MaxAge: cfg.Cache.MaxAge,
		Logger: log,
	})

	return s, nil
}

// Store exposes the underlying store for read-only embedding uses.
func (s *Service) Store() *store.Store { return s.store }

// Close releases the database and the browser if one was launched.
func (s *Service) Close() error {
	var errs []error
	if s.browser != nil {
		errs = append(errs, s.browser.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// AddResult reports one ingestion batch.
type AddResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"` // already present
	Invalid []string `json:"invalid,omitempty"`
}

// Add inserts URLs into the given queue in status new. Re-adding a
// known URL (whatever its status) is a no-op counted in Skipped.
func (s *Service) Add(ctx context.Context, kind Kind, urls []string, source string) (*AddResult, error) {
	res := &AddResult{}
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" || strings.HasPrefix(u, "#") {
			continue
		}
		if !validCandidateURL(u) {
			res.Invalid = append(res.Invalid, u)
			continue
		}

		var (
			inserted bool
			err      error
		)
		switch kind {
		case KindCollect:
			inserted, err = s.store.InsertCollect(ctx, u, source)
		case KindClassify:
			inserted, err = s.store.InsertClassify(ctx, store.ClassifyInsert{URL: u, Source: source})
		default:
			return nil, fmt.Errorf("%w: %q", store.ErrInvalidKind, kind)
		}
		if err != nil {
			return nil, err
		}
		if inserted {
			res.Added++
		} else {
			res.Skipped++
		}
	}
	s.log.Info("add: batch ingested",
		"kind", kind, "added", res.Added, "skipped", res.Skipped,
		"invalid", len(res.Invalid), "source", source)
	return res, nil
}

// CollectRunOptions tune one collect run. Zero values fall back to the
// service config.
type CollectRunOptions struct {
	Limit            int
	MinLinkRelevancy float64
	RetryErrors      bool
}

// RunCollect processes one collect batch and persists run stats under
// <data_dir>/runs. Record-level failures do not fail the run.
func (s *Service) RunCollect(ctx context.Context, opt CollectRunOptions) (*pipeline.RunStats, error) {
	extractor := s.extractor
	if extractor == nil {
		client, err := s.llmClient()
		if err != nil {
			return nil, err
		}
		extractor = llm.NewExtractor(client)
	}
	minRel := opt.MinLinkRelevancy
	if minRel <= 0 {
		minRel = s.cfg.Collect.MinLinkRelevancy
	}

	w := pipeline.NewCollectWorker(s.store, s.content, extractor, pipeline.CollectConfig{
		Limit:            opt.Limit,
		MinLinkRelevancy: minRel,
		RetryErrors:      opt.RetryErrors,
		Logger:           s.log,
	})
	stats, err := w.Run(ctx)
	s.saveRunStats(stats)
	return stats, err
}

// ClassifyRunOptions tune one classify run.
type ClassifyRunOptions struct {
	Limit        int
	MinRelevancy *float64 // nil falls back to config; negative disables
	Source       string
	RetryErrors  bool
}

// RunClassify processes one classify batch with the same contract as
// RunCollect.
func (s *Service) RunClassify(ctx context.Context, opt ClassifyRunOptions) (*pipeline.RunStats, error) {
	classifier := s.classifier
	if classifier == nil {
		client, err := s.llmClient()
		if err != nil {
			return nil, err
		}
		classifier = llm.NewClassifier(client)
	}

	minRel := opt.MinRelevancy
	if minRel == nil && s.cfg.Classify.MinRelevancy > 0 {
		v := s.cfg.Classify.MinRelevancy
		minRel = &v
	}
	if minRel != nil && *minRel < 0 {
		minRel = nil
	}

	w := pipeline.NewClassifyWorker(s.store, s.content, classifier, pipeline.ClassifyConfig{
		Limit:        opt.Limit,
		MinRelevancy: minRel,
		Source:       opt.Source,
		RetryErrors:  opt.RetryErrors,
		Logger:       s.log,
	})
	stats, err := w.Run(ctx)
	s.saveRunStats(stats)
	return stats, err
}

// Retry requeues errored (or, with includeDone, finished) records of
// one queue back to new. Empty statuses default to the queue's error
// statuses.
func (s *Service) Retry(ctx context.Context, kind Kind, statuses []string, source string, includeDone bool) (int64, error) {
	parsed, err := store.ParseStatuses(kind, statuses)
	if err != nil {
		return 0, err
	}
	return pipeline.Requeue(ctx, s.store, kind, store.ResetOptions{
		Statuses:    parsed,
		Source:      source,
		IncludeDone: includeDone,
	}, s.log)
}

// PipelineStats is the full status picture of the pipeline.
type PipelineStats struct {
	Collect          *KindStats                `json:"collect"`
	Classify         *KindStats                `json:"classify"`
	Scrape           *ScrapeStats              `json:"scrape"`
	CollectBySource  map[string]map[Status]int `json:"collect_by_source"`
	ClassifyBySource map[string]map[Status]int `json:"classify_by_source"`
}

// Stats reads status counts for both queues and the page cache.
func (s *Service) Stats(ctx context.Context) (*PipelineStats, error) {
	var (
		ps  PipelineStats
		err error
	)
	if ps.Collect, err = s.store.StatusCounts(ctx, KindCollect); err != nil {
		return nil, err
	}
	if ps.Classify, err = s.store.StatusCounts(ctx, KindClassify); err != nil {
		return nil, err
	}
	if ps.Scrape, err = s.store.ScrapeCounts(ctx); err != nil {
		return nil, err
	}
	if ps.CollectBySource, err = s.store.StatusCountsBySource(ctx, KindCollect); err != nil {
		return nil, err
	}
	if ps.ClassifyBySource, err = s.store.StatusCountsBySource(ctx, KindClassify); err != nil {
		return nil, err
	}
	return &ps, nil
}

// RecordInfo is everything known about one URL, for diagnosis.
type RecordInfo struct {
	Collect  *CollectRecord  `json:"collect,omitempty"`
	Classify *ClassifyRecord `json:"classify,omitempty"`
	Scrape   *ScrapeRecord   `json:"scrape,omitempty"`
}

// Lookup returns the rows referencing a URL in any table.
func (s *Service) Lookup(ctx context.Context, url string) (*RecordInfo, error) {
	var (
		info RecordInfo
		err  error
	)
	if info.Collect, err = s.store.GetCollect(ctx, url); err != nil {
		return nil, err
	}
	if info.Classify, err = s.store.GetClassify(ctx, url); err != nil {
		return nil, err
	}
	if info.Scrape, err = s.store.GetScrape(ctx, url); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Service) llmClient() (*llm.Client, error) {
	return llm.NewClient(llm.Config{
		BaseURL:           s.cfg.LLM.BaseURL,
		APIKey:            s.cfg.LLM.APIKey,
		Model:             s.cfg.LLM.Model,
		Temperature:       s.cfg.LLM.Temperature,
		MaxTokens:         s.cfg.LLM.MaxTokens,
		Timeout:           s.cfg.LLM.Timeout,
		InputCostPerMTok:  s.cfg.LLM.InputCostPerMTok,
		OutputCostPerMTok: s.cfg.LLM.OutputCostPerMTok,
		Logger:            s.log,
	})
}

func (s *Service) saveRunStats(stats *pipeline.RunStats) {
	if stats == nil {
		return
	}
	dir := filepath.Join(s.cfg.DataDir, "runs")
	if err := stats.Save(dir); err != nil {
		s.log.Warn("run stats not saved", "dir", dir, "error", err)
	}
}

func validCandidateURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
