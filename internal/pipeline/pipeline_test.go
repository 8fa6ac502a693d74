package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/curator/internal/extract"
	"github.com/hazyhaar/curator/internal/fetch"
	"github.com/hazyhaar/curator/internal/llm"
	"github.com/hazyhaar/curator/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	if err := store.ApplySchema(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewStore(db)
}

const testPage = `<html><head><title>Page</title></head>
<body><p>Some content with a <a href="https://x.example/a">link</a>.</p></body></html>`

// fakeContent serves canned pages or fetch errors per URL.
type fakeContent struct {
	pages  map[string]string
	errs   map[string]error
	cached map[string]bool
	calls  map[string]int
}

func (f *fakeContent) Get(ctx context.Context, kind store.Kind, url string) ([]byte, bool, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[url]++
	if err, ok := f.errs[url]; ok {
		return nil, f.cached[url], err
	}
	page, ok := f.pages[url]
	if !ok {
		page = testPage
	}
	return []byte(page), f.cached[url], nil
}

// fakeExtractor returns a canned result or error per URL.
type fakeExtractor struct {
	results map[string]*store.ExtractionResult
	errs    map[string]error
	calls   int
}

func (f *fakeExtractor) ExtractLinks(ctx context.Context, url string, doc *extract.Document) (*store.ExtractionResult, llm.Usage, error) {
	f.calls++
	usage := llm.Usage{InputTokens: 100, OutputTokens: 10, Cost: 0.001}
	if err, ok := f.errs[url]; ok {
		return nil, usage, err
	}
	if res, ok := f.results[url]; ok {
		return res, usage, nil
	}
	return &store.ExtractionResult{Title: "T"}, usage, nil
}

// fakeClassifier returns a canned result or error per URL.
type fakeClassifier struct {
	results map[string]*store.ClassificationResult
	errs    map[string]error
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, url string, doc *extract.Document) (*store.ClassificationResult, llm.Usage, error) {
	f.calls++
	usage := llm.Usage{InputTokens: 200, OutputTokens: 20, Cost: 0.002}
	if err, ok := f.errs[url]; ok {
		return nil, usage, err
	}
	if res, ok := f.results[url]; ok {
		return res, usage, nil
	}
	return &store.ClassificationResult{Title: "T", AISafetyRelevance: 0.5}, usage, nil
}

func fetchErr(msg string) error {
	return fmt.Errorf("%w: %s", fetch.ErrFetchFailed, msg)
}

func f64(v float64) *float64 { return &v }

func TestCollectRunFanOut(t *testing.T) {
	// WHAT: A collect run extracts links, inserts the ones above the
	// relevancy threshold into classify, and marks the record done.
	// WHY: This is the core fan-out contract of the pipeline.
	st := testStore(t)
	ctx := context.Background()
	st.InsertCollect(ctx, "https://agg.example/1", "manual")

	ex := &fakeExtractor{results: map[string]*store.ExtractionResult{
		"https://agg.example/1": {
			Title: "Roundup",
			Links: []store.Link{
				{URL: "https://arxiv.org/abs/1", Relevancy: f64(0.9)},
				{URL: "https://blog.example/p", Relevancy: f64(0.5)},
				{URL: "https://spam.example", Relevancy: f64(0.1)},
			},
		},
	}}
	w := NewCollectWorker(st, &fakeContent{}, ex, CollectConfig{MinLinkRelevancy: 0.3})

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 1 || stats.Done != 1 || stats.Errored != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Inserted != 2 {
		t.Errorf("inserted = %d, want 2", stats.Inserted)
	}
	if stats.Usage.InputTokens != 100 {
		t.Errorf("usage = %+v", stats.Usage)
	}

	rec, _ := st.GetCollect(ctx, "https://agg.example/1")
	if rec.Status != store.StatusDone || rec.Data == nil || len(rec.Data.Links) != 3 {
		t.Errorf("collect rec = %+v", rec)
	}
	if rec.Preprocess == nil || rec.Preprocess.MarkdownBytes == 0 {
		t.Errorf("preprocess stats missing: %+v", rec.Preprocess)
	}

	crec, _ := st.GetClassify(ctx, "https://arxiv.org/abs/1")
	if crec == nil {
		t.Fatal("fan-out record missing")
	}
	if crec.Source != "collect" || crec.SourceURL != "https://agg.example/1" {
		t.Errorf("fan-out provenance = %q %q", crec.Source, crec.SourceURL)
	}
	if crec.CollectRelevancy == nil || *crec.CollectRelevancy != 0.9 {
		t.Errorf("fan-out relevancy = %v", crec.CollectRelevancy)
	}
	if low, _ := st.GetClassify(ctx, "https://spam.example"); low != nil {
		t.Error("below-threshold link must not be inserted")
	}
}

func TestCollectRunUnscoredLinksFanOut(t *testing.T) {
	// WHAT: Links the extractor returned without a relevancy score fan
	// out under the default threshold, with a NULL collect_relevancy.
	// WHY: Extractors are not required to score links; the threshold
	// filters explicit low scores only, like the classify-side floor.
	st := testStore(t)
	ctx := context.Background()
	st.InsertCollect(ctx, "https://agg.example/1", "manual")

	ex := &fakeExtractor{results: map[string]*store.ExtractionResult{
		"https://agg.example/1": {Links: []store.Link{
			{URL: "https://x.test/a"},
			{URL: "https://x.test/b"},
		}},
	}}
	w := NewCollectWorker(st, &fakeContent{}, ex, CollectConfig{})

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Inserted != 2 {
		t.Fatalf("inserted = %d, want 2", stats.Inserted)
	}
	for _, u := range []string{"https://x.test/a", "https://x.test/b"} {
		rec, err := st.GetClassify(ctx, u)
		if err != nil || rec == nil {
			t.Fatalf("fan-out record %s missing (err=%v)", u, err)
		}
		if rec.Status != store.StatusNew || rec.CollectRelevancy != nil {
			t.Errorf("%s: status=%q relevancy=%v", u, rec.Status, rec.CollectRelevancy)
		}
	}
}

func TestCollectRunRecordErrors(t *testing.T) {
	// WHAT: Fetch failures become scrape_error, extraction failures
	// become extract_error; the run itself succeeds.
	// WHY: Batch completion with record errors is the normal outcome;
	// the exit code stays zero.
	st := testStore(t)
	ctx := context.Background()
	st.InsertCollect(ctx, "https://dead.example", "manual")
	st.InsertCollect(ctx, "https://weird.example", "manual")
	st.InsertCollect(ctx, "https://fine.example", "manual")

	content := &fakeContent{errs: map[string]error{
		"https://dead.example": fetchErr("http 404"),
	}}
	ex := &fakeExtractor{errs: map[string]error{
		"https://weird.example": fmt.Errorf("%w: no JSON", llm.ErrBadResponse),
	}}
	w := NewCollectWorker(st, content, ex, CollectConfig{})

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run must absorb record errors, got: %v", err)
	}
	if stats.Done != 1 || stats.Errored != 2 {
		t.Errorf("stats = %+v", stats)
	}

	rec, _ := st.GetCollect(ctx, "https://dead.example")
	if rec.Status != store.StatusScrapeError || rec.Error == "" {
		t.Errorf("dead = %+v", rec)
	}
	rec, _ = st.GetCollect(ctx, "https://weird.example")
	if rec.Status != store.StatusExtractError {
		t.Errorf("weird = %+v", rec)
	}
	rec, _ = st.GetCollect(ctx, "https://fine.example")
	if rec.Status != store.StatusDone {
		t.Errorf("fine = %+v", rec)
	}
}

func TestCollectRunResumesAfterCrash(t *testing.T) {
	// WHAT: Re-running collect over a record whose fan-out already
	// happened (crash before the done mark) neither duplicates
	// classify rows nor disturbs their state.
	// WHY: At-least-once processing; the status mutation is the last
	// step, so a crash leaves the record new and the redo must be
	// harmless.
	st := testStore(t)
	ctx := context.Background()
	st.InsertCollect(ctx, "https://agg.example/1", "manual")

	// Simulate the interrupted first run: fan-out rows exist, one of
	// them already classified; the collect record is still new.
	rel := 0.9
	st.InsertClassify(ctx, store.ClassifyInsert{
		URL: "https://arxiv.org/abs/1", Source: "collect",
		SourceURL: "https://agg.example/1", CollectRelevancy: &rel,
	})
	st.MarkClassifyDone(ctx, "https://arxiv.org/abs/1", &store.ClassificationResult{Title: "done"}, nil)

	ex := &fakeExtractor{results: map[string]*store.ExtractionResult{
		"https://agg.example/1": {Links: []store.Link{
			{URL: "https://arxiv.org/abs/1", Relevancy: f64(0.9)},
			{URL: "https://new.example", Relevancy: f64(0.8)},
		}},
	}}
	w := NewCollectWorker(st, &fakeContent{}, ex, CollectConfig{})

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Inserted != 1 {
		t.Errorf("inserted = %d, want only the genuinely new link", stats.Inserted)
	}

	// The already-classified row kept its result.
	crec, _ := st.GetClassify(ctx, "https://arxiv.org/abs/1")
	if crec.Status != store.StatusDone || crec.Data == nil || crec.Data.Title != "done" {
		t.Errorf("classified row disturbed: %+v", crec)
	}
	rec, _ := st.GetCollect(ctx, "https://agg.example/1")
	if rec.Status != store.StatusDone {
		t.Errorf("collect rec = %+v", rec)
	}

	// A second full run finds no new work.
	stats, err = w.Run(ctx)
	if err != nil || stats.Processed != 0 {
		t.Errorf("idle re-run: stats=%+v err=%v", stats, err)
	}
}

func TestCollectRunRetryErrors(t *testing.T) {
	// WHAT: RetryErrors requeues errored records and processes them in
	// the same run.
	// WHY: The -retry-errors flag on the run commands.
	st := testStore(t)
	ctx := context.Background()
	st.InsertCollect(ctx, "https://agg.example/1", "manual")
	st.MarkCollectError(ctx, "https://agg.example/1", store.StatusScrapeError, "was down")

	w := NewCollectWorker(st, &fakeContent{}, &fakeExtractor{}, CollectConfig{RetryErrors: true})
	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Requeued != 1 || stats.Done != 1 {
		t.Errorf("stats = %+v", stats)
	}
	rec, _ := st.GetCollect(ctx, "https://agg.example/1")
	if rec.Status != store.StatusDone {
		t.Errorf("rec = %+v", rec)
	}
}

func TestCollectRunLimit(t *testing.T) {
	// WHAT: Limit bounds the claimed batch, oldest first.
	// WHY: Operators cap model spend per run.
	st := testStore(t)
	ctx := context.Background()
	for _, u := range []string{"a", "b", "c"} {
		st.InsertCollect(ctx, "https://agg.example/"+u, "manual")
	}

	w := NewCollectWorker(st, &fakeContent{}, &fakeExtractor{}, CollectConfig{Limit: 2})
	stats, err := w.Run(ctx)
	if err != nil || stats.Processed != 2 {
		t.Fatalf("stats=%+v err=%v", stats, err)
	}
	counts, _ := st.StatusCounts(ctx, store.KindCollect)
	if counts.ByStatus[store.StatusNew] != 1 || counts.ByStatus[store.StatusDone] != 2 {
		t.Errorf("counts = %v", counts.ByStatus)
	}
}

func TestClassifyRun(t *testing.T) {
	// WHAT: A classify run marks records done with the model's verdict
	// and skips records below the relevancy floor.
	// WHY: The classify worker contract, including the NULL-passes
	// semantics of min relevancy.
	st := testStore(t)
	ctx := context.Background()

	rel := 0.2
	st.InsertClassify(ctx, store.ClassifyInsert{URL: "https://low.example", Source: "collect", CollectRelevancy: &rel})
	st.InsertClassify(ctx, store.ClassifyInsert{URL: "https://manual.example", Source: "manual"})

	min := 0.5
	cl := &fakeClassifier{}
	w := NewClassifyWorker(st, &fakeContent{}, cl, ClassifyConfig{MinRelevancy: &min})
	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 1 || stats.Done != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec, _ := st.GetClassify(ctx, "https://manual.example")
	if rec.Status != store.StatusDone || rec.Data == nil {
		t.Errorf("manual rec = %+v", rec)
	}
	rec, _ = st.GetClassify(ctx, "https://low.example")
	if rec.Status != store.StatusNew {
		t.Errorf("low-relevancy rec must stay new: %+v", rec)
	}
}

func TestClassifyRunRecordErrors(t *testing.T) {
	// WHAT: Fetch failures become scrape_error, model failures become
	// classify_error; the run succeeds.
	// WHY: Same absorption contract as collect.
	st := testStore(t)
	ctx := context.Background()
	st.InsertClassify(ctx, store.ClassifyInsert{URL: "https://dead.example", Source: "manual"})
	st.InsertClassify(ctx, store.ClassifyInsert{URL: "https://odd.example", Source: "manual"})

	content := &fakeContent{
		errs:   map[string]error{"https://dead.example": fetchErr("cached: http 500")},
		cached: map[string]bool{"https://dead.example": true},
	}
	cl := &fakeClassifier{errs: map[string]error{
		"https://odd.example": fmt.Errorf("%w: prose answer", llm.ErrBadResponse),
	}}
	w := NewClassifyWorker(st, content, cl, ClassifyConfig{})

	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Errored != 2 || stats.Cached != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec, _ := st.GetClassify(ctx, "https://dead.example")
	if rec.Status != store.StatusScrapeError {
		t.Errorf("dead = %+v", rec)
	}
	rec, _ = st.GetClassify(ctx, "https://odd.example")
	if rec.Status != store.StatusClassifyError {
		t.Errorf("odd = %+v", rec)
	}
}

func TestClassifyRunSourceFilterAndRetry(t *testing.T) {
	// WHAT: Source scopes both the requeue and the claim.
	// WHY: Retrying one batch must not touch another batch's errors.
	st := testStore(t)
	ctx := context.Background()
	st.InsertClassify(ctx, store.ClassifyInsert{URL: "https://a.example", Source: "batch1"})
	st.InsertClassify(ctx, store.ClassifyInsert{URL: "https://b.example", Source: "batch2"})
	st.MarkClassifyError(ctx, "https://a.example", store.StatusClassifyError, "x")
	st.MarkClassifyError(ctx, "https://b.example", store.StatusClassifyError, "y")

	w := NewClassifyWorker(st, &fakeContent{}, &fakeClassifier{}, ClassifyConfig{
		Source: "batch1", RetryErrors: true,
	})
	stats, err := w.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Requeued != 1 || stats.Done != 1 {
		t.Errorf("stats = %+v", stats)
	}
	rec, _ := st.GetClassify(ctx, "https://b.example")
	if rec.Status != store.StatusClassifyError {
		t.Errorf("other batch touched: %+v", rec)
	}
}

func TestRequeue(t *testing.T) {
	// WHAT: The requeue wrapper resets and reports the count.
	// WHY: Backs the retry CLI command and MCP tool.
	st := testStore(t)
	ctx := context.Background()
	st.InsertCollect(ctx, "u", "manual")
	st.MarkCollectError(ctx, "u", store.StatusScrapeError, "x")

	n, err := Requeue(ctx, st, store.KindCollect, store.ResetOptions{}, nil)
	if err != nil || n != 1 {
		t.Fatalf("requeue: n=%d err=%v", n, err)
	}
}

func TestRunStatsSave(t *testing.T) {
	// WHAT: Save writes a readable JSON file named by phase and time.
	// WHY: Operators keep per-run records under runs/.
	s := newRunStats("collect")
	s.Processed = 3
	s.finish()

	dir := t.TempDir()
	if err := s.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}
	if s.Summary() == "" {
		t.Error("empty summary")
	}
}
