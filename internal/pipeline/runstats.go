package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/curator/internal/llm"
)

// RunStats tracks one worker run: record outcomes, cache behaviour and
// model spend. In-process only; the durable record state lives in the
// store.
type RunStats struct {
	Phase     string    `json:"phase"` // "collect" or "classify"
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Requeued  int64 `json:"requeued,omitempty"` // by -retry-errors
	Processed int   `json:"processed"`          // records claimed
	Done      int   `json:"done"`
	Errored   int   `json:"errored"`
	Cached    int   `json:"cached"`   // served from the scrape cache
	Fetched   int   `json:"fetched"`  // hit the network
	Inserted  int   `json:"inserted"` // classify records fanned out

	Usage llm.Usage `json:"usage"`
}

func newRunStats(phase string) *RunStats {
	return &RunStats{Phase: phase, StartedAt: time.Now()}
}

func (s *RunStats) finish() {
	s.EndedAt = time.Now()
}

// Summary renders a one-line human summary for logs and the CLI.
func (s *RunStats) Summary() string {
	d := s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond)
	return fmt.Sprintf(
		"%s: %d processed (%d done, %d errored), %d cached, %d fetched, %d inserted, %d in / %d out tokens ($%.4f) in %s",
		s.Phase, s.Processed, s.Done, s.Errored, s.Cached, s.Fetched,
		s.Inserted, s.Usage.InputTokens, s.Usage.OutputTokens, s.Usage.Cost, d)
}

// Save writes the stats as JSON under dir, named by phase and start
// time. Best effort for operators; the run does not depend on it.
func (s *RunStats) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("runstats: mkdir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json", s.Phase, s.StartedAt.Format("20060102-150405"))
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("runstats: marshal: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}
