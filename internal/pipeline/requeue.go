package pipeline

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/curator/internal/store"
)

// Requeue resets records of one queue back to new and logs the result.
// The heavy lifting (status validation, the done guard) lives in the
// store; this is the operator-facing wrapper used by the CLI and MCP
// surfaces.
func Requeue(ctx context.Context, st *store.Store, kind store.Kind, opt store.ResetOptions, log *slog.Logger) (int64, error) {
	if log == nil {
		log = slog.Default()
	}
	n, err := st.ResetToNew(ctx, kind, opt)
	if err != nil {
		return 0, err
	}
	log.Info("requeue: records reset to new",
		"kind", kind, "count", n,
		"statuses", opt.Statuses, "source", opt.Source,
		"include_done", opt.IncludeDone)
	return n, nil
}
