package curator

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router builds the read-only HTTP API. Mutations stay on the CLI and
// MCP surfaces; this exists for dashboards and curl.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := s.Stats(req.Context())
		if err != nil {
			s.log.Error("stats failed", "error", err)
			writeError(w, http.StatusInternalServerError, "stats failed")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	r.Get("/records", func(w http.ResponseWriter, req *http.Request) {
		url := req.URL.Query().Get("url")
		if url == "" {
			writeError(w, http.StatusBadRequest, "url query parameter required")
			return
		}
		info, err := s.Lookup(req.Context(), url)
		if err != nil {
			s.log.Error("lookup failed", "url", url, "error", err)
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if info.Collect == nil && info.Classify == nil && info.Scrape == nil {
			writeError(w, http.StatusNotFound, "unknown url")
			return
		}
		writeJSON(w, http.StatusOK, info)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
