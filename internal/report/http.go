package report

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewHandler exposes the store as read-only JSON:
//
//	GET /health
//	GET /runs
//	GET /runs/{runID}
func NewHandler(store Store) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"runs": store.Runs()})
	})

	r.Get("/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")
		reports := store.Get(runID)
		if reports == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"summary": summarize(reports),
			"windows": reports,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
