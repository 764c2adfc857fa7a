package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/energytrack/energytrack/internal/issues"
	"github.com/energytrack/energytrack/internal/poller"
)

// SnapshotSource provides the current poll snapshot.
type SnapshotSource interface {
	Snapshot() (poller.Snapshot, bool)
}

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SnapshotHandler serves the current snapshot as JSON. 503 until the
// first cycle has completed.
func SnapshotHandler(source SnapshotSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snapshot, ok := source.Snapshot()
		if !ok {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, snapshot)
	})
}

// IssuesHandler serves open diagnostic notices on GET /issues and
// dismisses one on DELETE /issues/{key}.
func IssuesHandler(registry *issues.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, registry.List())
		case http.MethodDelete:
			key := strings.TrimPrefix(r.URL.Path, "/issues/")
			if key == "" || key == r.URL.Path {
				http.Error(w, "missing notice key", http.StatusBadRequest)
				return
			}
			if !registry.Dismiss(key) {
				http.Error(w, "notice not found", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(value)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
