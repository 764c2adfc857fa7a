package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/energytrack/energytrack/internal/energytracker"
	"github.com/energytrack/energytrack/internal/issues"
	"github.com/energytrack/energytrack/internal/poller"
)

type fakeSource struct {
	snapshot poller.Snapshot
	ok       bool
}

func (f *fakeSource) Snapshot() (poller.Snapshot, bool) { return f.snapshot, f.ok }

func TestSnapshotHandler(t *testing.T) {
	source := &fakeSource{
		ok: true,
		snapshot: poller.Snapshot{
			Taken: time.Date(2025, 11, 28, 10, 45, 0, 0, time.UTC),
			Records: []poller.Record{
				{Device: energytracker.Device{ID: "dev-1", Name: "Main meter"}},
			},
		},
	}

	rec := httptest.NewRecorder()
	SnapshotHandler(source).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var snapshot poller.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(snapshot.Records) != 1 || snapshot.Records[0].Device.ID != "dev-1" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestSnapshotHandlerBeforeFirstCycle(t *testing.T) {
	rec := httptest.NewRecorder()
	SnapshotHandler(&fakeSource{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestIssuesHandler(t *testing.T) {
	registry := issues.NewRegistry()
	registry.Register("auth_error_401_abcd1234", "error", "auth_error_invalid_token")

	handler := IssuesHandler(registry)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/issues", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var notices []issues.Notice
	if err := json.Unmarshal(rec.Body.Bytes(), &notices); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(notices) != 1 || notices[0].Key != "auth_error_401_abcd1234" {
		t.Fatalf("unexpected notices: %+v", notices)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/issues/auth_error_401_abcd1234", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/issues/auth_error_401_abcd1234", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
