package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rickgao/ercot-data/internal/scheduler"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeStatus struct {
	last *scheduler.RunStatus
	next time.Time
}

func (f fakeStatus) Last() (scheduler.RunStatus, bool) {
	if f.last == nil {
		return scheduler.RunStatus{}, false
	}
	return *f.last, true
}

func (f fakeStatus) Next() time.Time { return f.next }

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		status   StatusSource
		wantCode int
		want     string
	}{
		{"healthy", fakePinger{}, nil, http.StatusOK, "healthy"},
		{"database down", fakePinger{err: errors.New("connection refused")}, nil, http.StatusServiceUnavailable, "unhealthy"},
		{"last run failed", fakePinger{}, fakeStatus{last: &scheduler.RunStatus{Err: "boom"}}, http.StatusOK, "degraded"},
		{"last run ok", fakePinger{}, fakeStatus{last: &scheduler.RunStatus{RunID: "r"}}, http.StatusOK, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("test", tt.db, tt.status, nil)
			rec, body := get(t, s, "/health")
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if body["status"] != tt.want {
				t.Errorf("status = %v, want %s", body["status"], tt.want)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	next := time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC)
	src := fakeStatus{
		last: &scheduler.RunStatus{RunID: "run-9", Records: 12},
		next: next,
	}
	s := NewServer("ercot", fakePinger{}, src, nil)

	rec, body := get(t, s, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if body["instance"] != "ercot" {
		t.Errorf("instance = %v", body["instance"])
	}
	if body["nextRun"] != "2024-06-02T06:00:00Z" {
		t.Errorf("nextRun = %v", body["nextRun"])
	}
	last, ok := body["lastRun"].(map[string]any)
	if !ok {
		t.Fatalf("lastRun = %v", body["lastRun"])
	}
	if last["runId"] != "run-9" || last["records"] != float64(12) {
		t.Errorf("lastRun = %v", last)
	}
}

func TestStatusWithoutScheduler(t *testing.T) {
	s := NewServer("ercot", fakePinger{}, nil, nil)
	_, body := get(t, s, "/status")
	if _, ok := body["lastRun"]; ok {
		t.Errorf("lastRun present without scheduler: %v", body)
	}
	if _, ok := body["nextRun"]; ok {
		t.Errorf("nextRun present without scheduler: %v", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer("ercot", fakePinger{}, nil, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", rec.Code)
	}
}
