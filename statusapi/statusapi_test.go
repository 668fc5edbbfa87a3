package statusapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/metastore"
	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/workflow"
)

const jobUUID = "9f0c6f9e-8f0a-4d8e-9a43-5b0c2f0d7e11"

func seededServer(t *testing.T) *Server {
	t.Helper()
	store := metastore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	for i, status := range []workflow.Status{workflow.StatusDone, workflow.StatusFailed, workflow.StatusDone} {
		wf := &workflow.Workflow{
			ExecutionID: []string{"exec-a", "exec-b", "exec-c"}[i],
			Label:       "brain segmentation",
			Status:      status,
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Minute),
			Jobs: []*workflow.Job{{
				UUID: jobUUID, Name: "node1", Kind: workflow.KindJob, Status: workflow.StatusDone,
			}},
		}
		if err := store.SaveExecution(context.Background(), wf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return New(config.StatusConfig{Addr: "127.0.0.1:0"}, "capsule", store, logger.Nop())
}

type envelope struct {
	Data  json.RawMessage   `json:"data"`
	Meta  *Meta             `json:"meta"`
	Error *errors.ErrorBody `json:"error"`
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s: invalid JSON body %q: %v", path, rr.Body.String(), err)
	}
	return rr, env
}

// --- health and version ---

func TestHealth(t *testing.T) {
	s := seededServer(t)
	rr, _ := get(t, s, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "up" || body["service"] != "capsule" {
		t.Errorf("unexpected health body %v", body)
	}
}

type brokenStore struct{ metastore.Store }

func (brokenStore) ListExecutions(context.Context) ([]metastore.Summary, error) {
	return nil, errors.DatabaseError(io.ErrUnexpectedEOF)
}

func TestHealthUnavailableStore(t *testing.T) {
	s := New(config.StatusConfig{}, "capsule", brokenStore{}, logger.Nop())
	if rr, _ := get(t, s, "/healthz"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	rr, env := get(t, s, "/executions")
	if rr.Code != http.StatusInternalServerError || env.Error == nil || env.Error.Code != errors.ErrCodeDatabaseError {
		t.Fatalf("expected 500 DATABASE_ERROR, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestHealthDegradedCheck(t *testing.T) {
	store := metastore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })
	scratch := observability.HealthCheck{Name: "scratch", Check: func(context.Context) error { return io.ErrClosedPipe }}
	s := New(config.StatusConfig{}, "capsule", store, logger.Nop(), scratch)

	rr, _ := get(t, s, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("a degraded service still answers 200, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", body["status"])
	}
	if components, _ := body["components"].([]any); len(components) != 2 {
		t.Errorf("expected metastore and scratch components, got %v", body["components"])
	}
}

func TestVersion(t *testing.T) {
	rr, env := get(t, seededServer(t), "/version")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var info map[string]any
	_ = json.Unmarshal(env.Data, &info)
	if info["version"] == "" || info["version"] == nil {
		t.Errorf("expected a version, got %v", info)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id in response headers")
	}
}

// --- executions ---

func TestListExecutions(t *testing.T) {
	s := seededServer(t)
	tests := []struct {
		path      string
		wantItems int
		wantTotal int
		wantPages int
	}{
		{"/executions", 3, 3, 1},
		{"/executions?status=failed", 1, 1, 1},
		{"/executions?limit=2&page=2", 1, 3, 2},
		{"/executions?page=5", 0, 3, 1},
		{"/executions?status=cancelled", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr, env := get(t, s, tt.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			var items []metastore.Summary
			if err := json.Unmarshal(env.Data, &items); err != nil {
				t.Fatalf("unexpected data %s: %v", env.Data, err)
			}
			if items == nil {
				t.Error("expected an empty list, got null")
			}
			if len(items) != tt.wantItems {
				t.Errorf("expected %d items, got %d", tt.wantItems, len(items))
			}
			if env.Meta == nil || env.Meta.Total != tt.wantTotal || env.Meta.TotalPages != tt.wantPages {
				t.Errorf("expected total %d in %d pages, got %+v", tt.wantTotal, tt.wantPages, env.Meta)
			}
		})
	}
}

func TestListExecutionsBadQuery(t *testing.T) {
	for _, path := range []string{"/executions?limit=0", "/executions?page=x"} {
		rr, env := get(t, seededServer(t), path)
		if rr.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != errors.ErrCodeInvalidInput {
			t.Errorf("%s: expected 400 INVALID_INPUT, got %d %s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestGetExecutionAndJob(t *testing.T) {
	s := seededServer(t)
	tests := []struct {
		path     string
		wantCode int
		wantName string
	}{
		{"/executions/exec-b", http.StatusOK, ""},
		{"/executions/missing", http.StatusNotFound, ""},
		{"/executions/exec-b/jobs/" + jobUUID, http.StatusOK, "node1"},
		{"/executions/exec-b/jobs/unknown", http.StatusNotFound, ""},
		{"/executions/missing/jobs/" + jobUUID, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr, env := get(t, s, tt.path)
			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rr.Code, rr.Body.String())
			}
			if tt.wantCode == http.StatusNotFound {
				if env.Error == nil || env.Error.Code != errors.ErrCodeNotFound {
					t.Errorf("expected NOT_FOUND body, got %s", rr.Body.String())
				}
				return
			}
			var data map[string]any
			_ = json.Unmarshal(env.Data, &data)
			if tt.wantName != "" && data["name"] != tt.wantName {
				t.Errorf("expected job %s, got %v", tt.wantName, data["name"])
			}
			if tt.wantName == "" && data["execution_id"] != "exec-b" {
				t.Errorf("expected execution exec-b, got %v", data["execution_id"])
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	s := seededServer(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
