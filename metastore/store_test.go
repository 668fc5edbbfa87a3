package metastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/workflow"
)

func newWorkflow(id string, created time.Time) *workflow.Workflow {
	return &workflow.Workflow{
		ExecutionID: id,
		Label:       "label-" + id,
		Status:      workflow.StatusOngoing,
		CreatedAt:   created,
		Parameters:  map[string]any{"node": map[string]any{"input": "/in"}},
		Jobs: []*workflow.Job{
			{UUID: id + "-a", Name: "a", Kind: workflow.KindJob, Status: workflow.StatusWaiting,
				Inputs: map[string]any{"input": "/in", "n": 3}},
			{UUID: id + "-b", Name: "b", Kind: workflow.KindJob, Status: workflow.StatusWaiting},
		},
		Dependencies: []workflow.Dependency{{id + "-a", id + "-b"}},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{"memory": NewMemoryStore(), "sqlite": sqlite}
}

func TestStoreLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()
			if err := s.SaveExecution(ctx, newWorkflow("e1", base)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := s.SaveExecution(ctx, newWorkflow("e2", base.Add(time.Second))); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			wf, err := s.GetExecution(ctx, "e1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if wf.Label != "label-e1" || len(wf.Jobs) != 2 {
				t.Fatalf("unexpected execution %+v", wf)
			}
			if got := wf.Jobs[0].Inputs["n"]; got != 3 {
				t.Errorf("expected int input 3, got %v (%T)", got, got)
			}
			if _, ok := wf.Job("e1-b"); !ok {
				t.Error("expected decoded workflow to be indexed")
			}

			rc := 0
			done := &workflow.Job{UUID: "e1-a", Name: "a", Kind: workflow.KindJob, Status: workflow.StatusDone, ReturnCode: &rc}
			if err := s.UpdateJob(ctx, "e1", done); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			wf, _ = s.GetExecution(ctx, "e1")
			if wf.Jobs[0].Status != workflow.StatusDone || wf.Jobs[0].ReturnCode == nil {
				t.Errorf("expected job a to be done, got %+v", wf.Jobs[0])
			}

			list, err := s.ListExecutions(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(list) != 2 || list[0].ID != "e2" || list[1].Jobs != 2 {
				t.Fatalf("unexpected listing %+v", list)
			}

			if err := s.DeleteExecution(ctx, "e1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := s.GetExecution(ctx, "e1"); !errors.HasCode(err, errors.ErrCodeNotFound) {
				t.Fatalf("expected NOT_FOUND, got %v", err)
			}
		})
	}
}

func TestStoreErrors(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := s.UpdateJob(ctx, "missing", &workflow.Job{UUID: "x"})
			if !errors.HasCode(err, errors.ErrCodeNotFound) {
				t.Errorf("expected NOT_FOUND for unknown execution, got %v", err)
			}
			if err := s.SaveExecution(ctx, newWorkflow("e1", time.Now())); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			err = s.UpdateJob(ctx, "e1", &workflow.Job{UUID: "unknown"})
			if !errors.HasCode(err, errors.ErrCodeNotFound) {
				t.Errorf("expected NOT_FOUND for unknown job, got %v", err)
			}
			if err := s.DeleteExecution(ctx, "missing"); !errors.HasCode(err, errors.ErrCodeNotFound) {
				t.Errorf("expected NOT_FOUND on delete, got %v", err)
			}
		})
	}
}

func TestSaveCopiesWorkflow(t *testing.T) {
	s := NewMemoryStore()
	wf := newWorkflow("e1", time.Now())
	if err := s.SaveExecution(context.Background(), wf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wf.Jobs[0].Status = workflow.StatusFailed
	got, _ := s.GetExecution(context.Background(), "e1")
	if got.Jobs[0].Status != workflow.StatusWaiting {
		t.Fatalf("expected stored copy to be unaffected, got %s", got.Jobs[0].Status)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MetastoreConfig
		wantErr bool
	}{
		{"memory", config.MetastoreConfig{Driver: "memory"}, false},
		{"sqlite", config.MetastoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "m.db")}, false},
		{"unknown", config.MetastoreConfig{Driver: "redis"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_ = s.Close()
		})
	}
}
