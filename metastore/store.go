package metastore

import (
	"context"
	"time"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/workflow"
)

// Summary is the listing form of a recorded execution.
type Summary struct {
	ID         string          `json:"execution_id"`
	Label      string          `json:"label"`
	Definition string          `json:"definition,omitempty"`
	Status     workflow.Status `json:"status"`
	Error      string          `json:"error,omitempty"`
	Jobs       int             `json:"jobs"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Store records executions and the state of their jobs. Implementations
// keep their own copy of every workflow they are given.
type Store interface {
	// SaveExecution inserts or replaces the whole workflow.
	SaveExecution(ctx context.Context, wf *workflow.Workflow) error
	// UpdateJob replaces one job record of a saved execution.
	UpdateJob(ctx context.Context, executionID string, job *workflow.Job) error
	GetExecution(ctx context.Context, id string) (*workflow.Workflow, error)
	// ListExecutions returns summaries, most recent first.
	ListExecutions(ctx context.Context) ([]Summary, error)
	DeleteExecution(ctx context.Context, id string) error
	Close() error
}

// New opens the store selected by cfg.
func New(cfg config.MetastoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, errors.InvalidInput("metastore.driver", "unknown driver "+cfg.Driver)
	}
}

func summarize(wf *workflow.Workflow, updated time.Time) Summary {
	return Summary{
		ID:         wf.ExecutionID,
		Label:      wf.Label,
		Definition: wf.Definition,
		Status:     wf.Status,
		Error:      wf.Error,
		Jobs:       len(wf.Jobs),
		CreatedAt:  wf.CreatedAt,
		UpdatedAt:  updated,
	}
}

// encode and decode copy workflows through their msgpack form.
func encode(wf *workflow.Workflow) ([]byte, error) {
	return wf.Encode(workflow.FormatMsgpack)
}

func decode(data []byte) (*workflow.Workflow, error) {
	wf, err := workflow.Decode(data, workflow.FormatMsgpack)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return wf, nil
}

func replaceJob(wf *workflow.Workflow, job *workflow.Job) error {
	for i, j := range wf.Jobs {
		if j.UUID == job.UUID {
			wf.Jobs[i] = job
			return nil
		}
	}
	return errors.NotFound("job", job.UUID)
}
