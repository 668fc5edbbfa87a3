package engine

import (
	"os"
	"sync"

	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/workflow"
)

// tempTracker removes a temporary once every job reading it has reached a
// terminal state, and the remaining ones at the end of the execution.
type tempTracker struct {
	mu        sync.Mutex
	keep      bool
	remaining map[string]int
	byJob     map[string][]string
	order     []string
	removed   map[string]bool
}

func newTempTracker(wf *workflow.Workflow, keep bool) *tempTracker {
	t := &tempTracker{
		keep:      keep,
		remaining: make(map[string]int),
		byJob:     make(map[string][]string),
		removed:   make(map[string]bool),
	}
	for _, tmp := range wf.Temporaries {
		t.order = append(t.order, tmp.Path)
		t.remaining[tmp.Path] = len(tmp.Consumers)
		for _, c := range tmp.Consumers {
			t.byJob[c] = append(t.byJob[c], tmp.Path)
		}
	}
	return t
}

// release notes that job will not read its temporaries anymore.
func (t *tempTracker) release(job *workflow.Job, log *logger.Logger) {
	t.mu.Lock()
	var drop []string
	for _, path := range t.byJob[job.UUID] {
		t.remaining[path]--
		if t.remaining[path] == 0 {
			drop = append(drop, path)
		}
	}
	delete(t.byJob, job.UUID)
	t.mu.Unlock()
	for _, path := range drop {
		t.remove(path, log)
	}
}

// cleanup removes every temporary not removed yet.
func (t *tempTracker) cleanup(log *logger.Logger) {
	for _, path := range t.order {
		t.remove(path, log)
	}
}

func (t *tempTracker) remove(path string, log *logger.Logger) {
	t.mu.Lock()
	if t.keep || t.removed[path] {
		t.mu.Unlock()
		return
	}
	t.removed[path] = true
	t.mu.Unlock()

	if err := os.RemoveAll(path); err != nil {
		log.Warn("removing temporary failed", logger.Fields("path", path, "error", err.Error()))
		return
	}
	log.Debug("temporary removed", logger.Fields("path", path))
}
