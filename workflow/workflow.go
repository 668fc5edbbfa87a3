package workflow

import (
	"time"

	"github.com/kbukum/capsule/process"
)

// Status is the state of a job or of a whole workflow. The string values
// are part of the exchange format.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusReady     Status = "ready"
	StatusOngoing   Status = "ongoing"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// JobKind distinguishes process jobs from the pseudo-jobs the compiler adds.
type JobKind string

const (
	KindJob        JobKind = "job"
	KindBarrierIn  JobKind = "barrier-in"
	KindBarrierOut JobKind = "barrier-out"
	KindMkdir      JobKind = "mkdir"
)

// Job is one schedulable unit of a workflow.
type Job struct {
	UUID       string            `json:"uuid" msgpack:"uuid"`
	Name       string            `json:"name" msgpack:"name"`
	Kind       JobKind           `json:"kind" msgpack:"kind"`
	Definition string            `json:"definition,omitempty" msgpack:"definition,omitempty"`
	Command    []string          `json:"command,omitempty" msgpack:"command,omitempty"`
	Env        map[string]string `json:"env,omitempty" msgpack:"env,omitempty"`
	Cwd        string            `json:"cwd,omitempty" msgpack:"cwd,omitempty"`

	// ParametersLocation is the path of the job values in Workflow.Parameters.
	ParametersLocation []string       `json:"parameters_location" msgpack:"parameters_location"`
	WaitFor            []string       `json:"wait_for" msgpack:"wait_for"`
	WaitedBy           []string       `json:"waited_by" msgpack:"waited_by"`
	Inputs             map[string]any `json:"inputs,omitempty" msgpack:"inputs,omitempty"`
	Outputs            map[string]any `json:"outputs,omitempty" msgpack:"outputs,omitempty"`

	// Required lists the mandatory inputs, which must be bound or fed.
	Required     []string              `json:"required,omitempty" msgpack:"required,omitempty"`
	Requirements *process.Requirements `json:"requirements,omitempty" msgpack:"requirements,omitempty"`

	Status     Status     `json:"status" msgpack:"status"`
	ReturnCode *int       `json:"returncode,omitempty" msgpack:"returncode,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty" msgpack:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty" msgpack:"end_time,omitempty"`
	Stdout     string     `json:"stdout,omitempty" msgpack:"stdout,omitempty"`
	Stderr     string     `json:"stderr,omitempty" msgpack:"stderr,omitempty"`
	Error      string     `json:"error,omitempty" msgpack:"error,omitempty"`
	Attempts   int        `json:"attempts,omitempty" msgpack:"attempts,omitempty"`
}

// IsPseudo reports whether the job only synchronizes or prepares others.
func (j *Job) IsPseudo() bool { return j.Kind != KindJob }

// Dependency is a (producer, consumer) job UUID pair.
type Dependency [2]string

// Producer returns the job waited for.
func (d Dependency) Producer() string { return d[0] }

// Consumer returns the waiting job.
func (d Dependency) Consumer() string { return d[1] }

// Group gathers the jobs of one sub-pipeline or iteration.
type Group struct {
	Name    string   `json:"name" msgpack:"name"`
	Members []string `json:"members" msgpack:"members"`
}

// Direction of a transfer.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transfer is a path to upload before a job or download after it.
type Transfer struct {
	Path      string    `json:"path" msgpack:"path"`
	Direction Direction `json:"direction" msgpack:"direction"`
	Scope     string    `json:"scope" msgpack:"scope"`
}

// Temporary is a path allocated by the compiler for an intermediate output.
type Temporary struct {
	Path      string   `json:"path" msgpack:"path"`
	Producer  string   `json:"producer" msgpack:"producer"`
	Consumers []string `json:"consumers" msgpack:"consumers"`
	Directory bool     `json:"directory,omitempty" msgpack:"directory,omitempty"`
}

// Binding carries a produced value to a consumer input once the producer
// is done. Pick selects an item of the produced list and Slot places the
// value at a position of the consumer list; -1 disables either.
type Binding struct {
	Producer string `json:"producer" msgpack:"producer"`
	Output   string `json:"output" msgpack:"output"`
	Consumer string `json:"consumer" msgpack:"consumer"`
	Input    string `json:"input" msgpack:"input"`
	Pick     int    `json:"pick" msgpack:"pick"`
	Slot     int    `json:"slot" msgpack:"slot"`
}

// Workflow is the compiled, self-contained form of a pipeline. It keeps no
// reference to the pipeline it comes from.
type Workflow struct {
	ExecutionID  string         `json:"execution_id" msgpack:"execution_id"`
	Label        string         `json:"label" msgpack:"label"`
	Definition   string         `json:"definition,omitempty" msgpack:"definition,omitempty"`
	ScratchRoot  string         `json:"scratch_root,omitempty" msgpack:"scratch_root,omitempty"`
	Jobs         []*Job         `json:"jobs" msgpack:"jobs"`
	Dependencies []Dependency   `json:"dependencies" msgpack:"dependencies"`
	Groups       []Group        `json:"groups,omitempty" msgpack:"groups,omitempty"`
	Parameters   map[string]any `json:"parameters" msgpack:"parameters"`
	Transfers    []Transfer     `json:"transfers,omitempty" msgpack:"transfers,omitempty"`
	Temporaries  []Temporary    `json:"temporaries,omitempty" msgpack:"temporaries,omitempty"`
	Bindings     []Binding      `json:"bindings,omitempty" msgpack:"bindings,omitempty"`
	Status       Status         `json:"status" msgpack:"status"`
	Error        string         `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at" msgpack:"created_at"`

	index map[string]*Job
}

func (w *Workflow) reindex() {
	w.index = make(map[string]*Job, len(w.Jobs))
	for _, j := range w.Jobs {
		w.index[j.UUID] = j
	}
}

// Job returns the job with the given UUID.
func (w *Workflow) Job(uuid string) (*Job, bool) {
	if w.index == nil || len(w.index) != len(w.Jobs) {
		w.reindex()
	}
	j, ok := w.index[uuid]
	return j, ok
}

// JobsNamed returns the jobs whose name is name, in workflow order.
func (w *Workflow) JobsNamed(name string) []*Job {
	var out []*Job
	for _, j := range w.Jobs {
		if j.Name == name {
			out = append(out, j)
		}
	}
	return out
}

// ProcessJobs returns the jobs running a process.
func (w *Workflow) ProcessJobs() []*Job {
	var out []*Job
	for _, j := range w.Jobs {
		if !j.IsPseudo() {
			out = append(out, j)
		}
	}
	return out
}

// Parameter returns the value stored under a parameters location.
func (w *Workflow) Parameter(location []string, name string) (any, bool) {
	m := w.Parameters
	for _, key := range location {
		next, ok := m[key].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	v, ok := m[name]
	return v, ok
}

func setParameters(root map[string]any, location []string, values map[string]any) {
	m := root
	for _, key := range location {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[key] = next
		}
		m = next
	}
	for k, v := range values {
		m[k] = v
	}
}
