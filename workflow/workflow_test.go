package workflow

import (
	"reflect"
	"testing"

	"github.com/kbukum/capsule/errors"
)

// --- encoding ---

func TestEncodeDecode(t *testing.T) {
	p := newTestPipeline(t, "test.Fan", defineFan)
	must(t, p.SetValues(map[string]any{
		"input":  "/data/in",
		"inputs": []any{"/data/a0", "/data/a1"},
		"output": "/data/out",
	}))
	wf := compile(t, p, WithDirectoryJobs())

	for _, format := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			data, err := wf.Encode(format)
			must(t, err)
			got, err := Decode(data, format)
			must(t, err)

			if got.ExecutionID != wf.ExecutionID || len(got.Jobs) != len(wf.Jobs) {
				t.Fatalf("expected %d jobs of %s, got %d of %s",
					len(wf.Jobs), wf.ExecutionID, len(got.Jobs), got.ExecutionID)
			}
			if !reflect.DeepEqual(got.Dependencies, wf.Dependencies) {
				t.Errorf("dependencies differ: %v vs %v", got.Dependencies, wf.Dependencies)
			}
			if !reflect.DeepEqual(got.Bindings, wf.Bindings) {
				t.Errorf("bindings differ: %v vs %v", got.Bindings, wf.Bindings)
			}
			for i, j := range wf.Jobs {
				g := got.Jobs[i]
				if g.UUID != j.UUID || g.Name != j.Name || g.Kind != j.Kind {
					t.Errorf("job %d: expected %s/%s, got %s/%s", i, j.Name, j.Kind, g.Name, g.Kind)
				}
				if !reflect.DeepEqual(g.Inputs, j.Inputs) && len(j.Inputs) > 0 {
					t.Errorf("job %s: expected inputs %v, got %v", j.Name, j.Inputs, g.Inputs)
				}
			}
			if _, ok := got.Job(wf.Jobs[1].UUID); !ok {
				t.Error("expected decoded workflow to be indexed")
			}
			must(t, got.Validate())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"bad json", "{", FormatJSON},
		{"bad msgpack", "\xc1", FormatMsgpack},
		{"unknown format", "{}", Format("xml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), tt.format)
			expectCode(t, err, errors.ErrCodeInvalidInput)
		})
	}
}

func TestNormalizeNumbers(t *testing.T) {
	got := normalizeValue([]any{float64(3), 2.5, int64(7), uint8(1), map[string]any{"n": int32(4)}})
	want := []any{3, 2.5, 7, 1, map[string]any{"n": 4}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

// --- bindings ---

func TestAssignBinding(t *testing.T) {
	tests := []struct {
		name     string
		binding  Binding
		produced any
		inputs   map[string]any
		want     any
	}{
		{
			name:     "plain",
			binding:  Binding{Input: "in", Pick: -1, Slot: -1},
			produced: "/a",
			inputs:   map[string]any{},
			want:     "/a",
		},
		{
			name:     "pick",
			binding:  Binding{Input: "in", Pick: 1, Slot: -1},
			produced: []any{"/a", "/b"},
			inputs:   map[string]any{},
			want:     "/b",
		},
		{
			name:     "slot grows the list",
			binding:  Binding{Input: "in", Pick: -1, Slot: 2},
			produced: "/c",
			inputs:   map[string]any{"in": []any{"/x"}},
			want:     []any{"/x", nil, "/c"},
		},
		{
			name:     "pick out of range",
			binding:  Binding{Input: "in", Pick: 5, Slot: -1},
			produced: []any{"/a"},
			inputs:   map[string]any{"in": "/kept"},
			want:     "/kept",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignBinding(tt.binding, tt.produced, tt.inputs)
			if got := tt.inputs["in"]; !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPropagate(t *testing.T) {
	p := newTestPipeline(t, "test.Fan", defineFan)
	must(t, p.SetValues(map[string]any{
		"input":  "/data/in",
		"inputs": []any{"/data/a0", "/data/a1"},
		"output": "/data/out",
	}))
	wf := compile(t, p)

	before := wf.JobsNamed("before")[0]
	before.Outputs["output"] = "/data/renamed.txt"
	wf.Propagate(before)
	for _, name := range []string{"it[0].Two", "it[1].Two"} {
		j := wf.JobsNamed(name)
		if len(j) != 1 {
			t.Fatalf("expected job %s", name)
		}
		if got := j[0].Inputs["b"]; got != "/data/renamed.txt" {
			t.Errorf("%s: expected propagated b, got %v", name, got)
		}
	}

	second := wf.JobsNamed("it[1].Two")[0]
	second.Outputs["out"] = "/data/second"
	wf.Propagate(second)
	after := wf.JobsNamed("after")[0]
	in1 := after.Inputs["in1"].([]any)
	if in1[1] != "/data/second" {
		t.Fatalf("expected slot 1 to be updated, got %v", in1)
	}
}

// --- validation ---

func TestValidate(t *testing.T) {
	newJob := func(id, name string) *Job {
		return &Job{UUID: id, Name: name, Kind: KindJob, Inputs: map[string]any{}}
	}
	const (
		a = "6f1c2a52-3c55-4a0c-9f43-2b3a0a4b1e01"
		b = "6f1c2a52-3c55-4a0c-9f43-2b3a0a4b1e02"
	)
	tests := []struct {
		name string
		wf   func() *Workflow
		code errors.ErrorCode
	}{
		{
			name: "valid",
			wf: func() *Workflow {
				return &Workflow{ExecutionID: "x", Jobs: []*Job{newJob(a, "a"), newJob(b, "b")},
					Dependencies: []Dependency{{a, b}}}
			},
		},
		{
			name: "duplicate uuid",
			wf: func() *Workflow {
				return &Workflow{ExecutionID: "x", Jobs: []*Job{newJob(a, "a"), newJob(a, "b")}}
			},
			code: errors.ErrCodeInvalidInput,
		},
		{
			name: "unknown dependency end",
			wf: func() *Workflow {
				return &Workflow{ExecutionID: "x", Jobs: []*Job{newJob(a, "a")},
					Dependencies: []Dependency{{a, b}}}
			},
			code: errors.ErrCodeInvalidInput,
		},
		{
			name: "cycle",
			wf: func() *Workflow {
				return &Workflow{ExecutionID: "x", Jobs: []*Job{newJob(a, "a"), newJob(b, "b")},
					Dependencies: []Dependency{{a, b}, {b, a}}}
			},
			code: errors.ErrCodeCycle,
		},
		{
			name: "unsatisfied",
			wf: func() *Workflow {
				j := newJob(a, "a")
				j.Required = []string{"input"}
				return &Workflow{ExecutionID: "x", Jobs: []*Job{j}}
			},
			code: errors.ErrCodeUnsatisfiedInput,
		},
		{
			name: "temporary with two producers",
			wf: func() *Workflow {
				ja, jb := newJob(a, "a"), newJob(b, "b")
				ja.Outputs = map[string]any{"out": "/tmp/t"}
				jb.Outputs = map[string]any{"out": "/tmp/t"}
				return &Workflow{ExecutionID: "x", Jobs: []*Job{ja, jb},
					Temporaries: []Temporary{{Path: "/tmp/t", Producer: a}}}
			},
			code: errors.ErrCodeInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wf().Validate()
			if tt.code == "" {
				must(t, err)
				return
			}
			expectCode(t, err, tt.code)
		})
	}
}

func TestLevels(t *testing.T) {
	wf := &Workflow{Jobs: []*Job{{UUID: "a"}, {UUID: "b"}, {UUID: "c"}, {UUID: "d"}},
		Dependencies: []Dependency{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}}}
	levels, err := wf.Levels()
	must(t, err)
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if !reflect.DeepEqual(levels, want) {
		t.Fatalf("expected %v, got %v", want, levels)
	}
}

func TestStatusTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusWaiting: false, StatusReady: false, StatusOngoing: false,
		StatusDone: true, StatusFailed: true, StatusCancelled: true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s: expected terminal=%v", s, want)
		}
	}
}
