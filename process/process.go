package process

import (
	"context"
	"io"
	"strings"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/logger"
)

// Process is a single executable unit. It reads its inputs from its
// controller and writes its outputs back to it.
type Process interface {
	// Definition is the stable identity used by registries and workflows.
	Definition() string
	Name() string
	Controller() *controller.Controller
	Execute(ctx context.Context, env *Env) error
}

// Env is the runtime environment handed to Execute.
type Env struct {
	// Dir is the working directory of the job.
	Dir string
	// Vars are environment additions (execution context and job env).
	Vars   map[string]string
	Log    *logger.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// Logger returns the job logger or the global one.
func (e *Env) Logger() *logger.Logger {
	if e == nil || e.Log == nil {
		return logger.GetGlobalLogger()
	}
	return e.Log
}

func (e *Env) stdout() io.Writer {
	if e == nil || e.Stdout == nil {
		return io.Discard
	}
	return e.Stdout
}

func (e *Env) stderr() io.Writer {
	if e == nil || e.Stderr == nil {
		return io.Discard
	}
	return e.Stderr
}

func (e *Env) environ() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Vars))
	for k, v := range e.Vars {
		out = append(out, k+"="+v)
	}
	return out
}

// Requirements describes the resources a process needs.
type Requirements struct {
	CPU      int      `json:"cpu,omitempty" msgpack:"cpu,omitempty"`
	MemoryMB int      `json:"memory_mb,omitempty" msgpack:"memory_mb,omitempty"`
	Tools    []string `json:"tools,omitempty" msgpack:"tools,omitempty"`
}

// RequirementsProvider is implemented by processes declaring requirements.
type RequirementsProvider interface {
	Requirements() Requirements
}

// FieldSpec declares one controller field of a process.
type FieldSpec struct {
	Name    string
	Type    controller.Type
	Options []controller.FieldOption
}

// Field is shorthand for a FieldSpec.
func Field(name string, t controller.Type, opts ...controller.FieldOption) FieldSpec {
	return FieldSpec{Name: name, Type: t, Options: opts}
}

// Base implements the identity and controller parts of Process.
type Base struct {
	definition   string
	name         string
	ctrl         *controller.Controller
	requirements Requirements
}

// NewBase creates a Base with the given fields.
func NewBase(definition string, fields ...FieldSpec) (Base, error) {
	b := Base{definition: definition, name: shortName(definition), ctrl: controller.New()}
	for _, f := range fields {
		if err := b.ctrl.AddField(f.Name, f.Type, f.Options...); err != nil {
			return Base{}, err
		}
	}
	return b, nil
}

func (b *Base) Definition() string                 { return b.definition }
func (b *Base) Name() string                       { return b.name }
func (b *Base) Controller() *controller.Controller { return b.ctrl }
func (b *Base) Requirements() Requirements         { return b.requirements }

// SetName overrides the name derived from the definition.
func (b *Base) SetName(name string) { b.name = name }

// SetRequirements sets the resources the process needs.
func (b *Base) SetRequirements(r Requirements) { b.requirements = r }

func shortName(definition string) string {
	if i := strings.LastIndexAny(definition, "./"); i >= 0 {
		return definition[i+1:]
	}
	return definition
}

// ExecFunc is the body of a FuncProcess.
type ExecFunc func(ctx context.Context, c *controller.Controller, env *Env) error

// FuncProcess runs a Go function.
type FuncProcess struct {
	Base
	fn ExecFunc
}

// NewFunc creates a process backed by fn.
func NewFunc(definition string, fn ExecFunc, fields ...FieldSpec) (*FuncProcess, error) {
	base, err := NewBase(definition, fields...)
	if err != nil {
		return nil, err
	}
	return &FuncProcess{Base: base, fn: fn}, nil
}

// Execute calls the process function.
func (p *FuncProcess) Execute(ctx context.Context, env *Env) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.fn(ctx, p.ctrl, env)
}
