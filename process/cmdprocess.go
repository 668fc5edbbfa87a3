package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
)

// CommandProcess runs a command line built from its parameter values.
// Arguments of the form {name} are replaced by the value of field name;
// a list value expands to one argument per item when the placeholder is
// the whole argument. Undefined optional values drop the argument.
type CommandProcess struct {
	Base
	argv        []string
	gracePeriod time.Duration
}

// NewCommand creates a command-line process.
func NewCommand(definition string, argv []string, fields ...FieldSpec) (*CommandProcess, error) {
	if len(argv) == 0 {
		return nil, errors.MissingField("argv")
	}
	base, err := NewBase(definition, fields...)
	if err != nil {
		return nil, err
	}
	return &CommandProcess{Base: base, argv: append([]string(nil), argv...)}, nil
}

// SetGracePeriod sets the SIGTERM to SIGKILL delay.
func (p *CommandProcess) SetGracePeriod(d time.Duration) { p.gracePeriod = d }

// CommandLine expands the argv template with the current values.
func (p *CommandProcess) CommandLine() ([]string, error) {
	out := make([]string, 0, len(p.argv))
	for _, arg := range p.argv {
		if name, ok := wholePlaceholder(arg); ok {
			v, exists := p.ctrl.Lookup(name)
			if !exists {
				return nil, errors.NotFound("field", name)
			}
			if items, ok := v.([]any); ok {
				for _, item := range items {
					out = append(out, fmt.Sprint(item))
				}
				continue
			}
			if controller.IsUndefined(v) {
				continue
			}
			out = append(out, fmt.Sprint(v))
			continue
		}
		expanded, err := p.expand(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

func (p *CommandProcess) expand(arg string) (string, error) {
	var sb strings.Builder
	for {
		start := strings.IndexByte(arg, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(arg[start:], '}')
		if end < 0 {
			break
		}
		name := arg[start+1 : start+end]
		v, exists := p.ctrl.Lookup(name)
		if !exists {
			return "", errors.NotFound("field", name)
		}
		sb.WriteString(arg[:start])
		if !controller.IsUndefined(v) {
			sb.WriteString(fmt.Sprint(v))
		}
		arg = arg[start+end+1:]
	}
	sb.WriteString(arg)
	return sb.String(), nil
}

func wholePlaceholder(arg string) (string, bool) {
	if len(arg) > 2 && arg[0] == '{' && arg[len(arg)-1] == '}' && !strings.ContainsAny(arg[1:len(arg)-1], "{}") {
		return arg[1 : len(arg)-1], true
	}
	return "", false
}

// Execute runs the expanded command line.
func (p *CommandProcess) Execute(ctx context.Context, env *Env) error {
	argv, err := p.CommandLine()
	if err != nil {
		return err
	}
	cmd := Command{
		Binary:      argv[0],
		Args:        argv[1:],
		Env:         env.environ(),
		Stdout:      env.stdout(),
		Stderr:      env.stderr(),
		GracePeriod: p.gracePeriod,
	}
	if env != nil {
		cmd.Dir = env.Dir
	}
	env.Logger().Debug("running command", map[string]interface{}{"argv": argv})

	_, err = Run(ctx, cmd)
	return err
}
