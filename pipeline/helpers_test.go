package pipeline

import (
	"context"
	"testing"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/process"
)

// --- test helpers ---

const (
	stepDef  = "test.Step"
	pairDef  = "test.Pair"
	valueDef = "test.Value"
	twoDef   = "test.Two"
)

func noop(context.Context, *controller.Controller, *process.Env) error { return nil }

func testProcesses() *process.Registry {
	reg := process.NewRegistry()
	reg.Register(stepDef, func() (process.Process, error) {
		return process.NewFunc(stepDef, noop,
			process.Field("input", controller.File),
			process.Field("output", controller.File, controller.Write()))
	})
	reg.Register(pairDef, func() (process.Process, error) {
		return process.NewFunc(pairDef, noop,
			process.Field("in1", controller.ListOf(controller.File)),
			process.Field("in2", controller.File),
			process.Field("out1", controller.File, controller.Write()))
	})
	reg.Register(valueDef, func() (process.Process, error) {
		return process.NewFunc(valueDef, noop,
			process.Field("x", controller.Int),
			process.Field("y", controller.Int, controller.Output()))
	})
	reg.Register(twoDef, func() (process.Process, error) {
		return process.NewFunc(twoDef, noop,
			process.Field("a", controller.File),
			process.Field("b", controller.File),
			process.Field("out", controller.File, controller.Write()))
	})
	return reg
}

func newTestPipeline(t *testing.T, def string, fn DefineFunc, opts ...Option) *Pipeline {
	t.Helper()
	base := []Option{WithProcessRegistry(testProcesses()), WithRegistry(NewRegistry()), WithLogger(logger.Nop())}
	p, err := New(def, fn, append(base, opts...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func expectCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	if !errors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.FullName()
	}
	return out
}

func node(t *testing.T, p *Pipeline, name string) *Node {
	t.Helper()
	n, ok := p.Node(name)
	if !ok {
		t.Fatalf("node %q not found", name)
	}
	return n
}

// defineChain declares node1 -> node2 -> node3 with node2 and node3
// outputs exported as output1 and output2, one step per node.
func defineChain(p *Pipeline) error {
	for _, n := range []string{"node1", "node2", "node3"} {
		if err := p.AddProcess(n, stepDef); err != nil {
			return err
		}
	}
	for _, l := range []string{"node1.output->node2.input", "node2.output->node3.input"} {
		if err := p.AddLink(l); err != nil {
			return err
		}
	}
	if err := p.ExportParameter("node1", "input"); err != nil {
		return err
	}
	if err := p.ExportParameter("node2", "output", As("output1")); err != nil {
		return err
	}
	if err := p.ExportParameter("node3", "output", As("output2")); err != nil {
		return err
	}
	for i, n := range []string{"node1", "node2", "node3"} {
		if err := p.AddPipelineStep("step"+string(rune('1'+i)), []string{n}); err != nil {
			return err
		}
	}
	return nil
}

// defineSwitch declares p1 feeding two branches (p2 -> p3 and p4) joined by
// a switch in front of p5.
func defineSwitch(p *Pipeline) error {
	for _, n := range []string{"p1", "p2", "p3", "p4", "p5"} {
		if err := p.AddProcess(n, stepDef); err != nil {
			return err
		}
	}
	if err := p.AddSwitch("switch", []string{"path1", "path2"}, []string{"out"}); err != nil {
		return err
	}
	links := []string{
		"p1.output->p2.input",
		"p2.output->p3.input",
		"p3.output->switch.path1_switch_out",
		"p1.output->p4.input",
		"p4.output->switch.path2_switch_out",
		"switch.out->p5.input",
	}
	for _, l := range links {
		if err := p.AddLink(l); err != nil {
			return err
		}
	}
	if err := p.ExportParameter("p1", "input"); err != nil {
		return err
	}
	return p.ExportParameter("p5", "output")
}
