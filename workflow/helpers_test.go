package workflow

import (
	"context"
	"testing"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/pipeline"
	"github.com/kbukum/capsule/process"
)

// --- test helpers ---

const (
	stepDef   = "test.Step"
	trainDef  = "test.Train"
	pairDef   = "test.Pair"
	modelDef  = "test.Model"
	twoDef    = "test.Two"
	foldDef   = "test.Fold"
	gatherDef = "test.Gather"
)

func noop(context.Context, *controller.Controller, *process.Env) error { return nil }

func testProcesses() *process.Registry {
	reg := process.NewRegistry()
	reg.Register(stepDef, func() (process.Process, error) {
		return process.NewFunc(stepDef, noop,
			process.Field("input", controller.File),
			process.Field("output", controller.File, controller.Write(), controller.Extensions(".txt")))
	})
	reg.Register(trainDef, func() (process.Process, error) {
		return process.NewFunc(trainDef, noop,
			process.Field("in1", controller.ListOf(controller.File)),
			process.Field("out1", controller.File, controller.Write()))
	})
	reg.Register(pairDef, func() (process.Process, error) {
		return process.NewFunc(pairDef, noop,
			process.Field("in1", controller.ListOf(controller.File)),
			process.Field("in2", controller.File),
			process.Field("out1", controller.File, controller.Write()))
	})
	reg.Register(modelDef, func() (process.Process, error) {
		return process.NewFunc(modelDef, noop,
			process.Field("in1", controller.File),
			process.Field("model", controller.File),
			process.Field("out1", controller.File, controller.Write()))
	})
	reg.Register(twoDef, func() (process.Process, error) {
		return process.NewFunc(twoDef, noop,
			process.Field("a", controller.File),
			process.Field("b", controller.File),
			process.Field("out", controller.File, controller.Write()))
	})
	reg.Register(gatherDef, func() (process.Process, error) {
		return process.NewFunc(gatherDef, noop,
			process.Field("in1", controller.ListOf(controller.File)),
			process.Field("out1", controller.File, controller.Write()))
	})
	return reg
}

func testPipelines() *pipeline.Registry {
	reg := pipeline.NewRegistry()
	reg.Register(foldDef, defineFold)
	return reg
}

func newTestPipeline(t *testing.T, def string, fn pipeline.DefineFunc) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(def, fn,
		pipeline.WithProcessRegistry(testProcesses()),
		pipeline.WithRegistry(testPipelines()),
		pipeline.WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

func compile(t *testing.T, p *pipeline.Pipeline, opts ...Option) *Workflow {
	t.Helper()
	base := []Option{WithLogger(logger.Nop()), WithScratchRoot(t.TempDir())}
	wf, err := Compile(p, append(base, opts...)...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return wf
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

// depNames returns the dependencies as (producer, consumer) name pairs.
func depNames(wf *Workflow) [][2]string {
	out := make([][2]string, 0, len(wf.Dependencies))
	for _, d := range wf.Dependencies {
		p, _ := wf.Job(d.Producer())
		c, _ := wf.Job(d.Consumer())
		out = append(out, [2]string{p.Name, c.Name})
	}
	return out
}

func countKind(wf *Workflow, kind JobKind) int {
	n := 0
	for _, j := range wf.Jobs {
		if j.Kind == kind {
			n++
		}
	}
	return n
}

// defineChain declares node1 -> node2 -> node3 with node2 and node3
// outputs exported as output1 and output2, one step per node.
func defineChain(p *pipeline.Pipeline) error {
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
	if err := p.ExportParameter("node2", "output", pipeline.As("output1")); err != nil {
		return err
	}
	if err := p.ExportParameter("node3", "output", pipeline.As("output2")); err != nil {
		return err
	}
	for i, n := range []string{"node1", "node2", "node3"} {
		if err := p.AddPipelineStep("step"+string(rune('1'+i)), []string{n}); err != nil {
			return err
		}
	}
	return nil
}

// defineFold is one leave-one-out fold: train1 learns on every input but
// the test one, train2 refines with all inputs, test applies the model to
// the left out input.
func defineFold(p *pipeline.Pipeline) error {
	loo := pipeline.CustomConfig{"has_index": false, "test_is_output": false, "param_type": "File"}
	if err := p.AddCustomNode("LOO", "leave-one-out", loo); err != nil {
		return err
	}
	if err := p.AddProcess("train1", trainDef); err != nil {
		return err
	}
	if err := p.AddProcess("train2", pairDef); err != nil {
		return err
	}
	if err := p.AddProcess("test", modelDef); err != nil {
		return err
	}
	if err := p.ExportParameter("LOO", "inputs", pipeline.As("main_inputs"), pipeline.IsOptional(false)); err != nil {
		return err
	}
	if err := p.ExportParameter("LOO", "test", pipeline.IsOptional(false)); err != nil {
		return err
	}
	if err := p.ExportParameter("test", "out1", pipeline.As("test_output")); err != nil {
		return err
	}
	links := []string{
		"LOO.train->train1.in1",
		"main_inputs->train2.in1",
		"train1.out1->train2.in2",
		"train2.out1->test.model",
		"test->test.in1",
	}
	for _, l := range links {
		if err := p.AddLink(l); err != nil {
			return err
		}
	}
	return nil
}

// defineLOO iterates the fold over every input.
func defineLOO(p *pipeline.Pipeline) error {
	if err := p.AddIterativeProcess("train", foldDef, []string{"test", "test_output"}); err != nil {
		return err
	}
	if err := p.ExportParameter("train", "main_inputs"); err != nil {
		return err
	}
	return p.AddLink("main_inputs->train.test")
}

// defineFan feeds an iterative node from a producer and gathers its
// outputs into a consumer.
func defineFan(p *pipeline.Pipeline) error {
	if err := p.AddProcess("before", stepDef); err != nil {
		return err
	}
	if err := p.AddIterativeProcess("it", twoDef, []string{"a", "out"}); err != nil {
		return err
	}
	if err := p.AddProcess("after", gatherDef); err != nil {
		return err
	}
	for _, l := range []string{"before.output->it.b", "it.out->after.in1"} {
		if err := p.AddLink(l); err != nil {
			return err
		}
	}
	if err := p.ExportParameter("before", "input"); err != nil {
		return err
	}
	if err := p.ExportParameter("it", "a", pipeline.As("inputs")); err != nil {
		return err
	}
	return p.ExportParameter("after", "out1", pipeline.As("output"))
}
