package engine

import (
	"context"
	"io"
	"slices"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/process"
	"github.com/kbukum/capsule/workflow"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestProcessRunner(t *testing.T) {
	job := &workflow.Job{
		Name:       "echo",
		Definition: process.EchoDefinition,
		Inputs:     map[string]any{"value": "hello", "unknown": 1},
	}
	outputs, err := ProcessRunner{}.Run(context.Background(), job, &process.Env{Stdout: io.Discard, Stderr: io.Discard})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["result"] != "hello" {
		t.Errorf("expected result hello, got %v", outputs["result"])
	}

	job.Definition = "test.Missing"
	if _, err := (ProcessRunner{}).Run(context.Background(), job, &process.Env{}); err == nil {
		t.Error("expected error for an unknown definition")
	}
}

func TestRunnerDecorators(t *testing.T) {
	recorder := installRecorder(t)
	metrics, err := observability.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := 0
	var inner Runner = RunnerFunc(func(context.Context, *workflow.Job, *process.Env) (map[string]any, error) {
		calls++
		if calls > 1 {
			return nil, io.ErrUnexpectedEOF
		}
		return map[string]any{"out": 1}, nil
	})
	r := LogRunner(MeterRunner(TraceRunner(inner, "capsule.job"), metrics), logger.Nop())

	job := &workflow.Job{Name: "node1", Kind: workflow.KindJob}
	if out, err := r.Run(context.Background(), job, &process.Env{}); err != nil || out["out"] != 1 {
		t.Fatalf("expected outputs, got %v, %v", out, err)
	}
	if _, err := r.Run(context.Background(), job, &process.Env{}); err == nil {
		t.Fatal("expected the inner error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "capsule.job.node1" {
		t.Errorf("expected span capsule.job.node1, got %s", spans[0].Name())
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("expected error status on the failed span, got %v", spans[1].Status().Code)
	}
}

func TestEngineOptionsInstallDecorators(t *testing.T) {
	recorder := installRecorder(t)
	metrics, err := observability.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg := testRegistry(nil)
	wf, _, _ := compileChain(t, reg, process.CopyDefinition, process.CopyDefinition)

	report := submit(t, newEngine(reg, WithTracing(), WithMetrics(metrics)), wf)
	if report.Status != workflow.StatusDone {
		t.Fatalf("expected done, got %s: %s", report.Status, report.Error)
	}
	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	if len(names) != 2 || !slices.Contains(names, "capsule.job.node1") || !slices.Contains(names, "capsule.job.node2") {
		t.Errorf("expected one span per job, got %v", names)
	}
}
