package observability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
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

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("capsule")
	if cfg.ServiceName != "capsule" || cfg.Enabled {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	mc := MeterConfigFrom(cfg)
	if mc.Endpoint != cfg.Endpoint || mc.Interval != 15*time.Second {
		t.Errorf("unexpected meter config %+v", mc)
	}
}

func TestNewMetrics(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}
	ctx := context.Background()
	metrics.RecordJobStart(ctx)
	metrics.RecordJobEnd(ctx, "job", "done", 50*time.Millisecond)
	metrics.RecordError(ctx, "JOB_FAILURE")
	metrics.RecordWorkflow(ctx, "done")
}

func TestStartSpan_Attributes(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartSpan(context.Background(), SpanJob)
	SetSpanAttribute(ctx, AttrJobName, "node1")
	SetSpanAttribute(ctx, AttrReturnCode, 0)
	SetSpanAttribute(ctx, "ignored", struct{}{})
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	if ended[0].Name() != SpanJob {
		t.Errorf("unexpected span name %q", ended[0].Name())
	}
	if len(ended[0].Attributes()) != 2 {
		t.Errorf("expected 2 attributes, got %v", ended[0].Attributes())
	}
}

func TestSetSpanError(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartSpan(context.Background(), SpanWorkflow)
	SetSpanError(ctx, fmt.Errorf("job failed"))
	span.End()

	got := recorder.Ended()[0]
	if got.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", got.Status())
	}
	if len(got.Events()) == 0 {
		t.Error("expected a recorded error event")
	}
}

func TestSpanHelpersWithoutSpan(t *testing.T) {
	ctx := context.Background()
	SetSpanAttribute(ctx, "k", "v")
	SetSpanError(ctx, fmt.Errorf("x"))
}

func TestCheckHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return fmt.Errorf("unreachable") }
	tests := []struct {
		name   string
		checks []HealthCheck
		want   HealthStatus
	}{
		{"no checks", nil, HealthStatusUp},
		{"all up", []HealthCheck{{Name: "metastore", Critical: true, Check: ok}}, HealthStatusUp},
		{"optional failure", []HealthCheck{{Name: "metastore", Critical: true, Check: ok}, {Name: "scratch", Check: fail}}, HealthStatusDegraded},
		{"critical failure", []HealthCheck{{Name: "metastore", Critical: true, Check: fail}, {Name: "scratch", Check: fail}}, HealthStatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CheckHealth(context.Background(), "capsule", "dev", tt.checks...)
			if h.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, h.Status)
			}
			if len(h.Components) != len(tt.checks) {
				t.Errorf("expected %d components, got %d", len(tt.checks), len(h.Components))
			}
		})
	}
}

func TestDirectoryCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch")
	if err := DirectoryCheck("scratch", dir).Check(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected the check file to be removed, got %d entries", len(entries))
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := DirectoryCheck("scratch", file).Check(context.Background()); err == nil {
		t.Error("expected an error for a regular file")
	}
}
