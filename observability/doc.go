// Package observability wires OpenTelemetry tracing and metrics for capsule.
//
// The local engine opens a span per workflow and per job and records job
// counts and durations through Metrics:
//
//	tp, err := observability.InitTracer(ctx, cfg.Tracing)
//	defer tp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("capsule"))
//	metrics.RecordJobEnd(ctx, "job", "done", elapsed)
package observability
