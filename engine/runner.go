package engine

import (
	"context"
	"time"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/process"
	"github.com/kbukum/capsule/workflow"
)

// Runner executes one process job and returns the values of its outputs.
// The job record is read-only for runners.
type Runner interface {
	Run(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error) {
	return f(ctx, job, env)
}

// ProcessRunner instantiates the job's process definition from a registry,
// loads the job values into it and executes it.
type ProcessRunner struct {
	Registry *process.Registry
}

// Run implements Runner.
func (r ProcessRunner) Run(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error) {
	reg := r.Registry
	if reg == nil {
		reg = process.Default
	}
	proc, err := reg.New(job.Definition)
	if err != nil {
		return nil, err
	}
	ctrl := proc.Controller()
	for _, values := range []map[string]any{job.Inputs, job.Outputs} {
		for name, v := range values {
			if !ctrl.Has(name) {
				continue
			}
			if err := ctrl.Set(name, v); err != nil {
				return nil, err
			}
		}
	}
	if err := proc.Execute(ctx, env); err != nil {
		return nil, err
	}
	outputs := make(map[string]any)
	for _, f := range ctrl.Fields() {
		if !f.IsOutput() {
			continue
		}
		if v := ctrl.Get(f.Name); !controller.IsUndefined(v) {
			outputs[f.Name] = v
		}
	}
	return outputs, nil
}

// TraceRunner wraps a Runner with OpenTelemetry span creation. Each job
// gets a span named "{prefix}.{job name}".
func TraceRunner(r Runner, prefix string) Runner {
	return &tracingRunner{inner: r, prefix: prefix}
}

type tracingRunner struct {
	inner  Runner
	prefix string
}

func (t *tracingRunner) Run(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error) {
	ctx, span := observability.StartSpan(ctx, t.prefix+"."+job.Name)
	defer span.End()

	observability.SetSpanAttribute(ctx, "capsule.job", job.Name)
	observability.SetSpanAttribute(ctx, "capsule.definition", job.Definition)

	outputs, err := t.inner.Run(ctx, job, env)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return outputs, err
}

// MeterRunner wraps a Runner with job metric recording.
func MeterRunner(r Runner, metrics *observability.Metrics) Runner {
	return &metricsRunner{inner: r, metrics: metrics}
}

type metricsRunner struct {
	inner   Runner
	metrics *observability.Metrics
}

func (m *metricsRunner) Run(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error) {
	m.metrics.RecordJobStart(ctx)
	start := time.Now()
	outputs, err := m.inner.Run(ctx, job, env)

	status := string(workflow.StatusDone)
	if err != nil {
		status = string(workflow.StatusFailed)
		code := string(errors.ErrCodeInternal)
		if appErr, ok := errors.AsAppError(err); ok {
			code = string(appErr.Code)
		}
		m.metrics.RecordError(ctx, code)
	}
	m.metrics.RecordJobEnd(ctx, string(job.Kind), status, time.Since(start))
	return outputs, err
}

// LogRunner wraps a Runner with job logging.
func LogRunner(r Runner, log *logger.Logger) Runner {
	return &loggingRunner{inner: r, log: log}
}

type loggingRunner struct {
	inner Runner
	log   *logger.Logger
}

func (l *loggingRunner) Run(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error) {
	start := time.Now()
	outputs, err := l.inner.Run(ctx, job, env)

	fields := map[string]interface{}{
		"job":        job.Name,
		"definition": job.Definition,
		"duration":   time.Since(start).String(),
	}
	log := l.log.WithContext(ctx)
	if err != nil {
		fields["error"] = err.Error()
		log.Error("job failed", fields)
	} else {
		log.Debug("job completed", fields)
	}
	return outputs, err
}
