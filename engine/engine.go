package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"maps"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/execctx"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/metastore"
	"github.com/kbukum/capsule/observability"
	"github.com/kbukum/capsule/process"
	"github.com/kbukum/capsule/resilience"
	"github.com/kbukum/capsule/workflow"
)

// Engine runs compiled workflows on the local machine. It is the
// reference implementation of the contract external engine adapters
// follow: jobs move waiting → ready → ongoing → done | failed, a consumer
// only starts once all its producers are done, and job failures are
// reported on the Report rather than returned by Submit.
type Engine struct {
	registry  *process.Registry
	store     metastore.Store
	execCtx   *execctx.Context
	log       *logger.Logger
	metrics   *observability.Metrics
	runner    Runner
	tracing   bool
	workers   int
	timeout   time.Duration
	retry     resilience.RetryConfig
	keepTemps bool
	propagate bool

	mu      sync.Mutex
	running map[string]context.CancelCauseFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry sets the registry process jobs are instantiated from.
func WithRegistry(r *process.Registry) Option { return func(e *Engine) { e.registry = r } }

// WithStore records executions in s.
func WithStore(s metastore.Store) Option { return func(e *Engine) { e.store = s } }

// WithExecutionContext sets the environment given to every job.
func WithExecutionContext(c *execctx.Context) Option { return func(e *Engine) { e.execCtx = c } }

// WithLogger sets the engine logger.
func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics records job metrics.
func WithMetrics(m *observability.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithTracing creates one span per job.
func WithTracing() Option { return func(e *Engine) { e.tracing = true } }

// WithRunner replaces the process runner. Decorators are still applied.
func WithRunner(r Runner) Option { return func(e *Engine) { e.runner = r } }

// WithWorkers bounds the number of jobs running at once.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

// WithTimeout sets the default per-workflow timeout.
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// WithRetry retries failed jobs following cfg.
func WithRetry(cfg resilience.RetryConfig) Option { return func(e *Engine) { e.retry = cfg } }

// KeepTemporaries disables temporary file cleanup.
func KeepTemporaries() Option { return func(e *Engine) { e.keepTemps = true } }

// WithFailurePropagation selects whether dependents of a failed job fail
// immediately (the default) or stay waiting.
func WithFailurePropagation(on bool) Option { return func(e *Engine) { e.propagate = on } }

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		workers:   1,
		retry:     resilience.RetryConfig{MaxAttempts: 1},
		propagate: true,
		running:   make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.GetGlobalLogger()
	}
	e.log = e.log.WithComponent("engine")
	if e.workers <= 0 {
		e.workers = 1
	}
	if e.runner == nil {
		e.runner = ProcessRunner{Registry: e.registry}
	}
	if e.tracing {
		e.runner = TraceRunner(e.runner, "capsule.job")
	}
	if e.metrics != nil {
		e.runner = MeterRunner(e.runner, e.metrics)
	}
	e.runner = LogRunner(e.runner, e.log)
	return e
}

// FromConfig creates an Engine from the execution and context sections
// of cfg. Extra options are applied last.
func FromConfig(cfg *config.Config, opts ...Option) *Engine {
	base := []Option{
		WithWorkers(cfg.Execution.Workers),
		WithTimeout(cfg.Execution.Timeout),
		WithRetry(cfg.Execution.Retry.Config()),
		WithFailurePropagation(cfg.Execution.ShouldPropagateFailures()),
		WithExecutionContext(execctx.FromConfig(cfg.Context)),
	}
	if cfg.Execution.KeepTemporaries {
		base = append(base, KeepTemporaries())
	}
	if cfg.Tracing.Enabled {
		base = append(base, WithTracing())
	}
	return New(append(base, opts...)...)
}

type submitOptions struct {
	timeout time.Duration
	env     map[string]string
}

// SubmitOption configures one submission.
type SubmitOption func(*submitOptions)

// SubmitTimeout overrides the engine timeout for one workflow.
func SubmitTimeout(d time.Duration) SubmitOption {
	return func(o *submitOptions) { o.timeout = d }
}

// SubmitEnv adds environment variables to every job of the workflow.
func SubmitEnv(env map[string]string) SubmitOption {
	return func(o *submitOptions) { o.env = maps.Clone(env) }
}

// Cancel cancels a running execution. It reports whether the execution
// was running.
func (e *Engine) Cancel(executionID string) bool {
	e.mu.Lock()
	cancel, ok := e.running[executionID]
	e.mu.Unlock()
	if ok {
		cancel(errors.Cancelled("execution " + executionID))
	}
	return ok
}

// Running lists the executions currently submitted.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.running))
	for id := range e.running {
		out = append(out, id)
	}
	return out
}

// Submit runs wf to completion and returns its report. It only returns an
// error when the workflow cannot be started; job failures, cancellation
// and timeouts are reported on the Report and the workflow itself.
func (e *Engine) Submit(ctx context.Context, wf *workflow.Workflow, opts ...SubmitOption) (*Report, error) {
	o := submitOptions{timeout: e.timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	levels, err := wf.Levels()
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if o.timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(runCtx, o.timeout, errors.Timeout("workflow "+wf.ExecutionID))
		defer stop()
	}
	e.mu.Lock()
	if _, dup := e.running[wf.ExecutionID]; dup {
		e.mu.Unlock()
		return nil, errors.AlreadyExists("execution", wf.ExecutionID)
	}
	e.running[wf.ExecutionID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, wf.ExecutionID)
		e.mu.Unlock()
	}()

	if wf.ScratchRoot != "" {
		if err := os.MkdirAll(wf.ScratchRoot, 0o755); err != nil {
			return nil, errors.Internal(err).WithDetail("scratch_root", wf.ScratchRoot)
		}
	}

	x := newExecution(e, wf, o)
	runCtx = logger.ContextWithExecution(runCtx, wf.ExecutionID)
	x.start(runCtx)
	for _, level := range levels {
		if runCtx.Err() != nil {
			break
		}
		x.runLevel(runCtx, level)
	}
	return x.finish(runCtx), nil
}

// execution is the state of one submitted workflow. mu guards the
// workflow record, which runners never touch.
type execution struct {
	e     *Engine
	wf    *workflow.Workflow
	opts  submitOptions
	log   *logger.Logger
	pool  *resilience.Bulkhead
	temps *tempTracker
	began time.Time

	mu sync.Mutex
}

func newExecution(e *Engine, wf *workflow.Workflow, o submitOptions) *execution {
	return &execution{
		e:    e,
		wf:   wf,
		opts: o,
		log:  e.log.WithFields(logger.Fields("execution_id", wf.ExecutionID, "label", wf.Label)),
		pool: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          wf.ExecutionID,
			MaxConcurrent: e.workers,
			MaxWait:       -1,
		}),
		temps: newTempTracker(wf, e.keepTemps),
	}
}

func (x *execution) start(ctx context.Context) {
	x.began = time.Now()
	x.mu.Lock()
	x.wf.Status = workflow.StatusOngoing
	x.wf.Error = ""
	for _, j := range x.wf.Jobs {
		if !j.Status.Terminal() {
			j.Status = workflow.StatusWaiting
		}
	}
	x.mu.Unlock()
	x.save(ctx)
	x.log.Info("workflow started", logger.Fields("jobs", len(x.wf.Jobs), "workers", x.e.workers))
}

// runLevel starts every ready job of a level and waits for all of them.
func (x *execution) runLevel(ctx context.Context, level []string) {
	var wg sync.WaitGroup
	for _, id := range level {
		job, _ := x.wf.Job(id)
		if job.Status.Terminal() {
			continue
		}
		if !x.resolve(ctx, job) {
			continue
		}
		wg.Add(1)
		go func(job *workflow.Job) {
			defer wg.Done()
			err := x.pool.Execute(ctx, func() error {
				x.runJob(ctx, job)
				return nil
			})
			if err != nil {
				x.fail(ctx, job, cancellation(ctx, err))
			}
		}(job)
	}
	wg.Wait()
}

// resolve decides whether job can start: all producers done. A failed
// producer fails the job when failures propagate; otherwise the job stays
// waiting.
func (x *execution) resolve(ctx context.Context, job *workflow.Job) bool {
	x.mu.Lock()
	var failed string
	ready := true
	for _, dep := range job.WaitFor {
		p, _ := x.wf.Job(dep)
		switch p.Status {
		case workflow.StatusDone:
		case workflow.StatusFailed, workflow.StatusCancelled:
			failed = p.Name
			ready = false
		default:
			ready = false
		}
	}
	if ready {
		job.Status = workflow.StatusReady
	}
	x.mu.Unlock()

	if failed != "" && x.e.propagate {
		x.fail(ctx, job, errors.New(errors.ErrCodeJobFailure, "dependency "+failed+" failed", http.StatusInternalServerError).
			WithDetail("dependency", failed))
	}
	return ready
}

func (x *execution) runJob(ctx context.Context, job *workflow.Job) {
	if err := ctx.Err(); err != nil {
		x.fail(ctx, job, cancellation(ctx, err))
		return
	}
	ctx = logger.ContextWithJob(ctx, job.UUID)

	now := time.Now()
	x.mu.Lock()
	job.Status = workflow.StatusOngoing
	job.StartTime = &now
	x.mu.Unlock()
	x.update(ctx, job)

	var outputs map[string]any
	var stdout, stderr bytes.Buffer
	attempts := 0
	err := x.check(job)
	if err == nil {
		env := x.env(ctx, job, &stdout, &stderr)
		err = resilience.RetryFunc(ctx, x.retryConfig(job), func() error {
			attempts++
			stdout.Reset()
			stderr.Reset()
			var runErr error
			outputs, runErr = x.execute(ctx, job, env)
			return runErr
		})
	}
	if err != nil && ctx.Err() != nil {
		err = cancellation(ctx, err)
	}

	end := time.Now()
	x.mu.Lock()
	job.Attempts = attempts
	job.EndTime = &end
	job.Stdout = stdout.String()
	job.Stderr = stderr.String()
	rc := 0
	if err != nil {
		rc = returnCode(err)
		job.Status = workflow.StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = workflow.StatusDone
		if outputs != nil {
			job.Outputs = outputs
		}
		x.wf.Propagate(job)
	}
	if !job.IsPseudo() {
		job.ReturnCode = &rc
	}
	x.mu.Unlock()
	x.update(ctx, job)
	x.temps.release(job, x.log)
}

// execute runs one attempt of job. Pseudo jobs are handled here.
func (x *execution) execute(ctx context.Context, job *workflow.Job, env *process.Env) (map[string]any, error) {
	switch job.Kind {
	case workflow.KindBarrierIn, workflow.KindBarrierOut:
		return nil, nil
	case workflow.KindMkdir:
		dirs, _ := job.Inputs["directories"].([]any)
		for _, d := range dirs {
			if s, ok := d.(string); ok && s != "" {
				if err := os.MkdirAll(s, 0o755); err != nil {
					return nil, errors.Internal(err).WithDetail("directory", s)
				}
			}
		}
		return nil, nil
	}
	outputs, err := x.e.runner.Run(ctx, job, env)
	if err == nil {
		return outputs, nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, cancellation(ctx, err)
	}
	return nil, errors.JobFailure(job.Name, 1).WithCause(err)
}

func (x *execution) check(job *workflow.Job) error {
	if job.Requirements == nil || x.e.execCtx == nil {
		return nil
	}
	return x.e.execCtx.Check(*job.Requirements)
}

func (x *execution) env(ctx context.Context, job *workflow.Job, stdout, stderr *bytes.Buffer) *process.Env {
	vars := make(map[string]string)
	if x.e.execCtx != nil {
		maps.Copy(vars, x.e.execCtx.Environ(nil))
	}
	maps.Copy(vars, x.opts.env)
	maps.Copy(vars, job.Env)
	return &process.Env{
		Dir:    job.Cwd,
		Vars:   vars,
		Log:    x.log.WithContext(ctx).WithFields(logger.Fields("job", job.Name)),
		Stdout: stdout,
		Stderr: stderr,
	}
}

func (x *execution) retryConfig(job *workflow.Job) resilience.RetryConfig {
	cfg := x.e.retry
	if job.IsPseudo() {
		cfg.MaxAttempts = 1
	}
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		x.log.Warn("retrying job", logger.Fields("job", job.Name, "attempt", attempt,
			"backoff", backoff.String(), "error", err.Error()))
	}
	return cfg
}

// fail marks a job failed without running it.
func (x *execution) fail(ctx context.Context, job *workflow.Job, err error) {
	now := time.Now()
	x.mu.Lock()
	if job.Status.Terminal() {
		x.mu.Unlock()
		return
	}
	job.Status = workflow.StatusFailed
	job.Error = err.Error()
	job.EndTime = &now
	x.mu.Unlock()
	x.update(ctx, job)
	x.temps.release(job, x.log)
}

// finish settles the workflow status, records it, materializes the report
// and only then removes the remaining temporaries.
func (x *execution) finish(ctx context.Context) *Report {
	var stopped error
	if ctx.Err() != nil {
		stopped = cancellation(ctx, ctx.Err())
	}

	x.mu.Lock()
	var firstFailure string
	allDone := true
	for _, j := range x.wf.Jobs {
		if stopped != nil && !j.Status.Terminal() {
			now := time.Now()
			j.Status = workflow.StatusFailed
			j.Error = stopped.Error()
			j.EndTime = &now
		}
		if j.Status != workflow.StatusDone {
			allDone = false
		}
		if j.Status == workflow.StatusFailed && firstFailure == "" && j.Error != "" {
			firstFailure = j.Name + ": " + j.Error
		}
	}
	switch {
	case stopped != nil && errors.HasCode(stopped, errors.ErrCodeTimeout):
		x.wf.Status = workflow.StatusFailed
		x.wf.Error = stopped.Error()
	case stopped != nil:
		x.wf.Status = workflow.StatusCancelled
		x.wf.Error = stopped.Error()
	case allDone:
		x.wf.Status = workflow.StatusDone
	default:
		x.wf.Status = workflow.StatusFailed
		x.wf.Error = firstFailure
		if x.wf.Error == "" {
			x.wf.Error = "jobs left waiting after a failure"
		}
	}
	report := newReport(x.wf, x.began, time.Now())
	x.mu.Unlock()

	x.save(context.WithoutCancel(ctx))
	x.temps.cleanup(x.log)

	if m := x.e.metrics; m != nil {
		m.RecordWorkflow(context.WithoutCancel(ctx), string(x.wf.Status))
	}
	fields := logger.Fields("status", x.wf.Status, "duration", report.Duration.String())
	if x.wf.Status == workflow.StatusDone {
		x.log.Info("workflow finished", fields)
	} else {
		fields["error"] = x.wf.Error
		x.log.Warn("workflow finished", fields)
	}
	return report
}

func (x *execution) save(ctx context.Context) {
	if x.e.store == nil {
		return
	}
	x.mu.Lock()
	err := x.e.store.SaveExecution(context.WithoutCancel(ctx), x.wf)
	x.mu.Unlock()
	if err != nil {
		x.log.Warn("recording execution failed", logger.ErrorFields("save_execution", err))
	}
}

func (x *execution) update(ctx context.Context, job *workflow.Job) {
	if x.e.store == nil {
		return
	}
	x.mu.Lock()
	err := x.e.store.UpdateJob(context.WithoutCancel(ctx), x.wf.ExecutionID, job)
	x.mu.Unlock()
	if err != nil {
		x.log.Warn("recording job failed", logger.ErrorFields("update_job", err))
	}
}

// cancellation turns an error seen while ctx is done into the CANCELLED or
// TIMEOUT error carried by ctx.
func cancellation(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return err
	case errors.HasCode(cause, errors.ErrCodeCancelled), errors.HasCode(cause, errors.ErrCodeTimeout):
		return cause
	case stderrors.Is(cause, context.DeadlineExceeded):
		return errors.From(cause, "workflow")
	default:
		return errors.Cancelled("workflow").WithCause(cause)
	}
}

func returnCode(err error) int {
	if appErr, ok := errors.AsAppError(err); ok {
		if rc, ok := appErr.Details["returncode"].(int); ok {
			return rc
		}
	}
	return 1
}
