package workflow

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/pipeline"
	"github.com/kbukum/capsule/process"
)

const iterationsKey = "_iterations"

// Compile turns the activated pipeline into a workflow. Values assigned
// while compiling, temporary paths included, are reverted on return so the
// pipeline is left as it was.
func Compile(p *pipeline.Pipeline, opts ...Option) (*Workflow, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.executionID == "" {
		o.executionID = uuid.NewString()
	}
	if o.label == "" {
		o.label = p.Definition()
	}
	if o.scratchRoot == "" {
		o.scratchRoot = filepath.Join(os.TempDir(), "capsule-"+o.executionID)
	}
	if o.log == nil {
		o.log = logger.GetGlobalLogger()
	}

	wf := &Workflow{
		ExecutionID: o.executionID,
		Label:       o.label,
		Definition:  p.Definition(),
		ScratchRoot: o.scratchRoot,
		Parameters:  make(map[string]any),
		Status:      StatusWaiting,
		CreatedAt:   time.Now().UTC(),
	}
	c := &compiler{
		opts:  o,
		wf:    wf,
		log:   o.log.WithComponent("workflow"),
		deps:  make(map[Dependency]bool),
		dirs:  make(map[string]bool),
		temps: make(map[string]*Temporary),
	}

	snap := p.Snapshot()
	defer p.Restore(snap)

	if _, err := c.compileScope(scope{p: p, top: true}); err != nil {
		c.log.Warn("workflow compilation failed", logger.ErrorFields("compile", err))
		return nil, err
	}
	c.finish()
	wf.reindex()
	if err := wf.Validate(); err != nil {
		c.log.Warn("workflow validation failed", logger.ErrorFields("validate", err))
		return nil, err
	}
	c.log.Info("workflow compiled", logger.Fields(
		"execution_id", wf.ExecutionID,
		"pipeline", wf.Definition,
		"jobs", len(wf.Jobs),
		"dependencies", len(wf.Dependencies),
		"temporaries", len(wf.Temporaries),
	))
	return wf, nil
}

type compiler struct {
	opts      options
	wf        *Workflow
	log       *logger.Logger
	deps      map[Dependency]bool
	dirs      map[string]bool
	temps     map[string]*Temporary
	tempOrder []string
}

// scope is a pipeline compiled under a parameters location.
type scope struct {
	p      *pipeline.Pipeline
	loc    []string
	prefix string
	top    bool
}

func (s scope) location(n *pipeline.Node) []string {
	rel := strings.TrimPrefix(n.FullName(), s.prefix)
	return append(slices.Clone(s.loc), strings.Split(rel, ".")...)
}

// port is a plug of a job reached through the graph. Index is the
// iteration slot of the plug when it is iterated, -1 otherwise.
type port struct {
	job   *Job
	plug  string
	index int
}

// unit is a compiled leaf node, or the boundary of a compiled scope: the
// job ports behind each input and output plug, plus the barriers standing
// for them in dependencies.
type unit struct {
	in   map[string][]port
	out  map[string][]port
	head *Job
	tail *Job
}

func newUnit() *unit {
	return &unit{in: make(map[string][]port), out: make(map[string][]port)}
}

func (u *unit) entryJobs(plug string) []*Job {
	if u.head != nil {
		return []*Job{u.head}
	}
	return portJobs(u.in[plug])
}

func (u *unit) exitJobs(plug string) []*Job {
	if u.tail != nil {
		return []*Job{u.tail}
	}
	return portJobs(u.out[plug])
}

func portJobs(ports []port) []*Job {
	var out []*Job
	for _, pt := range ports {
		if !slices.Contains(out, pt.job) {
			out = append(out, pt.job)
		}
	}
	return out
}

func (c *compiler) compileScope(s scope) (*unit, error) {
	if err := s.p.CheckCycles(); err != nil {
		return nil, err
	}
	d := s.p.Dataflow()
	order, err := d.Order()
	if err != nil {
		return nil, err
	}
	units := make(map[*pipeline.Node]*unit, len(order))
	for _, n := range order {
		var u *unit
		if n.Kind == pipeline.KindIterative {
			u, err = c.compileIteration(s, d, n)
		} else {
			u, err = c.compileProcess(s, d, n)
		}
		if err != nil {
			return nil, err
		}
		if u == nil {
			continue
		}
		units[n] = u
		c.wire(d, n, u, units)
	}

	boundary := newUnit()
	root := s.p.Root()
	for _, pl := range root.Plugs() {
		if pl.Output {
			for _, e := range d.Producers(root, pl.Name) {
				if pu := units[e.Node]; pu != nil {
					boundary.out[pl.Name] = append(boundary.out[pl.Name], pu.out[e.Plug]...)
				}
			}
			continue
		}
		consumers, _ := d.Consumers(root, pl.Name)
		for _, e := range consumers {
			if cu := units[e.Node]; cu != nil {
				boundary.in[pl.Name] = append(boundary.in[pl.Name], cu.in[e.Plug]...)
			}
		}
	}
	return boundary, nil
}

// wire adds the dependencies and bindings feeding the inputs of n.
func (c *compiler) wire(d *pipeline.Dataflow, n *pipeline.Node, u *unit, units map[*pipeline.Node]*unit) {
	for _, pl := range n.Plugs() {
		if pl.Output || !pl.Activated {
			continue
		}
		for _, e := range d.Producers(n, pl.Name) {
			pu := units[e.Node]
			if pu == nil {
				continue
			}
			for _, from := range pu.exitJobs(e.Plug) {
				for _, to := range u.entryJobs(pl.Name) {
					c.depend(from, to)
				}
			}
			for _, src := range pu.out[e.Plug] {
				for _, dst := range u.in[pl.Name] {
					c.bind(src, dst)
				}
			}
		}
	}
}

func (c *compiler) depend(from, to *Job) {
	if from == to {
		return
	}
	dep := Dependency{from.UUID, to.UUID}
	if c.deps[dep] {
		return
	}
	c.deps[dep] = true
	c.wf.Dependencies = append(c.wf.Dependencies, dep)
	to.WaitFor = append(to.WaitFor, from.UUID)
	from.WaitedBy = append(from.WaitedBy, to.UUID)
}

func (c *compiler) bind(src, dst port) {
	b := Binding{Producer: src.job.UUID, Output: src.plug, Consumer: dst.job.UUID, Input: dst.plug, Pick: -1, Slot: -1}
	switch {
	case src.index >= 0 && dst.index >= 0:
		if src.index != dst.index {
			return
		}
	case src.index >= 0:
		b.Slot = src.index
	case dst.index >= 0:
		b.Pick = dst.index
	}
	if src.job == dst.job {
		return
	}
	c.wf.Bindings = append(c.wf.Bindings, b)
}

func (c *compiler) newJob(kind JobKind, name string, loc []string) *Job {
	j := &Job{
		UUID:               uuid.NewString(),
		Name:               name,
		Kind:               kind,
		ParametersLocation: loc,
		WaitFor:            []string{},
		WaitedBy:           []string{},
		Status:             StatusWaiting,
	}
	c.wf.Jobs = append(c.wf.Jobs, j)
	return j
}

// jobName renders a location as a dotted name, iterations as [i].
func jobName(loc []string) string {
	var sb strings.Builder
	for i := 0; i < len(loc); i++ {
		if loc[i] == iterationsKey && i+1 < len(loc) {
			sb.WriteString("[" + loc[i+1] + "]")
			i++
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(loc[i])
	}
	return sb.String()
}

func (c *compiler) compileProcess(s scope, d *pipeline.Dataflow, n *pipeline.Node) (*unit, error) {
	if err := c.allocateTemporaries(s, d, n); err != nil {
		return nil, err
	}
	loc := s.location(n)
	job := c.newJob(KindJob, jobName(loc), loc)
	job.Definition = n.Definition()
	job.Inputs = make(map[string]any)
	job.Outputs = make(map[string]any)
	if len(c.opts.env) > 0 {
		job.Env = maps.Clone(c.opts.env)
	}
	job.Cwd = c.opts.cwd

	ctrl := n.Controller()
	values := make(map[string]any)
	for _, f := range ctrl.Fields() {
		pl, hasPlug := n.Plug(f.Name)
		optional := f.Optional
		if hasPlug {
			optional = pl.Optional
		}
		v := ctrl.Get(f.Name)
		if controller.IsUndefined(v) {
			if f.IsInput() && !optional {
				job.Required = append(job.Required, f.Name)
			}
			continue
		}
		v = cloneValue(v)
		values[f.Name] = v
		if f.IsOutput() {
			job.Outputs[f.Name] = v
		} else {
			job.Inputs[f.Name] = v
			if !optional {
				job.Required = append(job.Required, f.Name)
			}
		}
		if f.Type.IsPath() {
			c.notePaths(job, f, v)
		}
	}
	setParameters(c.wf.Parameters, loc, values)

	if proc := n.Process(); proc != nil {
		if cl, ok := proc.(interface{ CommandLine() ([]string, error) }); ok {
			if argv, err := cl.CommandLine(); err == nil {
				job.Command = argv
			}
		}
		if rp, ok := proc.(process.RequirementsProvider); ok {
			if r := rp.Requirements(); r.CPU > 0 || r.MemoryMB > 0 || len(r.Tools) > 0 {
				job.Requirements = &r
			}
		}
	}

	u := newUnit()
	for _, pl := range n.Plugs() {
		pt := port{job: job, plug: pl.Name, index: -1}
		if pl.Output {
			u.out[pl.Name] = []port{pt}
		} else {
			u.in[pl.Name] = []port{pt}
		}
	}
	for _, t := range c.temps {
		if t.Producer == "" && slices.Contains(pathStrings(job.Outputs), t.Path) {
			t.Producer = job.UUID
		}
	}
	return u, nil
}

// notePaths records transfers and output directories of a path value.
func (c *compiler) notePaths(job *Job, f controller.Field, v any) {
	for _, path := range pathStrings(v) {
		if f.IsOutput() {
			c.dirs[filepath.Dir(path)] = true
		}
		if _, temp := c.temps[path]; temp {
			continue
		}
		for _, root := range c.opts.transferRoots {
			if !under(path, root) {
				continue
			}
			dir := DirectionIn
			if f.IsOutput() {
				dir = DirectionOut
			}
			c.wf.Transfers = append(c.wf.Transfers, Transfer{Path: path, Direction: dir, Scope: job.UUID})
			break
		}
	}
}

func under(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// allocateTemporaries gives a scratch path to every undefined file output
// of n that something reads.
func (c *compiler) allocateTemporaries(s scope, d *pipeline.Dataflow, n *pipeline.Node) error {
	ctrl := n.Controller()
	for _, pl := range n.Plugs() {
		if !pl.Output || !pl.Activated || ctrl.IsDefined(pl.Name) {
			continue
		}
		f, _ := ctrl.Field(pl.Name)
		if !f.Type.IsPath() {
			continue
		}
		need, err := c.checkExports(s, d, n, pl.Name)
		if err != nil {
			return err
		}
		if !need || (f.Type.Kind != controller.KindFile && f.Type.Kind != controller.KindDirectory) {
			continue
		}
		path := c.tempPath(n, f)
		if err := ctrl.Set(pl.Name, path); err != nil {
			return err
		}
		c.temps[path] = &Temporary{Path: path, Consumers: []string{}, Directory: f.Type.Kind == controller.KindDirectory}
		c.tempOrder = append(c.tempOrder, path)
		c.log.Debug("temporary allocated", logger.Fields("node", n.FullName(), "plug", pl.Name, "path", path))
	}
	return nil
}

// checkExports reports whether an undefined output of n needs a value. It
// fails when the output reaches a mandatory parameter of the compiled
// pipeline, which must then be given a path.
func (c *compiler) checkExports(s scope, d *pipeline.Dataflow, n *pipeline.Node, plug string) (bool, error) {
	consumers, exports := d.Consumers(n, plug)
	need := len(consumers) > 0
	for _, e := range exports {
		if !s.top {
			need = true
			continue
		}
		if !e.Optional {
			return false, errors.MissingOutputPath(e.Name)
		}
	}
	return need, nil
}

func (c *compiler) tempPath(n *pipeline.Node, f controller.Field) string {
	ext := ""
	if len(f.Extensions) > 0 {
		ext = f.Extensions[0]
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
	}
	name := fmt.Sprintf("%s.%s_%s%s", n.FullName(), f.Name, uuid.NewString(), ext)
	return filepath.Join(c.opts.scratchRoot, name)
}

// compileIteration expands an iterative node into one copy of its inner
// pipeline per iteration. Barriers are added only on the sides where jobs
// outside the node are involved.
func (c *compiler) compileIteration(s scope, d *pipeline.Dataflow, n *pipeline.Node) (*unit, error) {
	ctrl := n.Controller()
	for _, pl := range n.Plugs() {
		if pl.Output && pl.Activated && !ctrl.IsDefined(pl.Name) {
			if _, err := c.checkExports(s, d, n, pl.Name); err != nil {
				return nil, err
			}
		}
	}
	size, err := n.IterationSize()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		c.log.Debug("iterative node has no iteration", logger.Fields("node", n.FullName()))
		return nil, nil
	}

	hasProducer, hasConsumer := false, false
	for _, pl := range n.Plugs() {
		if !pl.Activated {
			continue
		}
		if pl.Output {
			consumers, _ := d.Consumers(n, pl.Name)
			hasConsumer = hasConsumer || len(consumers) > 0
		} else {
			hasProducer = hasProducer || len(d.Producers(n, pl.Name)) > 0
		}
	}

	loc := s.location(n)
	u := newUnit()
	if hasProducer {
		u.head = c.newJob(KindBarrierIn, jobName(loc)+".input_barrier", loc)
	}

	iterated := make(map[string]bool)
	for _, name := range n.IterativePlugs() {
		iterated[name] = true
	}
	inner := n.IterationPipeline()
	snap := inner.Snapshot()
	collected := make(map[string][]any)
	for i := 0; i < size; i++ {
		if err := inner.SetValues(n.IterationValues(i)); err != nil {
			inner.Restore(snap)
			return nil, err
		}
		iloc := append(slices.Clone(loc), iterationsKey, strconv.Itoa(i))
		b, err := c.compileScope(scope{p: inner, loc: iloc, prefix: n.FullName() + "."})
		if err != nil {
			inner.Restore(snap)
			return nil, err
		}
		for _, pl := range n.Plugs() {
			slot := slotOf(iterated[pl.Name], i)
			if !pl.Output {
				for _, pt := range b.in[pl.Name] {
					pt.index = slot
					u.in[pl.Name] = append(u.in[pl.Name], pt)
					if u.head != nil {
						c.depend(u.head, pt.job)
					}
				}
				continue
			}
			for _, pt := range b.out[pl.Name] {
				pt.index = slot
				u.out[pl.Name] = append(u.out[pl.Name], pt)
			}
			if iterated[pl.Name] {
				collected[pl.Name] = append(collected[pl.Name], cloneValue(inner.Get(pl.Name)))
			}
		}
		inner.Restore(snap)
	}

	if hasConsumer {
		u.tail = c.newJob(KindBarrierOut, jobName(loc)+".output_barrier", loc)
		for _, pl := range n.Plugs() {
			for _, pt := range u.out[pl.Name] {
				c.depend(pt.job, u.tail)
			}
		}
	}

	for name, values := range collected {
		if slices.ContainsFunc(values, controller.IsUndefined) {
			continue
		}
		if err := ctrl.Set(name, values); err != nil {
			return nil, err
		}
	}
	setParameters(c.wf.Parameters, loc, cloneValue(ctrl.Values()).(map[string]any))
	c.log.Debug("iterative node expanded", logger.Fields("node", n.FullName(), "iterations", size))
	return u, nil
}

func slotOf(iterated bool, i int) int {
	if iterated {
		return i
	}
	return -1
}

// finish completes the cross-job records once every job exists.
func (c *compiler) finish() {
	for _, path := range c.tempOrder {
		t := c.temps[path]
		for _, j := range c.wf.Jobs {
			if j.Kind == KindJob && slices.Contains(pathStrings(j.Inputs), path) {
				t.Consumers = append(t.Consumers, j.UUID)
			}
		}
		c.wf.Temporaries = append(c.wf.Temporaries, *t)
	}

	if c.opts.directoryJobs && len(c.dirs) > 0 {
		dirs := make([]any, 0, len(c.dirs))
		for _, dir := range slices.Sorted(maps.Keys(c.dirs)) {
			dirs = append(dirs, dir)
		}
		mk := &Job{
			UUID:     uuid.NewString(),
			Name:     "mkdir",
			Kind:     KindMkdir,
			Inputs:   map[string]any{"directories": dirs},
			WaitFor:  []string{},
			WaitedBy: []string{},
			Status:   StatusWaiting,
		}
		jobs := c.wf.Jobs
		c.wf.Jobs = append([]*Job{mk}, jobs...)
		for _, j := range jobs {
			if j.Kind == KindJob {
				c.depend(mk, j)
			}
		}
	}

	groups := make(map[string]int)
	for _, j := range c.wf.Jobs {
		loc := j.ParametersLocation
		for k := 1; k < len(loc); k++ {
			if loc[k-1] == iterationsKey {
				continue
			}
			name := jobName(loc[:k])
			idx, ok := groups[name]
			if !ok {
				idx = len(c.wf.Groups)
				groups[name] = idx
				c.wf.Groups = append(c.wf.Groups, Group{Name: name})
			}
			c.wf.Groups[idx].Members = append(c.wf.Groups[idx].Members, j.UUID)
		}
	}
}
