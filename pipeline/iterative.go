package pipeline

import (
	"reflect"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/process"
)

// iteration holds the unit wrapped by an iterative node. A wrapped process
// lives alone in a pipeline exporting all its plugs, so both cases expand
// the same way.
type iteration struct {
	unit      string
	pipeline  *Pipeline
	iterative []string
	isIter    map[string]bool
	broadcast bool
}

func (it *iteration) definition() string { return it.unit }

// AddIterativeProcess adds a node running a process or pipeline once per
// element of its iterative plugs. A nil iterativePlugs iterates every plug
// except those given with NonIterative.
func (p *Pipeline) AddIterativeProcess(name, definition string, iterativePlugs []string, opts ...NodeOption) error {
	if err := p.checkEditable("AddIterativeProcess"); err != nil {
		return err
	}
	var inner *Pipeline
	var err error
	if _, ok := p.registry.Lookup(definition); ok && !p.procs.Has(definition) {
		inner, err = p.registry.Instantiate(definition, WithProcessRegistry(p.procs), WithLogger(p.log))
	} else {
		var proc process.Process
		proc, err = p.procs.New(definition)
		if err == nil {
			inner, err = wrapProcess(proc, p)
		}
	}
	if err != nil {
		return err
	}
	return p.addIterative(name, definition, inner, iterativePlugs, opts...)
}

// AddIterativePipeline wraps an already built pipeline in an iterative node.
func (p *Pipeline) AddIterativePipeline(name string, inner *Pipeline, iterativePlugs []string, opts ...NodeOption) error {
	if err := p.checkEditable("AddIterativePipeline"); err != nil {
		return err
	}
	return p.addIterative(name, inner.definition, inner, iterativePlugs, opts...)
}

func wrapProcess(proc process.Process, parent *Pipeline) (*Pipeline, error) {
	return New(proc.Definition(), func(ip *Pipeline) error {
		if err := ip.AddProcessInstance(proc.Name(), proc); err != nil {
			return err
		}
		return ip.AutoExport(true)
	}, WithProcessRegistry(parent.procs), WithRegistry(parent.registry), WithLogger(parent.log))
}

func (p *Pipeline) addIterative(name, unit string, inner *Pipeline, iterativePlugs []string, opts ...NodeOption) error {
	o := collectNodeOptions(opts)
	if iterativePlugs == nil {
		skip := make(map[string]bool, len(o.nonIterative))
		for _, s := range o.nonIterative {
			skip[s] = true
		}
		for _, f := range inner.ctrl.Fields() {
			if !skip[f.Name] {
				iterativePlugs = append(iterativePlugs, f.Name)
			}
		}
	}
	it := &iteration{unit: unit, pipeline: inner, isIter: make(map[string]bool), broadcast: o.broadcast}
	for _, name := range iterativePlugs {
		if !inner.ctrl.Has(name) {
			return errors.NotFound("iterative plug", unit+"."+name)
		}
		it.isIter[name] = true
		it.iterative = append(it.iterative, name)
	}

	ctrl := controller.New()
	for _, f := range inner.ctrl.Fields() {
		value := inner.ctrl.Get(f.Name)
		if !it.isIter[f.Name] {
			if err := ctrl.AddField(f.Name, f.Type, controller.WithField(f)); err != nil {
				return err
			}
			if !controller.IsUndefined(value) {
				_ = ctrl.Set(f.Name, value)
			}
			continue
		}
		listType := controller.ListOf(f.Type)
		asList := func(lf *controller.Field) {
			lf.Type = listType
			lf.Default = controller.Undefined
		}
		if err := ctrl.AddField(f.Name, listType, controller.WithField(f), asList); err != nil {
			return err
		}
		if !controller.IsUndefined(value) {
			_ = ctrl.Set(f.Name, []any{value})
		}
	}

	n := newNode(name, KindIterative, ctrl)
	n.iter = it
	if err := p.addNode(n, opts...); err != nil {
		return err
	}
	inner.setPrefix(p.prefix + name + ".")
	return nil
}

// IterativePlugs returns the iterated plug names of an iterative node.
func (n *Node) IterativePlugs() []string {
	if n.iter == nil {
		return nil
	}
	return n.iter.iterative
}

// IterationPipeline returns the pipeline expanded per iteration.
func (n *Node) IterationPipeline() *Pipeline {
	if n.iter == nil {
		return nil
	}
	return n.iter.pipeline
}

// IterationSize returns the number of iterations defined by the current
// values of the iterative input plugs. Undefined or empty inputs are
// ignored. Lengths must match unless singletons broadcast.
func (n *Node) IterationSize() (int, error) {
	if n.iter == nil {
		return 0, errors.InvalidInput(n.Name, "not an iterative node")
	}
	size := -1
	lengths := make(map[string]int)
	mismatch := false
	for _, name := range n.iter.iterative {
		pl, ok := n.plugIndex[name]
		if ok && pl.Output {
			continue
		}
		l, ok := listLen(n.ctrl.Get(name))
		if !ok || l == 0 {
			continue
		}
		lengths[name] = l
		switch {
		case size < 0:
			size = l
		case size == l:
		case n.iter.broadcast && size == 1:
			size = l
		case n.iter.broadcast && l == 1:
		default:
			mismatch = true
		}
	}
	if mismatch {
		return 0, errors.IterationShape(n.FullName(), lengths)
	}
	if size < 0 {
		return 0, nil
	}
	return size, nil
}

// IterationValues returns the plug values of iteration i: regular plugs
// broadcast and iterative inputs take their i-th element, or their last
// one when shorter.
func (n *Node) IterationValues(i int) map[string]any {
	out := make(map[string]any)
	for _, f := range n.ctrl.Fields() {
		v := n.ctrl.Get(f.Name)
		if !n.iter.isIter[f.Name] {
			out[f.Name] = v
			continue
		}
		if f.IsOutput() {
			out[f.Name] = listItem(v, i, false)
			continue
		}
		out[f.Name] = listItem(v, i, true)
	}
	return out
}

func listLen(v any) (int, bool) {
	if controller.IsUndefined(v) || v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return 0, false
	}
	return rv.Len(), true
}

func listItem(v any, i int, clampLast bool) any {
	l, ok := listLen(v)
	if !ok || l == 0 {
		return controller.Undefined
	}
	if i >= l {
		if !clampLast {
			return controller.Undefined
		}
		i = l - 1
	}
	return reflect.ValueOf(v).Index(i).Interface()
}
