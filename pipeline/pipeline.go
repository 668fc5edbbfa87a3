package pipeline

import (
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/process"
)

// DefineFunc declares the nodes, links and exports of a pipeline.
type DefineFunc func(p *Pipeline) error

// Pipeline is a composite node: an ordered set of child nodes joined by
// links, with its own parameters exposed on a root node.
type Pipeline struct {
	definition string
	root       *Node
	ctrl       *controller.Controller
	nodes      []*Node
	index      map[string]*Node
	links      []*Link
	steps      *controller.Controller
	linkSeq    int
	prefix     string

	defining  bool
	editDepth int
	delay     int
	pending   bool
	// notify forwards activation requests to the enclosing pipeline.
	notify func()

	procs    *process.Registry
	registry *Registry
	log      *logger.Logger
}

type options struct {
	procs      *process.Registry
	registry   *Registry
	log        *logger.Logger
	autoExport bool
}

// Option configures New.
type Option func(*options)

// WithProcessRegistry sets the registry used to resolve process definitions.
func WithProcessRegistry(r *process.Registry) Option {
	return func(o *options) { o.procs = r }
}

// WithRegistry sets the registry used to resolve pipeline definitions.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithAutoExport exports every unconnected plug of the children, optional
// ones included, once the definition has run.
func WithAutoExport() Option {
	return func(o *options) { o.autoExport = true }
}

// New creates a pipeline and runs its definition.
func New(definition string, define DefineFunc, opts ...Option) (*Pipeline, error) {
	o := options{procs: process.Default, registry: Default}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.GetGlobalLogger().WithComponent("pipeline")
	}

	p := &Pipeline{
		definition: definition,
		ctrl:       controller.New(),
		index:      make(map[string]*Node),
		steps:      controller.New(),
		procs:      o.procs,
		registry:   o.registry,
		log:        o.log,
		defining:   true,
	}
	p.root = newNode("", KindPipeline, p.ctrl)
	p.root.pipeline = p

	if define != nil {
		if err := define(p); err != nil {
			return nil, err
		}
	}
	if o.autoExport {
		if err := p.AutoExport(true); err != nil {
			return nil, err
		}
	}
	p.defining = false
	p.UpdateActivation()
	return p, nil
}

// Definition returns the definition string of the pipeline.
func (p *Pipeline) Definition() string { return p.definition }

// Root returns the node carrying the pipeline parameters.
func (p *Pipeline) Root() *Node { return p.root }

// Controller returns the controller of the pipeline parameters.
func (p *Pipeline) Controller() *controller.Controller { return p.ctrl }

// Nodes returns the child nodes in insertion order.
func (p *Pipeline) Nodes() []*Node { return p.nodes }

// Links returns the links declared in this pipeline.
func (p *Pipeline) Links() []*Link {
	p.pruneLinks()
	return p.links
}

// pruneLinks forgets links whose plug was removed with its field.
func (p *Pipeline) pruneLinks() {
	kept := p.links[:0]
	for _, l := range p.links {
		if !l.detached {
			kept = append(kept, l)
		}
	}
	clear(p.links[len(kept):])
	p.links = kept
}

// Node returns a child node. Dotted names descend into sub-pipelines and
// the empty name is the root.
func (p *Pipeline) Node(name string) (*Node, bool) {
	if name == "" {
		return p.root, true
	}
	head, rest, nested := strings.Cut(name, ".")
	n, ok := p.index[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return n, true
	}
	if n.pipeline == nil {
		if n.iter != nil && n.iter.pipeline != nil {
			return n.iter.pipeline.Node(rest)
		}
		return nil, false
	}
	return n.pipeline.Node(rest)
}

// Get returns a pipeline parameter value.
func (p *Pipeline) Get(name string) any {
	return p.ctrl.Get(name)
}

// Set assigns a pipeline parameter. Names of the form
// "pipeline_steps.<step>" toggle a step.
func (p *Pipeline) Set(name string, value any) error {
	if step, ok := strings.CutPrefix(name, "pipeline_steps."); ok {
		enabled, isBool := value.(bool)
		if !isBool {
			return errors.TypeViolation(name, "bool", value)
		}
		return p.SetStepEnabled(step, enabled)
	}
	return p.ctrl.Set(name, value)
}

// SetValues assigns several pipeline parameters in one activation batch.
func (p *Pipeline) SetValues(values map[string]any) error {
	p.DelayActivation()
	defer p.RestoreActivation()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// SetNodeValue assigns a plug value of a child node and marks the plug as
// explicitly given.
func (p *Pipeline) SetNodeValue(node, plug string, value any) error {
	n, ok := p.Node(node)
	if !ok {
		return errors.NotFound("node", node)
	}
	if err := n.ctrl.Set(plug, value); err != nil {
		return err
	}
	if pl, ok := n.plugIndex[plug]; ok && !pl.HasDefault {
		pl.HasDefault = true
		p.UpdateActivation()
	}
	return nil
}

// SetNodeEnabled changes the user intent flag of a child node.
func (p *Pipeline) SetNodeEnabled(name string, enabled bool) error {
	n, ok := p.Node(name)
	if !ok || n == p.root {
		return errors.NotFound("node", name)
	}
	if n.Enabled == enabled {
		return nil
	}
	n.Enabled = enabled
	p.UpdateActivation()
	return nil
}

// Edit runs fn with structural changes allowed, then refreshes activation.
func (p *Pipeline) Edit(fn func(p *Pipeline) error) error {
	p.editDepth++
	p.DelayActivation()
	defer func() {
		p.editDepth--
		p.RestoreActivation()
	}()
	return fn(p)
}

func (p *Pipeline) checkEditable(op string) error {
	if p.defining || p.editDepth > 0 {
		return nil
	}
	return errors.DefinitionFrozen(op)
}

// allNodes returns the root followed by every node of the tree, sub-pipeline
// contents included, in declaration order.
func (p *Pipeline) allNodes() []*Node {
	out := []*Node{p.root}
	p.appendNodes(&out)
	return out
}

func (p *Pipeline) appendNodes(out *[]*Node) {
	for _, n := range p.nodes {
		*out = append(*out, n)
		if n.pipeline != nil {
			n.pipeline.appendNodes(out)
		}
	}
}

// allLinks returns the links of the pipeline and of its sub-pipelines.
func (p *Pipeline) allLinks() []*Link {
	p.pruneLinks()
	out := append([]*Link(nil), p.links...)
	for _, n := range p.nodes {
		if n.pipeline != nil {
			out = append(out, n.pipeline.allLinks()...)
		}
	}
	return out
}

func (p *Pipeline) setPrefix(prefix string) {
	p.prefix = prefix
	for _, n := range p.nodes {
		n.prefix = prefix
		switch {
		case n.pipeline != nil:
			n.pipeline.setPrefix(prefix + n.Name + ".")
		case n.iter != nil:
			n.iter.pipeline.setPrefix(prefix + n.Name + ".")
		}
	}
}

// Registry maps pipeline definition strings to their DefineFunc.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]DefineFunc
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]DefineFunc)}
}

// Register adds or replaces a pipeline definition.
func (r *Registry) Register(definition string, fn DefineFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[definition] = fn
}

// Lookup returns the DefineFunc of a definition.
func (r *Registry) Lookup(definition string) (DefineFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.defs[definition]
	return fn, ok
}

// Definitions returns sorted registered definitions.
func (r *Registry) Definitions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default is the process-wide pipeline registry.
var Default = NewRegistry()

// Register adds a pipeline definition to the Default registry.
func Register(definition string, fn DefineFunc) { Default.Register(definition, fn) }

// Instantiate creates a registered pipeline.
func (r *Registry) Instantiate(definition string, opts ...Option) (*Pipeline, error) {
	fn, ok := r.Lookup(definition)
	if !ok {
		return nil, errors.NotFound("pipeline definition", definition)
	}
	return New(definition, fn, append([]Option{WithRegistry(r)}, opts...)...)
}
