package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
)

// Schema is the serializable structure of a pipeline.
type Schema struct {
	Definition string         `yaml:"definition" json:"definition"`
	Nodes      []NodeSchema   `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	Links      []LinkSchema   `yaml:"links,omitempty" json:"links,omitempty"`
	Exports    []ExportSchema `yaml:"exports,omitempty" json:"exports,omitempty"`
	Steps      []StepSchema   `yaml:"steps,omitempty" json:"steps,omitempty"`
	Values     map[string]any `yaml:"values,omitempty" json:"values,omitempty"`
}

// NodeSchema describes one child node. Which fields apply depends on Kind.
type NodeSchema struct {
	Name        string         `yaml:"name" json:"name"`
	Kind        Kind           `yaml:"kind" json:"kind"`
	Definition  string         `yaml:"definition,omitempty" json:"definition,omitempty"`
	Disabled    bool           `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Values      map[string]any `yaml:"values,omitempty" json:"values,omitempty"`
	Optional    []string       `yaml:"optional,omitempty" json:"optional,omitempty"`
	DoNotExport []string       `yaml:"do_not_export,omitempty" json:"do_not_export,omitempty"`

	Branches        []string `yaml:"branches,omitempty" json:"branches,omitempty"`
	Outputs         []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	OptionalOutputs []string `yaml:"optional_outputs,omitempty" json:"optional_outputs,omitempty"`
	Selection       string   `yaml:"selection,omitempty" json:"selection,omitempty"`

	Iterative []string `yaml:"iterative,omitempty" json:"iterative,omitempty"`
	Broadcast bool     `yaml:"broadcast,omitempty" json:"broadcast,omitempty"`

	Config CustomConfig `yaml:"config,omitempty" json:"config,omitempty"`

	// Pipeline inlines a sub-pipeline whose definition is not registered.
	Pipeline *Schema `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
}

// LinkSchema is a link between children or between pipeline parameters.
type LinkSchema struct {
	Link string `yaml:"link" json:"link"`
	Weak bool   `yaml:"weak,omitempty" json:"weak,omitempty"`
}

// ExportSchema is a child plug exposed as a pipeline parameter.
type ExportSchema struct {
	Node     string `yaml:"node" json:"node"`
	Plug     string `yaml:"plug" json:"plug"`
	As       string `yaml:"as" json:"as"`
	Optional *bool  `yaml:"optional,omitempty" json:"optional,omitempty"`
	Weak     bool   `yaml:"weak,omitempty" json:"weak,omitempty"`
}

// StepSchema is a named group of nodes.
type StepSchema struct {
	Name    string   `yaml:"name" json:"name"`
	Nodes   []string `yaml:"nodes" json:"nodes"`
	Enabled bool     `yaml:"enabled" json:"enabled"`
}

// Schema returns the structure of the pipeline.
func (p *Pipeline) Schema() Schema {
	s := Schema{Definition: p.definition}
	for _, n := range p.nodes {
		s.Nodes = append(s.Nodes, p.nodeSchema(n))
	}
	for _, l := range p.Links() {
		if (l.src.node == p.root) == (l.dst.node == p.root) {
			s.Links = append(s.Links, LinkSchema{Link: l.String(), Weak: l.Weak})
			continue
		}
		e := ExportSchema{Weak: l.Weak}
		var rootPlug *Plug
		if l.src.node == p.root {
			e.Node, e.Plug, e.As, rootPlug = l.Dst.Node, l.Dst.Plug, l.Src.Plug, l.src
		} else {
			e.Node, e.Plug, e.As, rootPlug = l.Src.Node, l.Src.Plug, l.Dst.Plug, l.dst
		}
		if cf, ok := p.index[e.Node].ctrl.Field(e.Plug); ok && cf.Optional != rootPlug.Optional {
			opt := rootPlug.Optional
			e.Optional = &opt
		}
		s.Exports = append(s.Exports, e)
	}
	for _, step := range p.Steps() {
		s.Steps = append(s.Steps, StepSchema{Name: step, Nodes: p.StepNodes(step), Enabled: p.StepEnabled(step)})
	}
	s.Values = serializableValues(p.ctrl, nil)
	return s
}

func (p *Pipeline) nodeSchema(n *Node) NodeSchema {
	ns := NodeSchema{Name: n.Name, Kind: n.Kind, Definition: n.Definition(), Disabled: !n.Enabled}
	given := make(map[string]bool)
	for _, pl := range n.plugs {
		if pl.HasDefault {
			given[pl.Name] = true
		}
	}
	if len(given) > 0 {
		ns.Values = serializableValues(n.ctrl, given)
	}
	for _, pl := range n.plugs {
		if pl.Optional && !given[pl.Name] && n.Kind != KindSwitch {
			ns.Optional = append(ns.Optional, pl.Name)
		}
	}
	for name := range n.doNotExport {
		if !given[name] {
			ns.DoNotExport = append(ns.DoNotExport, name)
		}
	}
	sort.Strings(ns.DoNotExport)

	switch n.Kind {
	case KindSwitch:
		ns.Definition = ""
		ns.Branches = n.sw.branches
		ns.Outputs = n.sw.outputs
		ns.Selection = n.Selection()
		for _, o := range n.sw.outputs {
			if n.plugIndex[o].Optional {
				ns.OptionalOutputs = append(ns.OptionalOutputs, o)
			}
		}
	case KindIterative:
		ns.Iterative = n.iter.iterative
		ns.Broadcast = n.iter.broadcast
		if _, ok := p.registry.Lookup(n.iter.unit); !ok && !p.procs.Has(n.iter.unit) {
			inner := n.iter.pipeline.Schema()
			ns.Pipeline = &inner
		}
	case KindCustom:
		ns.Config = n.custom.config
	case KindPipeline:
		if _, ok := p.registry.Lookup(n.pipeline.definition); !ok {
			inner := n.pipeline.Schema()
			ns.Pipeline = &inner
		}
	}
	return ns
}

func serializableValues(c *controller.Controller, only map[string]bool) map[string]any {
	out := make(map[string]any)
	for _, f := range c.Fields() {
		if only != nil && !only[f.Name] {
			continue
		}
		v := c.Get(f.Name)
		if controller.IsUndefined(v) {
			continue
		}
		if _, nested := v.(*controller.Controller); nested {
			continue
		}
		out[f.Name] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FromSchema builds a pipeline from its structure. Process and pipeline
// definitions are resolved through the registries given in opts.
func FromSchema(s Schema, opts ...Option) (*Pipeline, error) {
	return New(s.Definition, func(p *Pipeline) error {
		return p.applySchema(s)
	}, opts...)
}

func (p *Pipeline) applySchema(s Schema) error {
	for _, ns := range s.Nodes {
		if err := p.addSchemaNode(ns); err != nil {
			return fmt.Errorf("node %s: %w", ns.Name, err)
		}
	}
	for _, e := range s.Exports {
		opts := []ExportOption{As(e.As), AllowExisting()}
		if e.Optional != nil {
			opts = append(opts, IsOptional(*e.Optional))
		}
		if e.Weak {
			opts = append(opts, WeakLink())
		}
		if err := p.ExportParameter(e.Node, e.Plug, opts...); err != nil {
			return err
		}
	}
	for _, l := range s.Links {
		var lo []LinkOption
		if l.Weak {
			lo = append(lo, Weak())
		}
		if err := p.AddLink(l.Link, lo...); err != nil {
			return err
		}
	}
	for _, st := range s.Steps {
		if err := p.AddPipelineStep(st.Name, st.Nodes); err != nil {
			return err
		}
		if err := p.SetStepEnabled(st.Name, st.Enabled); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.ctrl.Set(k, s.Values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) addSchemaNode(ns NodeSchema) error {
	var opts []NodeOption
	if len(ns.Values) > 0 {
		opts = append(opts, WithValues(ns.Values))
	}
	if len(ns.Optional) > 0 {
		opts = append(opts, MakeOptional(ns.Optional...))
	}
	if len(ns.DoNotExport) > 0 {
		opts = append(opts, DoNotExport(ns.DoNotExport...))
	}
	if ns.Disabled {
		opts = append(opts, Disabled())
	}

	switch ns.Kind {
	case KindProcess:
		return p.AddProcess(ns.Name, ns.Definition, opts...)
	case KindPipeline:
		if ns.Pipeline != nil {
			sub, err := FromSchema(*ns.Pipeline, WithProcessRegistry(p.procs), WithRegistry(p.registry), WithLogger(p.log))
			if err != nil {
				return err
			}
			return p.AddPipelineInstance(ns.Name, sub, opts...)
		}
		return p.AddPipeline(ns.Name, ns.Definition, opts...)
	case KindSwitch:
		so := []SwitchOption{NoSwitchExport(), OptionalOutputs(ns.OptionalOutputs...)}
		if ns.Selection != "" {
			so = append(so, Selected(ns.Selection))
		}
		if err := p.AddSwitch(ns.Name, ns.Branches, ns.Outputs, so...); err != nil {
			return err
		}
		if ns.Disabled {
			return p.SetNodeEnabled(ns.Name, false)
		}
		return nil
	case KindIterative:
		if ns.Broadcast {
			opts = append(opts, BroadcastSingletons())
		}
		if ns.Pipeline != nil {
			inner, err := FromSchema(*ns.Pipeline, WithProcessRegistry(p.procs), WithRegistry(p.registry), WithLogger(p.log))
			if err != nil {
				return err
			}
			return p.addIterative(ns.Name, ns.Definition, inner, ns.Iterative, opts...)
		}
		return p.AddIterativeProcess(ns.Name, ns.Definition, ns.Iterative, opts...)
	case KindCustom:
		return p.AddCustomNode(ns.Name, ns.Definition, ns.Config, opts...)
	}
	return errors.InvalidInput("kind", fmt.Sprintf("unknown node kind %q", ns.Kind))
}

// MarshalSchema encodes a schema as YAML.
func MarshalSchema(s Schema) ([]byte, error) {
	return yaml.Marshal(s)
}

// UnmarshalSchema decodes a YAML or JSON schema.
func UnmarshalSchema(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, errors.InvalidInput("schema", err.Error()).WithCause(err)
	}
	return s, nil
}

// LoadSchema reads a schema file.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, err
	}
	s, err := UnmarshalSchema(data)
	if err != nil {
		return Schema{}, fmt.Errorf("pipeline: parsing %s: %w", path, err)
	}
	return s, nil
}

// FileLoader finds pipeline schemas by definition name in directories.
type FileLoader struct {
	dirs []string
}

// NewFileLoader creates a loader searching dirs for "<name>.yaml" or
// "<name>.yml", directly or one directory down.
func NewFileLoader(dirs ...string) *FileLoader {
	return &FileLoader{dirs: dirs}
}

// Load returns the schema of the named pipeline.
func (l *FileLoader) Load(name string) (Schema, error) {
	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			if s, err := LoadSchema(filepath.Join(dir, name+ext)); err == nil {
				return s, nil
			}
			matches, _ := filepath.Glob(filepath.Join(dir, "*", name+ext))
			for _, m := range matches {
				if s, err := LoadSchema(m); err == nil {
					return s, nil
				}
			}
		}
	}
	return Schema{}, errors.NotFound("pipeline schema", name)
}

// RegisterDir registers every schema found in dir under its definition.
func (r *Registry) RegisterDir(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.y*ml"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		s, err := LoadSchema(m)
		if err != nil {
			return err
		}
		if s.Definition == "" {
			return errors.MissingField("definition").WithDetail("file", m)
		}
		r.Register(s.Definition, func(p *Pipeline) error { return p.applySchema(s) })
	}
	return nil
}
