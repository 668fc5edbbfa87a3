package pipeline

import (
	"sort"
	"strings"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/process"
)

type nodeOptions struct {
	values       map[string]any
	optional     []string
	doNotExport  []string
	nonIterative []string
	broadcast    bool
	disabled     bool
}

// NodeOption configures a node added to a pipeline.
type NodeOption func(*nodeOptions)

// WithValues assigns initial plug values. Such plugs become optional,
// count as explicitly given for activation and are never auto exported.
func WithValues(values map[string]any) NodeOption {
	return func(o *nodeOptions) {
		if o.values == nil {
			o.values = make(map[string]any)
		}
		for k, v := range values {
			o.values[k] = v
		}
	}
}

// MakeOptional marks plugs as optional for activation.
func MakeOptional(plugs ...string) NodeOption {
	return func(o *nodeOptions) { o.optional = append(o.optional, plugs...) }
}

// DoNotExport excludes plugs from AutoExport.
func DoNotExport(plugs ...string) NodeOption {
	return func(o *nodeOptions) { o.doNotExport = append(o.doNotExport, plugs...) }
}

// NonIterative lists the plugs an iterative node broadcasts instead of
// iterating when no explicit iterative plug list is given.
func NonIterative(plugs ...string) NodeOption {
	return func(o *nodeOptions) { o.nonIterative = append(o.nonIterative, plugs...) }
}

// BroadcastSingletons lets single element iterative values broadcast to the
// length of the others.
func BroadcastSingletons() NodeOption {
	return func(o *nodeOptions) { o.broadcast = true }
}

// Disabled adds the node with Enabled set to false.
func Disabled() NodeOption {
	return func(o *nodeOptions) { o.disabled = true }
}

func collectNodeOptions(opts []NodeOption) nodeOptions {
	var o nodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (p *Pipeline) addNode(n *Node, opts ...NodeOption) error {
	if n.Name == "" || strings.ContainsAny(n.Name, ".>") {
		return errors.InvalidInput("name", "node names must be non-empty and contain no '.' or '>'")
	}
	if _, ok := p.index[n.Name]; ok {
		return errors.AlreadyExists("node", n.Name)
	}
	o := collectNodeOptions(opts)

	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := n.ctrl.Set(k, o.values[k]); err != nil {
			return err
		}
		if pl, ok := n.plugIndex[k]; ok {
			pl.HasDefault = true
		}
		if err := n.SetPlugOptional(k, true); err != nil {
			return err
		}
		n.doNotExport[k] = true
	}
	for _, name := range o.optional {
		if err := n.SetPlugOptional(name, true); err != nil {
			return err
		}
	}
	for _, name := range o.doNotExport {
		n.doNotExport[name] = true
	}
	if o.disabled {
		n.Enabled = false
	}

	n.prefix = p.prefix
	p.nodes = append(p.nodes, n)
	p.index[n.Name] = n
	p.log.Debug("node added", logger.Fields("pipeline", p.definition, "node", n.FullName(), "kind", string(n.Kind)))
	p.UpdateActivation()
	return nil
}

// AddProcess instantiates a registered process, or a registered pipeline,
// and adds it as a child node.
func (p *Pipeline) AddProcess(name, definition string, opts ...NodeOption) error {
	if err := p.checkEditable("AddProcess"); err != nil {
		return err
	}
	if !p.procs.Has(definition) {
		if _, ok := p.registry.Lookup(definition); ok {
			return p.AddPipeline(name, definition, opts...)
		}
	}
	proc, err := p.procs.New(definition)
	if err != nil {
		return err
	}
	return p.AddProcessInstance(name, proc, opts...)
}

// AddProcessInstance adds an already built process as a child node.
func (p *Pipeline) AddProcessInstance(name string, proc process.Process, opts ...NodeOption) error {
	if err := p.checkEditable("AddProcessInstance"); err != nil {
		return err
	}
	n := newNode(name, KindProcess, proc.Controller())
	n.process = proc
	return p.addNode(n, opts...)
}

// AddPipeline instantiates a registered pipeline and adds it as a child.
func (p *Pipeline) AddPipeline(name, definition string, opts ...NodeOption) error {
	if err := p.checkEditable("AddPipeline"); err != nil {
		return err
	}
	sub, err := p.registry.Instantiate(definition, WithProcessRegistry(p.procs), WithLogger(p.log))
	if err != nil {
		return err
	}
	return p.AddPipelineInstance(name, sub, opts...)
}

// AddPipelineInstance adds an already built pipeline as a child. The child
// node is the root node of sub.
func (p *Pipeline) AddPipelineInstance(name string, sub *Pipeline, opts ...NodeOption) error {
	if err := p.checkEditable("AddPipelineInstance"); err != nil {
		return err
	}
	if sub.notify != nil {
		return errors.InvalidInput("pipeline", "pipeline already belongs to another pipeline")
	}
	n := sub.root
	n.Name = name
	if err := p.addNode(n, opts...); err != nil {
		n.Name = ""
		return err
	}
	sub.setPrefix(p.prefix + name + ".")
	sub.notify = p.UpdateActivation
	p.UpdateActivation()
	return nil
}

// AddCustomNode adds a structural node computing its values from its
// inputs. kind names a registered custom node builder.
func (p *Pipeline) AddCustomNode(name, kind string, cfg CustomConfig, opts ...NodeOption) error {
	if err := p.checkEditable("AddCustomNode"); err != nil {
		return err
	}
	n, err := newCustomNode(name, kind, cfg)
	if err != nil {
		return err
	}
	return p.addNode(n, opts...)
}

type linkOptions struct {
	weak bool
}

// LinkOption configures AddLink.
type LinkOption func(*linkOptions)

// Weak makes the link ignored by activation unless its plug has only weak
// links.
func Weak() LinkOption {
	return func(o *linkOptions) { o.weak = true }
}

// AddLink connects two plugs given as "src_node.src_plug->dst_node.dst_plug".
// A plug without node part designates a pipeline parameter; linking to a
// parameter that does not exist yet exports the other end under that name.
func (p *Pipeline) AddLink(spec string, opts ...LinkOption) error {
	if err := p.checkEditable("AddLink"); err != nil {
		return err
	}
	var o linkOptions
	for _, opt := range opts {
		opt(&o)
	}
	l, err := ParseLink(spec)
	if err != nil {
		return err
	}
	return p.addLink(l.Src, l.Dst, o.weak)
}

func (p *Pipeline) child(name string) (*Node, bool) {
	if name == "" {
		return p.root, true
	}
	n, ok := p.index[name]
	return n, ok
}

func (p *Pipeline) addLink(src, dst PlugRef, weak bool) error {
	spec := src.String() + "->" + dst.String()
	srcNode, ok := p.child(src.Node)
	if !ok {
		return errors.LinkError(spec, "unknown source node "+src.Node)
	}
	dstNode, ok := p.child(dst.Node)
	if !ok {
		return errors.LinkError(spec, "unknown destination node "+dst.Node)
	}

	var exportOpts []ExportOption
	if weak {
		exportOpts = append(exportOpts, WeakLink())
	}
	if srcNode == p.root && dstNode != p.root && !p.ctrl.Has(src.Plug) {
		return p.ExportParameter(dst.Node, dst.Plug, append(exportOpts, As(src.Plug))...)
	}
	if dstNode == p.root && srcNode != p.root && !p.ctrl.Has(dst.Plug) {
		return p.ExportParameter(src.Node, src.Plug, append(exportOpts, As(dst.Plug))...)
	}

	sp, ok := srcNode.plugIndex[src.Plug]
	if !ok {
		return errors.LinkError(spec, "unknown source plug "+src.String())
	}
	dp, ok := dstNode.plugIndex[dst.Plug]
	if !ok {
		return errors.LinkError(spec, "unknown destination plug "+dst.String())
	}
	switch {
	case srcNode == p.root && sp.Output:
		return errors.LinkError(spec, "cannot link from a pipeline output")
	case srcNode != p.root && !sp.Output:
		return errors.LinkError(spec, "cannot link from an input plug")
	case dstNode == p.root && !dp.Output:
		return errors.LinkError(spec, "cannot link to a pipeline input")
	case dstNode != p.root && dp.Output:
		return errors.LinkError(spec, "cannot link to an output plug")
	}
	sf, _ := srcNode.ctrl.Field(src.Plug)
	df, _ := dstNode.ctrl.Field(dst.Plug)
	if !sf.Type.Compatible(df.Type) {
		return errors.LinkError(spec, "incompatible types "+sf.Type.String()+" and "+df.Type.String())
	}
	for _, l := range sp.LinksTo {
		if l.dst == dp {
			return nil
		}
	}

	l, err := srcNode.ConnectPlug(src.Plug, dstNode, dst.Plug, weak)
	if err != nil {
		return errors.LinkError(spec, "connect failed").WithCause(err)
	}
	l.Src, l.Dst = src, dst
	p.linkSeq++
	l.seq = p.linkSeq
	p.links = append(p.links, l)
	p.UpdateActivation()
	return nil
}

// RemoveLink removes a link given in its textual form.
func (p *Pipeline) RemoveLink(spec string) error {
	parsed, err := ParseLink(spec)
	if err != nil {
		return err
	}
	for _, l := range p.links {
		if l.Src == parsed.Src && l.Dst == parsed.Dst {
			p.dropLink(l)
			p.UpdateActivation()
			return nil
		}
	}
	return errors.NotFound("link", spec)
}

func (p *Pipeline) dropLink(l *Link) {
	l.disconnect()
	p.links = removeLinkFrom(p.links, l)
}

// RemoveNode removes a child node and every link touching it.
func (p *Pipeline) RemoveNode(name string) error {
	n, ok := p.index[name]
	if !ok {
		return errors.NotFound("node", name)
	}
	for _, l := range append([]*Link(nil), p.links...) {
		if l.src.node == n || l.dst.node == n {
			p.dropLink(l)
		}
	}
	n.ctrl.OffStructure(n.structure)
	delete(p.index, name)
	for i, x := range p.nodes {
		if x == n {
			p.nodes = append(p.nodes[:i:i], p.nodes[i+1:]...)
			break
		}
	}
	if n.pipeline != nil {
		n.pipeline.notify = nil
	}
	p.removeFromSteps(name)
	p.UpdateActivation()
	return nil
}

type exportOptions struct {
	name          string
	optional      *bool
	weak          bool
	allowExisting bool
}

// ExportOption configures ExportParameter.
type ExportOption func(*exportOptions)

// As names the pipeline parameter. The plug name is used by default.
func As(name string) ExportOption {
	return func(o *exportOptions) { o.name = name }
}

// IsOptional overrides the optional flag of the pipeline parameter.
func IsOptional(optional bool) ExportOption {
	return func(o *exportOptions) { o.optional = &optional }
}

// WeakLink exports through a weak link.
func WeakLink() ExportOption {
	return func(o *exportOptions) { o.weak = true }
}

// AllowExisting connects the plug to an existing pipeline parameter
// instead of failing.
func AllowExisting() ExportOption {
	return func(o *exportOptions) { o.allowExisting = true }
}

// ExportParameter exposes a child plug as a pipeline parameter linked to
// it. Exporting the same plug again under the same name is a no-op.
func (p *Pipeline) ExportParameter(node, plug string, opts ...ExportOption) error {
	if err := p.checkEditable("ExportParameter"); err != nil {
		return err
	}
	var o exportOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = plug
	}
	n, ok := p.index[node]
	if !ok {
		return errors.NotFound("node", node)
	}
	pl, ok := n.plugIndex[plug]
	if !ok {
		return errors.NotFound("plug", node+"."+plug)
	}
	f, _ := n.ctrl.Field(plug)

	if p.ctrl.Has(o.name) {
		if rp, ok := p.root.plugIndex[o.name]; ok && linkedTo(rp, pl) {
			return p.applyExportOptional(o)
		}
		if !o.allowExisting {
			return errors.ExportError(o.name, "pipeline parameter already exists")
		}
	} else {
		if err := p.ctrl.AddField(o.name, f.Type, controller.WithField(f)); err != nil {
			return errors.ExportError(o.name, "cannot add parameter").WithCause(err)
		}
		if n.ctrl.IsDefined(plug) {
			_ = p.ctrl.Set(o.name, n.ctrl.Get(plug))
		}
	}
	if err := p.applyExportOptional(o); err != nil {
		return err
	}

	if f.IsOutput() {
		return p.addLink(PlugRef{Node: node, Plug: plug}, PlugRef{Plug: o.name}, o.weak)
	}
	return p.addLink(PlugRef{Plug: o.name}, PlugRef{Node: node, Plug: plug}, o.weak)
}

func (p *Pipeline) applyExportOptional(o exportOptions) error {
	if o.optional == nil {
		return nil
	}
	return p.root.SetPlugOptional(o.name, *o.optional)
}

func linkedTo(a, b *Plug) bool {
	for _, l := range a.links() {
		if l.other(a) == b {
			return true
		}
	}
	return false
}

// AutoExport exports every unconnected plug of the children not excluded
// with DoNotExport. Optional plugs are exported only when includeOptional is
// set, except switch outputs which always are. A name already taken falls
// back to "<node>_<plug>".
func (p *Pipeline) AutoExport(includeOptional bool) error {
	if err := p.checkEditable("AutoExport"); err != nil {
		return err
	}
	for _, n := range p.nodes {
		for _, pl := range append([]*Plug(nil), n.plugs...) {
			if n.doNotExport[pl.Name] {
				continue
			}
			if (pl.Output && len(pl.LinksTo) > 0) || (!pl.Output && len(pl.LinksFrom) > 0) {
				continue
			}
			if pl.Optional && !includeOptional && !(n.Kind == KindSwitch && pl.Output) {
				continue
			}
			if n.Kind == KindSwitch && !pl.Enabled {
				continue
			}
			name := pl.Name
			if p.ctrl.Has(name) {
				name = n.Name + "_" + pl.Name
				if p.ctrl.Has(name) {
					continue
				}
			}
			if err := p.ExportParameter(n.Name, pl.Name, As(name)); err != nil {
				return err
			}
		}
	}
	return nil
}
