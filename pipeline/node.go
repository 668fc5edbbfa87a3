package pipeline

import (
	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/process"
)

// Kind enumerates node variants.
type Kind string

const (
	KindProcess   Kind = "process"
	KindPipeline  Kind = "pipeline"
	KindSwitch    Kind = "switch"
	KindIterative Kind = "iterative"
	KindCustom    Kind = "custom"
)

// Node is a vertex of the pipeline graph. Its plugs mirror the non-hidden
// fields of its controller.
type Node struct {
	Name      string
	Kind      Kind
	Enabled   bool
	Activated bool

	plugs     []*Plug
	plugIndex map[string]*Plug
	ctrl      *controller.Controller
	prefix    string

	process  process.Process
	pipeline *Pipeline
	sw       *switchState
	iter     *iteration
	custom   *customState

	doNotExport map[string]bool
	structure   controller.Subscription
}

func newNode(name string, kind Kind, ctrl *controller.Controller) *Node {
	n := &Node{
		Name:        name,
		Kind:        kind,
		Enabled:     true,
		plugIndex:   make(map[string]*Plug),
		ctrl:        ctrl,
		doNotExport: make(map[string]bool),
	}
	for _, f := range ctrl.Fields() {
		n.addPlug(f)
	}
	n.structure = ctrl.OnStructure(func(ev controller.StructureEvent) {
		if ev.Added != "" {
			if f, ok := ctrl.Field(ev.Added); ok {
				n.addPlug(f)
			}
		}
		if ev.Removed != "" {
			n.removePlug(ev.Removed)
		}
	})
	return n
}

func (n *Node) addPlug(f controller.Field) *Plug {
	if f.Hidden {
		return nil
	}
	if pl, ok := n.plugIndex[f.Name]; ok {
		return pl
	}
	pl := &Plug{Name: f.Name, Output: f.IsOutput(), Optional: f.Optional, Enabled: true, node: n}
	n.plugs = append(n.plugs, pl)
	n.plugIndex[f.Name] = pl
	return pl
}

func (n *Node) removePlug(name string) {
	if pl, ok := n.plugIndex[name]; ok {
		for _, l := range pl.links() {
			l.disconnect()
			l.detached = true
		}
	}
	delete(n.plugIndex, name)
	for i, pl := range n.plugs {
		if pl.Name == name {
			n.plugs = append(n.plugs[:i:i], n.plugs[i+1:]...)
			return
		}
	}
}

// Plugs returns the plugs in field order.
func (n *Node) Plugs() []*Plug { return n.plugs }

// Plug returns the named plug.
func (n *Node) Plug(name string) (*Plug, bool) {
	pl, ok := n.plugIndex[name]
	return pl, ok
}

// Controller returns the controller backing the plugs.
func (n *Node) Controller() *controller.Controller { return n.ctrl }

// Process returns the wrapped process of a process node, or nil.
func (n *Node) Process() process.Process { return n.process }

// Pipeline returns the sub-pipeline of a pipeline node, or nil.
func (n *Node) Pipeline() *Pipeline { return n.pipeline }

// FullName returns the dotted path of the node from the top-level pipeline.
func (n *Node) FullName() string { return n.prefix + n.Name }

// Definition returns the definition string the node was built from.
func (n *Node) Definition() string {
	switch {
	case n.process != nil:
		return n.process.Definition()
	case n.pipeline != nil:
		return n.pipeline.definition
	case n.iter != nil:
		return n.iter.definition()
	case n.custom != nil:
		return customDefinitionPrefix + n.custom.kind
	}
	return ""
}

// IsLeaf reports whether the node becomes jobs in a workflow.
func (n *Node) IsLeaf() bool { return n.Kind == KindProcess || n.Kind == KindIterative }

// IsParameterSet reports whether the plug value is defined or will be
// supplied by an active link at execution.
func (n *Node) IsParameterSet(name string) bool {
	if n.ctrl.IsDefined(name) {
		return true
	}
	pl, ok := n.plugIndex[name]
	if !ok {
		return false
	}
	for _, l := range pl.LinksFrom {
		if l.src.Activated && !l.Shadowed {
			return true
		}
	}
	return false
}

// SetPlugOptional changes whether the plug must be satisfied for the node
// to activate.
func (n *Node) SetPlugOptional(name string, optional bool) error {
	pl, ok := n.plugIndex[name]
	if !ok {
		return errors.NotFound("plug", n.Name+"."+name)
	}
	pl.Optional = optional
	return n.ctrl.SetOptional(name, optional)
}

// ConnectPlug joins a plug of n to a plug of dst without validation and
// starts value sharing between them. Pipelines use it after checking the
// link.
func (n *Node) ConnectPlug(srcPlug string, dst *Node, dstPlug string, weak bool) (*Link, error) {
	src, ok := n.plugIndex[srcPlug]
	if !ok {
		return nil, errors.NotFound("plug", n.Name+"."+srcPlug)
	}
	d, ok := dst.plugIndex[dstPlug]
	if !ok {
		return nil, errors.NotFound("plug", dst.Name+"."+dstPlug)
	}
	l := &Link{
		Src:  PlugRef{Node: n.Name, Plug: srcPlug},
		Dst:  PlugRef{Node: dst.Name, Plug: dstPlug},
		Weak: weak,
		src:  src,
		dst:  d,
	}
	src.LinksTo = append(src.LinksTo, l)
	d.LinksFrom = append(d.LinksFrom, l)
	l.startSync()
	return l, nil
}

// startSync shares values between both ends of the link. The current
// source value wins, otherwise the destination value is pushed back.
func (l *Link) startSync() {
	srcCtrl, dstCtrl := l.src.node.ctrl, l.dst.node.ctrl
	srcName, dstName := l.src.Name, l.dst.Name
	if srcCtrl.IsDefined(srcName) {
		_ = dstCtrl.Set(dstName, srcCtrl.Get(srcName))
	} else if dstCtrl.IsDefined(dstName) {
		_ = srcCtrl.Set(srcName, dstCtrl.Get(dstName))
	}
	l.subs[0] = srcCtrl.OnChange(srcName, func(ev controller.ChangeEvent) {
		if ev.SubField == "" {
			_ = dstCtrl.Set(dstName, ev.New)
		}
	})
	l.subs[1] = dstCtrl.OnChange(dstName, func(ev controller.ChangeEvent) {
		if ev.SubField == "" {
			_ = srcCtrl.Set(srcName, ev.New)
		}
	})
}

func (l *Link) disconnect() {
	l.src.node.ctrl.OffChange(l.subs[0])
	l.dst.node.ctrl.OffChange(l.subs[1])
	l.src.removeLink(l)
	l.dst.removeLink(l)
}
