package pipeline

import (
	"github.com/kbukum/capsule/errors"
)

// Endpoint designates a plug of a leaf node reached through the graph.
type Endpoint struct {
	Node *Node
	Plug string
}

// Dataflow answers producer and consumer questions about the active graph,
// looking through switches, custom nodes and sub-pipeline boundaries. It
// reflects the activation state at the time it was built.
type Dataflow struct {
	p      *Pipeline
	off    map[*Node]bool
	leaves []*Node
	// structural follows every link regardless of activation.
	structural bool
}

// Dataflow captures the current activation and step state.
func (p *Pipeline) Dataflow() *Dataflow {
	d := &Dataflow{p: p, off: p.stepDisabled()}
	for _, n := range p.allNodes() {
		if n.IsLeaf() && n.Activated && !d.off[n] && hasActivePlug(n) {
			d.leaves = append(d.leaves, n)
		}
	}
	return d
}

// sourceGraph is the dataflow of every enabled leaf over every link,
// before activation removes anything. A cycle of the pipeline does not
// survive activation, so it is only visible here.
func (p *Pipeline) sourceGraph() *Dataflow {
	d := &Dataflow{p: p, off: p.stepDisabled(), structural: true}
	for _, n := range p.allNodes() {
		if n.IsLeaf() && n.Enabled && !d.off[n] {
			d.leaves = append(d.leaves, n)
		}
	}
	return d
}

// CheckCycles fails with CYCLE when the enabled nodes form a cycle, looking
// through switches (selected branch), custom nodes and sub-pipelines.
// Iterative nodes count as one node.
func (p *Pipeline) CheckCycles() error {
	_, err := p.sourceGraph().Order()
	return err
}

func (d *Dataflow) follows(l *Link) bool {
	if d.structural {
		return true
	}
	return l.Activated && !l.Shadowed
}

func hasActivePlug(n *Node) bool {
	for _, pl := range n.plugs {
		if pl.Activated {
			return true
		}
	}
	return false
}

// Leaves returns the nodes becoming jobs: active process and iterative
// nodes not excluded by a step, in declaration order.
func (d *Dataflow) Leaves() []*Node { return d.leaves }

// StepDisabled reports whether a disabled step excludes n.
func (d *Dataflow) StepDisabled(n *Node) bool { return d.off[n] }

// Producers returns the leaf outputs feeding an input plug of n.
func (d *Dataflow) Producers(n *Node, plug string) []Endpoint {
	pl, ok := n.plugIndex[plug]
	if !ok {
		return nil
	}
	var out []Endpoint
	d.traceBack(pl, make(map[*Plug]bool), &out)
	return out
}

func (d *Dataflow) traceBack(pl *Plug, seen map[*Plug]bool, out *[]Endpoint) {
	if seen[pl] {
		return
	}
	seen[pl] = true
	for _, l := range pl.LinksFrom {
		if !d.follows(l) {
			continue
		}
		src := l.src
		sn := src.node
		switch {
		case sn.IsLeaf():
			if !d.off[sn] {
				*out = append(*out, Endpoint{Node: sn, Plug: src.Name})
			}
		case sn.Kind == KindSwitch:
			if in, ok := sn.plugIndex[switchInput(sn.Selection(), src.Name)]; ok {
				d.traceBack(in, seen, out)
			}
		case sn.Kind == KindCustom:
			for _, in := range sn.plugs {
				if !in.Output {
					d.traceBack(in, seen, out)
				}
			}
		case sn == d.p.root:
		default:
			d.traceBack(src, seen, out)
		}
	}
}

// Consumers returns the leaf inputs fed by an output plug of n, and the
// plugs of the pipeline root it reaches.
func (d *Dataflow) Consumers(n *Node, plug string) ([]Endpoint, []*Plug) {
	pl, ok := n.plugIndex[plug]
	if !ok {
		return nil, nil
	}
	var out []Endpoint
	var exports []*Plug
	d.traceForward(pl, make(map[*Plug]bool), &out, &exports)
	return out, exports
}

func (d *Dataflow) traceForward(pl *Plug, seen map[*Plug]bool, out *[]Endpoint, exports *[]*Plug) {
	if seen[pl] {
		return
	}
	seen[pl] = true
	for _, l := range pl.LinksTo {
		if !d.follows(l) {
			continue
		}
		dst := l.dst
		dn := dst.node
		switch {
		case dn.IsLeaf():
			if !d.off[dn] {
				*out = append(*out, Endpoint{Node: dn, Plug: dst.Name})
			}
		case dn.Kind == KindSwitch:
			sel := dn.Selection()
			for _, o := range dn.sw.outputs {
				if switchInput(sel, o) == dst.Name {
					d.traceForward(dn.plugIndex[o], seen, out, exports)
				}
			}
		case dn.Kind == KindCustom:
			for _, o := range dn.plugs {
				if o.Output {
					d.traceForward(o, seen, out, exports)
				}
			}
		case dn == d.p.root:
			*exports = append(*exports, dst)
		default:
			d.traceForward(dst, seen, out, exports)
		}
	}
}

// Order returns the leaves in dependency order. Among ready nodes the one
// declared first comes first.
func (d *Dataflow) Order() ([]*Node, error) {
	index := make(map[*Node]int, len(d.leaves))
	for i, n := range d.leaves {
		index[n] = i
	}
	succ := make([][]int, len(d.leaves))
	indeg := make([]int, len(d.leaves))
	for i, n := range d.leaves {
		seen := make(map[int]bool)
		for _, pl := range n.plugs {
			if pl.Output || (!pl.Activated && !d.structural) {
				continue
			}
			for _, e := range d.Producers(n, pl.Name) {
				j, ok := index[e.Node]
				if !ok || j == i || seen[j] {
					continue
				}
				seen[j] = true
				succ[j] = append(succ[j], i)
				indeg[i]++
			}
		}
	}

	done := make([]bool, len(d.leaves))
	order := make([]*Node, 0, len(d.leaves))
	for len(order) < len(d.leaves) {
		next := -1
		for i := range d.leaves {
			if !done[i] && indeg[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var names []string
			for i, n := range d.leaves {
				if !done[i] {
					names = append(names, n.FullName())
				}
			}
			return nil, errors.Cycle(names)
		}
		done[next] = true
		order = append(order, d.leaves[next])
		for _, s := range succ[next] {
			indeg[s]--
		}
	}
	return order, nil
}

// WorkflowOrderedNodes returns the nodes that would become jobs, in
// execution order.
func (p *Pipeline) WorkflowOrderedNodes() ([]*Node, error) {
	if err := p.CheckCycles(); err != nil {
		return nil, err
	}
	return p.Dataflow().Order()
}
