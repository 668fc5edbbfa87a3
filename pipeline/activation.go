package pipeline

// DelayActivation suspends activation updates until the matching
// RestoreActivation. Calls nest.
func (p *Pipeline) DelayActivation() {
	p.delay++
}

// RestoreActivation ends a DelayActivation batch and runs a pending update.
func (p *Pipeline) RestoreActivation() {
	if p.delay > 0 {
		p.delay--
	}
	if p.delay == 0 && p.pending {
		p.pending = false
		p.UpdateActivation()
	}
}

// UpdateActivation recomputes the activation state of every node, plug and
// link of the pipeline tree. A sub-pipeline forwards the request to the
// top-level pipeline.
func (p *Pipeline) UpdateActivation() {
	if p.delay > 0 || p.defining {
		p.pending = true
		return
	}
	if p.notify != nil {
		p.notify()
		return
	}
	p.pending = false
	p.delay++
	p.solve()
	p.delay--
}

func (p *Pipeline) solve() {
	nodes := p.allNodes()
	for _, n := range nodes {
		n.Activated = false
		for _, pl := range n.plugs {
			pl.Activated = !pl.IsLinked()
		}
	}

	toCheck := nodes
	for len(toCheck) > 0 {
		next := newNodeSet()
		for _, n := range toCheck {
			for _, pl := range p.activateLocal(n) {
				for _, l := range pl.links() {
					if o := l.other(pl); !l.Weak && o.Enabled {
						next.add(o.node)
					}
				}
			}
		}
		toCheck = next.list
	}

	toCheck = nodes
	for len(toCheck) > 0 {
		next := newNodeSet()
		for _, n := range toCheck {
			wasActive := n.Activated
			changed := p.deactivateLocal(n)
			for _, pl := range changed {
				for _, l := range pl.links() {
					if o := l.other(pl); o.Activated {
						next.add(o.node)
					}
				}
			}
			if wasActive && !n.Activated {
				for _, pl := range n.plugs {
					if !pl.Activated {
						continue
					}
					pl.Activated = false
					for _, l := range pl.links() {
						if o := l.other(pl); o.Activated {
							next.add(o.node)
						}
					}
				}
			}
		}
		toCheck = next.list
	}

	for _, n := range nodes {
		if n == p.root {
			continue
		}
		for _, pl := range n.plugs {
			if !n.Activated || !pl.Enabled {
				pl.Activated = false
			}
		}
	}
	p.markLinks(p.allLinks())
}

// activateLocal tries to activate n from the state of its neighbours and
// returns the plugs it activated.
func (p *Pipeline) activateLocal(n *Node) []*Plug {
	if !n.Enabled {
		return nil
	}
	var activated []*Plug
	if n == p.root {
		n.Activated = true
		for _, pl := range n.plugs {
			if pl.Enabled && !pl.Activated {
				pl.Activated = true
				activated = append(activated, pl)
			}
		}
		return activated
	}

	nodeActive := true
	for _, pl := range n.plugs {
		if pl.Output {
			continue
		}
		if pl.Enabled && !pl.Activated {
			if pl.HasDefault {
				pl.Activated = true
			} else {
				for _, l := range pl.LinksFrom {
					if !l.Weak && l.src.Activated {
						pl.Activated = true
						break
					}
				}
			}
			if pl.Activated {
				activated = append(activated, pl)
			}
		}
		if !pl.Activated && !pl.Optional {
			nodeActive = false
		}
	}
	if nodeActive {
		n.Activated = true
		for _, pl := range n.plugs {
			if pl.Output && pl.Enabled && !pl.Activated {
				pl.Activated = true
				activated = append(activated, pl)
			}
		}
	}
	return activated
}

// deactivateLocal removes activation from plugs no longer backed by an
// active neighbour and returns the plugs it deactivated.
func (p *Pipeline) deactivateLocal(n *Node) []*Plug {
	if !n.Activated {
		return nil
	}
	var deactivated []*Plug
	lostMandatory := false
	hasOutputs := false
	for _, pl := range n.plugs {
		if pl.Output {
			hasOutputs = true
		}
	}
	deactivateNode := hasOutputs
	for _, pl := range n.plugs {
		if pl.Activated && !pl.HasDefault {
			var active bool
			switch {
			case n.Kind == KindPipeline && n != p.root && pl.Output:
				active = plugActivation(pl.LinksTo, pl) && plugActivation(pl.LinksFrom, pl)
			case pl.Output != (n == p.root):
				active = plugActivation(pl.LinksTo, pl)
			default:
				active = plugActivation(pl.LinksFrom, pl)
			}
			if !active {
				pl.Activated = false
				deactivated = append(deactivated, pl)
				if !pl.Optional && n != p.root {
					n.Activated = false
					lostMandatory = true
				}
			}
		}
		if pl.Output && pl.Activated {
			deactivateNode = false
		}
		if lostMandatory {
			break
		}
	}
	if lostMandatory {
		return deactivated
	}
	if deactivateNode {
		n.Activated = false
		for _, pl := range n.plugs {
			if pl.Activated {
				pl.Activated = false
				deactivated = append(deactivated, pl)
			}
		}
	}
	return deactivated
}

// plugActivation reports whether links keep a plug active: a non weak link
// to an active plug, or, when every link is weak, any link to an active plug.
func plugActivation(links []*Link, pl *Plug) bool {
	if len(links) == 0 {
		return true
	}
	strong := false
	weakActive := false
	for _, l := range links {
		o := l.other(pl)
		if l.Weak {
			weakActive = weakActive || o.Activated
			continue
		}
		if o.Activated {
			return true
		}
		strong = true
	}
	if strong {
		return false
	}
	return weakActive
}

// markLinks derives link activation and flags every active incoming link of
// a plug but the last added one as shadowed.
func (p *Pipeline) markLinks(links []*Link) {
	last := make(map[*Plug]*Link)
	for _, l := range links {
		l.Shadowed = false
		l.Activated = l.src.Activated && l.dst.Activated && l.src.node.Activated && l.dst.node.Activated
		if !l.Activated || l.dst.node == p.root {
			continue
		}
		if prev, ok := last[l.dst]; ok {
			if prev.seq > l.seq {
				l.Shadowed = true
				continue
			}
			prev.Shadowed = true
		}
		last[l.dst] = l
	}
}

func (pl *Plug) links() []*Link {
	out := make([]*Link, 0, len(pl.LinksFrom)+len(pl.LinksTo))
	out = append(out, pl.LinksFrom...)
	return append(out, pl.LinksTo...)
}

type nodeSet struct {
	seen map[*Node]bool
	list []*Node
}

func newNodeSet() *nodeSet { return &nodeSet{seen: make(map[*Node]bool)} }

func (s *nodeSet) add(n *Node) {
	if !s.seen[n] {
		s.seen[n] = true
		s.list = append(s.list, n)
	}
}
