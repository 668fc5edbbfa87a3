package pipeline

import (
	"github.com/kbukum/capsule/controller"
)

// Snapshot holds the plug values of a pipeline tree, iteration pipelines
// included.
type Snapshot struct {
	values []ctrlValues
}

type ctrlValues struct {
	ctrl   *controller.Controller
	values map[string]any
}

// Snapshot records the current values of every node of the tree.
func (p *Pipeline) Snapshot() Snapshot {
	var s Snapshot
	p.snapshotInto(&s)
	return s
}

func (p *Pipeline) snapshotInto(s *Snapshot) {
	for _, n := range p.allNodes() {
		vals := make(map[string]any)
		for _, f := range n.ctrl.Fields() {
			vals[f.Name] = n.ctrl.Get(f.Name)
		}
		s.values = append(s.values, ctrlValues{ctrl: n.ctrl, values: vals})
		if n.iter != nil {
			n.iter.pipeline.snapshotInto(s)
		}
	}
}

// Restore puts back the values recorded by Snapshot. Fields added since
// the snapshot keep their value.
func (p *Pipeline) Restore(s Snapshot) {
	p.DelayActivation()
	defer p.RestoreActivation()
	for _, cv := range s.values {
		for name, v := range cv.values {
			if cv.ctrl.Has(name) {
				_ = cv.ctrl.Set(name, v)
			}
		}
	}
}
