package pipeline

import (
	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
)

const stepNodesMeta = "nodes"

// AddPipelineStep groups child nodes under a step that can be disabled as
// a whole. Steps start enabled.
func (p *Pipeline) AddPipelineStep(step string, nodes []string) error {
	if err := p.checkEditable("AddPipelineStep"); err != nil {
		return err
	}
	for _, name := range nodes {
		if _, ok := p.index[name]; !ok {
			return errors.NotFound("node", name)
		}
	}
	members := append([]string(nil), nodes...)
	return p.steps.AddField(step, controller.Bool, controller.Default(true), controller.Meta(stepNodesMeta, members))
}

// Steps returns the step names in declaration order.
func (p *Pipeline) Steps() []string {
	fields := p.steps.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// StepNodes returns the nodes grouped under a step.
func (p *Pipeline) StepNodes(step string) []string {
	f, ok := p.steps.Field(step)
	if !ok {
		return nil
	}
	nodes, _ := f.Meta[stepNodesMeta].([]string)
	return nodes
}

// StepEnabled reports whether a step is enabled.
func (p *Pipeline) StepEnabled(step string) bool {
	v, _ := p.steps.Get(step).(bool)
	return v
}

// SetStepEnabled enables or disables every node of a step for workflow
// compilation. Activation is not affected.
func (p *Pipeline) SetStepEnabled(step string, enabled bool) error {
	if !p.steps.Has(step) {
		return errors.NotFound("pipeline step", step)
	}
	if err := p.steps.Set(step, enabled); err != nil {
		return err
	}
	p.log.Debug("pipeline step changed", logger.Fields("step", step, "enabled", enabled))
	return nil
}

// DisabledStepNodes returns the full names of the nodes excluded by
// disabled steps, sub-pipeline contents included.
func (p *Pipeline) DisabledStepNodes() []string {
	var out []string
	off := p.stepDisabled()
	for _, n := range p.allNodes() {
		if off[n] {
			out = append(out, n.FullName())
		}
	}
	return out
}

// stepDisabled returns the set of nodes excluded by disabled steps. Nodes
// inside an excluded sub-pipeline or iterative node are excluded too.
func (p *Pipeline) stepDisabled() map[*Node]bool {
	out := make(map[*Node]bool)
	p.collectStepDisabled(out, false)
	return out
}

func (p *Pipeline) collectStepDisabled(out map[*Node]bool, parentOff bool) {
	off := make(map[string]bool)
	for _, step := range p.Steps() {
		if p.StepEnabled(step) {
			continue
		}
		for _, name := range p.StepNodes(step) {
			off[name] = true
		}
	}
	for _, n := range p.nodes {
		disabled := parentOff || off[n.Name]
		if disabled {
			out[n] = true
		}
		switch {
		case n.pipeline != nil:
			n.pipeline.collectStepDisabled(out, disabled)
		case n.iter != nil:
			n.iter.pipeline.collectStepDisabled(out, disabled)
		}
	}
}

func (p *Pipeline) removeFromSteps(node string) {
	for _, step := range p.Steps() {
		f, _ := p.steps.Field(step)
		nodes, _ := f.Meta[stepNodesMeta].([]string)
		kept := nodes[:0:0]
		for _, n := range nodes {
			if n != node {
				kept = append(kept, n)
			}
		}
		if len(kept) != len(nodes) {
			enabled := p.StepEnabled(step)
			_ = p.steps.RemoveField(step)
			_ = p.steps.AddField(step, controller.Bool, controller.Default(enabled), controller.Meta(stepNodesMeta, kept))
		}
	}
}
