package pipeline

import (
	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
)

// SwitchField is the controller field holding the selected branch.
const SwitchField = "switch"

type switchState struct {
	branches []string
	outputs  []string
	// block stops output changes made by the switch itself from flowing
	// back to the branch inputs.
	block bool
}

func switchInput(branch, output string) string {
	return branch + "_switch_" + output
}

// SwitchOption configures AddSwitch.
type SwitchOption func(*switchOptions)

type switchOptions struct {
	optional map[string]bool
	types    map[string]controller.Type
	export   bool
	selected string
}

// OptionalOutputs makes the listed switch outputs optional.
func OptionalOutputs(names ...string) SwitchOption {
	return func(o *switchOptions) {
		for _, n := range names {
			o.optional[n] = true
		}
	}
}

// OutputType sets the type of a switch output and of its branch inputs.
func OutputType(output string, t controller.Type) SwitchOption {
	return func(o *switchOptions) { o.types[output] = t }
}

// NoSwitchExport keeps the selection from being exported as a pipeline
// parameter.
func NoSwitchExport() SwitchOption {
	return func(o *switchOptions) { o.export = false }
}

// Selected sets the initially selected branch.
func Selected(branch string) SwitchOption {
	return func(o *switchOptions) { o.selected = branch }
}

// AddSwitch declares a switch choosing which branch feeds the outputs. For
// every branch b and output o the switch has an input plug "b_switch_o".
// The selection is exported as a pipeline parameter named after the switch
// unless NoSwitchExport is given.
func (p *Pipeline) AddSwitch(name string, branches, outputs []string, opts ...SwitchOption) error {
	if err := p.checkEditable("AddSwitch"); err != nil {
		return err
	}
	if len(branches) == 0 {
		return errors.InvalidInput("branches", "a switch needs at least one branch")
	}
	o := switchOptions{
		optional: make(map[string]bool),
		types:    make(map[string]controller.Type),
		export:   true,
		selected: branches[0],
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctrl := controller.New()
	if err := ctrl.AddField(SwitchField, controller.Enum(branches...), controller.Default(o.selected)); err != nil {
		return err
	}
	typeOf := func(out string) controller.Type {
		if t, ok := o.types[out]; ok {
			return t
		}
		return controller.Any
	}
	for _, b := range branches {
		for _, out := range outputs {
			if err := ctrl.AddField(switchInput(b, out), typeOf(out), controller.Optional()); err != nil {
				return err
			}
		}
	}
	for _, out := range outputs {
		fo := []controller.FieldOption{controller.Output()}
		if o.optional[out] {
			fo = append(fo, controller.Optional())
		}
		if err := ctrl.AddField(out, typeOf(out), fo...); err != nil {
			return err
		}
	}

	n := newNode(name, KindSwitch, ctrl)
	n.sw = &switchState{branches: branches, outputs: outputs}
	for _, b := range branches {
		for _, out := range outputs {
			n.plugIndex[switchInput(b, out)].Enabled = b == o.selected
		}
	}
	if err := p.addNode(n); err != nil {
		return err
	}
	p.watchSwitch(n)

	if o.export {
		return p.ExportParameter(name, SwitchField, As(name))
	}
	return nil
}

// SetSwitch selects a branch of a switch node.
func (p *Pipeline) SetSwitch(name, branch string) error {
	n, ok := p.Node(name)
	if !ok || n.sw == nil {
		return errors.NotFound("switch", name)
	}
	return n.ctrl.Set(SwitchField, branch)
}

// Selection returns the branch selected on a switch node.
func (n *Node) Selection() string {
	if n.sw == nil {
		return ""
	}
	s, _ := n.ctrl.Get(SwitchField).(string)
	return s
}

// Branches returns the branch names of a switch node.
func (n *Node) Branches() []string {
	if n.sw == nil {
		return nil
	}
	return n.sw.branches
}

// SwitchOutputs returns the output plug names of a switch node.
func (n *Node) SwitchOutputs() []string {
	if n.sw == nil {
		return nil
	}
	return n.sw.outputs
}

func (p *Pipeline) watchSwitch(n *Node) {
	sw, ctrl := n.sw, n.ctrl
	ctrl.OnChange(SwitchField, func(ev controller.ChangeEvent) {
		newSel, ok := ev.New.(string)
		if !ok {
			return
		}
		oldSel, _ := ev.Old.(string)
		sw.block = true
		defer func() { sw.block = false }()
		p.DelayActivation()
		defer p.RestoreActivation()
		for _, out := range sw.outputs {
			if pl, ok := n.plugIndex[switchInput(oldSel, out)]; ok {
				pl.Enabled = false
			}
			if pl, ok := n.plugIndex[switchInput(newSel, out)]; ok {
				pl.Enabled = true
			}
		}
		p.UpdateActivation()
		for _, out := range sw.outputs {
			_ = ctrl.Set(out, ctrl.Get(switchInput(newSel, out)))
		}
	})
	for _, out := range sw.outputs {
		ctrl.OnChange(out, func(ev controller.ChangeEvent) {
			if sw.block || ev.SubField != "" {
				return
			}
			sw.block = true
			defer func() { sw.block = false }()
			for _, b := range sw.branches {
				in := switchInput(b, out)
				if fedByPipelineInput(n.plugIndex[in]) {
					continue
				}
				_ = ctrl.Set(in, ev.New)
			}
		})
		for _, b := range sw.branches {
			ctrl.OnChange(switchInput(b, out), func(ev controller.ChangeEvent) {
				if ev.SubField != "" || n.Selection() != b {
					return
				}
				sw.block = true
				defer func() { sw.block = false }()
				_ = ctrl.Set(out, ev.New)
			})
		}
	}
}

// fedByPipelineInput reports whether a plug receives a link from an input
// of a pipeline node.
func fedByPipelineInput(pl *Plug) bool {
	if pl == nil {
		return false
	}
	for _, l := range pl.LinksFrom {
		if l.src.node.Kind == KindPipeline && !l.src.Output {
			return true
		}
	}
	return false
}
