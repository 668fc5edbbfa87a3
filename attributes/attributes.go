package attributes

import (
	"maps"
	"slices"

	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/process"
)

// Attributes injected on every output parameter.
const (
	GeneratedByProcess   = "generated_by_process"
	GeneratedByParameter = "generated_by_parameter"
)

// ProcessAttributes binds the parameters of a process to attribute groups
// of a schema. Editable attribute values are shared by every parameter
// bound to a group holding them.
type ProcessAttributes struct {
	proc   process.Process
	schema *Schema

	names    []string
	values   map[string]any
	bindings map[string]binding
}

type binding struct {
	groups []string
	fixed  map[string]any
}

// New creates the attributes of proc over schema.
func New(proc process.Process, schema *Schema) *ProcessAttributes {
	return &ProcessAttributes{
		proc:     proc,
		schema:   schema,
		values:   make(map[string]any),
		bindings: make(map[string]binding),
	}
}

// Process returns the process the attributes complete.
func (a *ProcessAttributes) Process() process.Process { return a.proc }

// SetParameterAttributes binds param to the editable attributes of groups
// and to fixed attribute values. A parameter can be bound once.
func (a *ProcessAttributes) SetParameterAttributes(param string, groups []string, fixed map[string]any) error {
	if _, dup := a.bindings[param]; dup {
		return errors.DuplicateAttributeBinding(param)
	}
	if !a.proc.Controller().Has(param) {
		return errors.NotFound("parameter", param).WithDetail("process", a.proc.Name())
	}
	resolved := make([]Group, 0, len(groups))
	for _, name := range groups {
		g, err := a.schema.Group(name)
		if err != nil {
			return err
		}
		resolved = append(resolved, g)
	}
	for _, g := range resolved {
		for _, attr := range g.Attributes {
			if slices.Contains(a.names, attr) {
				continue
			}
			a.names = append(a.names, attr)
			if v, ok := g.Defaults[attr]; ok {
				a.values[attr] = v
			}
		}
	}
	a.bindings[param] = binding{groups: slices.Clone(groups), fixed: maps.Clone(fixed)}
	return nil
}

// Attributes lists the editable attributes in declaration order.
func (a *ProcessAttributes) Attributes() []string {
	return slices.Clone(a.names)
}

// Set assigns an editable attribute. A nil value clears it.
func (a *ProcessAttributes) Set(attr string, value any) error {
	if !slices.Contains(a.names, attr) {
		return errors.UnknownAttribute(attr)
	}
	if value == nil {
		delete(a.values, attr)
		return nil
	}
	a.values[attr] = value
	return nil
}

// SetValues assigns several editable attributes.
func (a *ProcessAttributes) SetValues(values map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if err := a.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value of an editable attribute.
func (a *ProcessAttributes) Get(attr string) (any, bool) {
	v, ok := a.values[attr]
	return v, ok
}

// Parameters lists the bound parameters, sorted.
func (a *ProcessAttributes) Parameters() []string {
	return slices.Sorted(maps.Keys(a.bindings))
}

// ParametersAttributes returns the final attribute map of every parameter
// that has one. Outputs carry the generating process and parameter, then
// the values of their groups, then their fixed values.
func (a *ProcessAttributes) ParametersAttributes() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, f := range a.proc.Controller().Fields() {
		attrs := make(map[string]any)
		if f.IsOutput() {
			attrs[GeneratedByProcess] = a.proc.Name()
			attrs[GeneratedByParameter] = f.Name
		}
		if b, ok := a.bindings[f.Name]; ok {
			for _, name := range b.groups {
				g, _ := a.schema.Group(name)
				for _, attr := range g.Attributes {
					if v, ok := a.values[attr]; ok {
						attrs[attr] = v
					}
				}
			}
			maps.Copy(attrs, b.fixed)
		}
		if len(attrs) > 0 {
			out[f.Name] = attrs
		}
	}
	return out
}
