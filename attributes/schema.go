package attributes

import (
	"slices"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/validation"
)

// Schema is a named set of editable attribute groups.
type Schema struct {
	Name   string           `yaml:"name" json:"name"`
	Groups map[string]Group `yaml:"groups" json:"groups"`
}

// Group is a set of attributes edited together, such as the subject
// identification shared by every input of a process.
type Group struct {
	Name       string   `yaml:"-" json:"name"`
	Attributes []string `yaml:"attributes" json:"attributes"`
	// Defaults are the initial values of some attributes.
	Defaults map[string]any `yaml:"defaults,omitempty" json:"defaults,omitempty"`
}

// NewSchema builds a schema from groups.
func NewSchema(name string, groups ...Group) *Schema {
	s := &Schema{Name: name, Groups: make(map[string]Group, len(groups))}
	for _, g := range groups {
		s.Groups[g.Name] = g
	}
	return s
}

// LoadSchema parses a YAML schema:
//
//	name: bids
//	groups:
//	  subject:
//	    attributes: [sub, ses]
//	  acquisition:
//	    attributes: [data_type, suffix, extension]
//	    defaults: {extension: nii.gz}
func LoadSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.InvalidInput("schema", err.Error()).WithCause(err)
	}
	v := validation.New()
	v.Required("name", s.Name)
	for name, g := range s.Groups {
		g.Name = name
		s.Groups[name] = g
		v.Check(len(g.Attributes) > 0, "groups."+name, "has no attributes")
		for attr := range g.Defaults {
			v.Check(slices.Contains(g.Attributes, attr), "groups."+name+".defaults", "unknown attribute "+attr)
		}
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Group returns the group named name.
func (s *Schema) Group(name string) (Group, error) {
	g, ok := s.Groups[name]
	if !ok {
		return Group{}, errors.UnknownAttribute(name).WithDetail("schema", s.Name)
	}
	return g, nil
}
