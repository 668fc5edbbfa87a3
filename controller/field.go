package controller

import "maps"

// Field describes one named parameter of a Controller.
type Field struct {
	Name string
	Type Type
	// Output marks a field produced by execution rather than consumed.
	Output   bool
	Optional bool
	Default  any
	Doc      string
	// Write marks an output-like path the process writes although the
	// value is supplied as an input (a destination filename).
	Write      bool
	Hidden     bool
	Extensions []string
	Meta       map[string]any
}

// IsOutput reports whether the field is produced by execution, either as
// a computed value or as a written path.
func (f Field) IsOutput() bool { return f.Output || f.Write }

// IsInput reports whether the field is consumed by execution.
func (f Field) IsInput() bool { return !f.IsOutput() }

// HasDefault reports whether a default value was declared.
func (f Field) HasDefault() bool { return !IsUndefined(f.Default) }

func (f Field) clone() Field {
	f.Extensions = append([]string(nil), f.Extensions...)
	f.Meta = maps.Clone(f.Meta)
	return f
}

// FieldOption configures a Field in AddField.
type FieldOption func(*Field)

// Output declares the field as an output.
func Output() FieldOption {
	return func(f *Field) { f.Output = true }
}

// Optional declares the field as not required for execution.
func Optional() FieldOption {
	return func(f *Field) { f.Optional = true }
}

// Default sets the initial value of the field.
func Default(v any) FieldOption {
	return func(f *Field) { f.Default = v }
}

// Doc sets the field description.
func Doc(s string) FieldOption {
	return func(f *Field) { f.Doc = s }
}

// Write marks the field as a path the process writes to.
func Write() FieldOption {
	return func(f *Field) { f.Write = true }
}

// Hidden keeps the field out of the plugs of a node.
func Hidden() FieldOption {
	return func(f *Field) { f.Hidden = true }
}

// Extensions lists the file extensions produced for a path field. The first
// one is used for temporary paths.
func Extensions(exts ...string) FieldOption {
	return func(f *Field) { f.Extensions = append(f.Extensions, exts...) }
}

// Meta attaches a free-form tag.
func Meta(key string, value any) FieldOption {
	return func(f *Field) {
		if f.Meta == nil {
			f.Meta = make(map[string]any)
		}
		f.Meta[key] = value
	}
}

// WithField copies every attribute of an existing descriptor. It is used
// when a field is re-declared on another controller, as exports do.
func WithField(src Field) FieldOption {
	return func(f *Field) {
		name := f.Name
		*f = src.clone()
		f.Name = name
	}
}
