package attributes

import (
	"maps"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
)

// Complete builds a path for every bound path parameter of the process and
// sets it on the process. List parameters get one path per element of
// their list-valued attributes; scalar attributes are shared by every
// element. It returns the assigned values.
func Complete(a *ProcessAttributes, builder PathBuilder) (map[string]any, error) {
	ctrl := a.proc.Controller()
	all := a.ParametersAttributes()
	assigned := make(map[string]any)
	for _, param := range a.Parameters() {
		f, ok := ctrl.Field(param)
		if !ok || !f.Type.IsPath() {
			continue
		}
		attrs := all[param]

		var value any
		if f.Type.Kind == controller.KindList {
			paths, err := buildList(param, attrs, builder)
			if err != nil {
				return assigned, err
			}
			value = paths
		} else {
			path, err := builder.BuildPath(attrs)
			if err != nil {
				return assigned, withParam(err, param)
			}
			value = path
		}
		if err := ctrl.Set(param, value); err != nil {
			return assigned, err
		}
		assigned[param] = value
	}
	return assigned, nil
}

func buildList(param string, attrs map[string]any, builder PathBuilder) ([]any, error) {
	lengths := make(map[string]int)
	n := -1
	for k, v := range attrs {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		lengths[k] = len(list)
		if n >= 0 && len(list) != n {
			return nil, errors.IterationShape(param, lengths)
		}
		n = len(list)
	}
	if n < 0 {
		path, err := builder.BuildPath(attrs)
		if err != nil {
			return nil, withParam(err, param)
		}
		return []any{path}, nil
	}

	paths := make([]any, 0, n)
	for i := range n {
		item := maps.Clone(attrs)
		for k := range lengths {
			item[k] = attrs[k].([]any)[i]
		}
		path, err := builder.BuildPath(item)
		if err != nil {
			return nil, withParam(err, param)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func withParam(err error, param string) error {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.WithDetail("parameter", param)
	}
	return errors.InvalidInput(param, err.Error()).WithCause(err)
}
