package workflow

import "github.com/kbukum/capsule/controller"

// cloneValue copies lists and maps so that jobs never share storage with
// the pipeline controllers.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// pathStrings returns the non-empty strings held by v, looking into lists
// and maps.
func pathStrings(v any) []string {
	var out []string
	var walk func(any)
	walk = func(v any) {
		switch x := v.(type) {
		case string:
			if x != "" {
				out = append(out, x)
			}
		case []any:
			for _, item := range x {
				walk(item)
			}
		case map[string]any:
			for _, item := range x {
				walk(item)
			}
		}
	}
	walk(v)
	return out
}

// assignBinding stores a produced value into the consumer inputs following
// the Pick and Slot rules of b.
func assignBinding(b Binding, produced any, inputs map[string]any) {
	v := produced
	if b.Pick >= 0 {
		items, ok := v.([]any)
		if !ok || b.Pick >= len(items) {
			return
		}
		v = items[b.Pick]
	}
	if controller.IsUndefined(v) {
		return
	}
	if b.Slot < 0 {
		inputs[b.Input] = cloneValue(v)
		return
	}
	items, _ := inputs[b.Input].([]any)
	for len(items) <= b.Slot {
		items = append(items, nil)
	}
	items[b.Slot] = cloneValue(v)
	inputs[b.Input] = items
}

// Propagate copies the outputs of a finished job into the inputs of the
// jobs it feeds.
func (w *Workflow) Propagate(producer *Job) {
	for _, b := range w.Bindings {
		if b.Producer != producer.UUID {
			continue
		}
		v, ok := producer.Outputs[b.Output]
		if !ok {
			continue
		}
		consumer, ok := w.Job(b.Consumer)
		if !ok {
			continue
		}
		if consumer.Inputs == nil {
			consumer.Inputs = make(map[string]any)
		}
		assignBinding(b, v, consumer.Inputs)
	}
}
