package workflow

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kbukum/capsule/errors"
)

// Format is a workflow wire encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Encode serializes the workflow for an engine adapter.
func (w *Workflow) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(w, "", "  ")
		if err != nil {
			return nil, errors.Internal(err)
		}
		return data, nil
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		if err := enc.Encode(w); err != nil {
			return nil, errors.Internal(err)
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.InvalidInput("format", "unsupported workflow format "+string(format))
	}
}

// Decode parses a workflow produced by Encode.
func Decode(data []byte, format Format) (*Workflow, error) {
	w := &Workflow{}
	switch format {
	case FormatJSON, "":
		if err := json.Unmarshal(data, w); err != nil {
			return nil, errors.InvalidInput("workflow", err.Error())
		}
	case FormatMsgpack:
		if err := msgpack.Unmarshal(data, w); err != nil {
			return nil, errors.InvalidInput("workflow", err.Error())
		}
	default:
		return nil, errors.InvalidInput("format", "unsupported workflow format "+string(format))
	}
	w.normalize()
	w.reindex()
	return w, nil
}

// normalize brings decoded values back to the controller representation:
// JSON numbers that are integral become int and msgpack integers become
// int.
func (w *Workflow) normalize() {
	for _, j := range w.Jobs {
		normalizeMap(j.Inputs)
		normalizeMap(j.Outputs)
	}
	normalizeMap(w.Parameters)
}

func normalizeMap(m map[string]any) {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return int(x)
		}
	case int8:
		return int(x)
	case int16:
		return int(x)
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	case []any:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
	case map[string]any:
		normalizeMap(x)
	}
	return v
}
