package pipeline

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/capsule/controller"
	"github.com/kbukum/capsule/errors"
)

// customDefinitionPrefix prefixes the definition string of custom nodes.
const customDefinitionPrefix = "capsule.custom."

// CustomConfig holds the build parameters of a custom node.
type CustomConfig map[string]any

func (c CustomConfig) stringList(key string, def []string) []string {
	switch v := c[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	}
	return def
}

func (c CustomConfig) str(key, def string) string {
	if s, ok := c[key].(string); ok {
		return s
	}
	return def
}

func (c CustomConfig) flag(key string, def bool) bool {
	if b, ok := c[key].(bool); ok {
		return b
	}
	return def
}

func (c CustomConfig) typeOf(key string, def controller.Type) (controller.Type, error) {
	s, ok := c[key].(string)
	if !ok || s == "" {
		return def, nil
	}
	return controller.ParseType(s)
}

// CustomBuilder declares the fields of a custom node on ctrl and returns
// the fields whose changes trigger update.
type CustomBuilder func(ctrl *controller.Controller, cfg CustomConfig) (watch []string, update func(changed string), err error)

var (
	customMu       sync.RWMutex
	customBuilders = map[string]CustomBuilder{
		"strcat":        buildStrCat,
		"leave-one-out": buildLeaveOneOut,
		"map":           buildMap,
	}
)

// RegisterCustom adds or replaces a custom node kind.
func RegisterCustom(kind string, b CustomBuilder) {
	customMu.Lock()
	defer customMu.Unlock()
	customBuilders[kind] = b
}

// CustomKinds returns the registered custom node kinds.
func CustomKinds() []string {
	customMu.RLock()
	defer customMu.RUnlock()
	out := make([]string, 0, len(customBuilders))
	for k := range customBuilders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type customState struct {
	kind   string
	config CustomConfig
}

func newCustomNode(name, kind string, cfg CustomConfig) (*Node, error) {
	kind = strings.TrimPrefix(kind, customDefinitionPrefix)
	customMu.RLock()
	build, ok := customBuilders[kind]
	customMu.RUnlock()
	if !ok {
		return nil, errors.NotFound("custom node kind", kind)
	}
	ctrl := controller.New()
	watch, update, err := build(ctrl, cfg)
	if err != nil {
		return nil, err
	}
	n := newNode(name, KindCustom, ctrl)
	n.custom = &customState{kind: kind, config: cfg}
	for _, w := range watch {
		ctrl.OnChange(w, func(ev controller.ChangeEvent) { update(ev.Field) })
	}
	update("")
	return n, nil
}

// CustomKind returns the kind of a custom node.
func (n *Node) CustomKind() string {
	if n.custom == nil {
		return ""
	}
	return n.custom.kind
}

// CustomConfig returns the build parameters of a custom node.
func (n *Node) CustomConfig() CustomConfig {
	if n.custom == nil {
		return nil
	}
	return n.custom.config
}

// buildStrCat concatenates the string values of "parameters" into
// "concat_plug". Plugs listed in "outputs" are outputs.
func buildStrCat(ctrl *controller.Controller, cfg CustomConfig) ([]string, func(string), error) {
	params := cfg.stringList("parameters", nil)
	concat := cfg.str("concat_plug", "")
	if len(params) == 0 || concat == "" {
		return nil, nil, errors.InvalidInput("parameters", "strcat needs parameters and concat_plug")
	}
	outputs := make(map[string]bool)
	for _, o := range cfg.stringList("outputs", nil) {
		outputs[o] = true
	}
	types := cfg.stringList("param_types", nil)
	all := append(append([]string(nil), params...), concat)
	for i, name := range all {
		t := controller.Any
		if i < len(types) {
			pt, err := controller.ParseType(types[i])
			if err != nil {
				return nil, nil, err
			}
			t = pt
		}
		var opts []controller.FieldOption
		if outputs[name] {
			opts = append(opts, controller.Output())
		}
		if err := ctrl.AddField(name, t, opts...); err != nil {
			return nil, nil, err
		}
	}
	update := func(string) {
		var b strings.Builder
		for _, name := range params {
			if v := ctrl.Get(name); !controller.IsUndefined(v) && v != nil {
				b.WriteString(fmt.Sprint(v))
			}
		}
		_ = ctrl.Set(concat, b.String())
	}
	return params, update, nil
}

// buildLeaveOneOut removes one element from "inputs" and publishes the rest
// as "train". The left out element is "test": selected by "index" when
// has_index is set, otherwise located by value.
func buildLeaveOneOut(ctrl *controller.Controller, cfg CustomConfig) ([]string, func(string), error) {
	elem, err := cfg.typeOf("param_type", controller.Any)
	if err != nil {
		return nil, nil, err
	}
	hasIndex := cfg.flag("has_index", true)
	trainOut := cfg.flag("is_output", true)
	testOut := cfg.flag("test_is_output", true)

	if err := ctrl.AddField("inputs", controller.ListOf(elem), controller.Optional()); err != nil {
		return nil, nil, err
	}
	watch := []string{"inputs"}
	if hasIndex {
		if err := ctrl.AddField("index", controller.Int, controller.Default(0), controller.Optional()); err != nil {
			return nil, nil, err
		}
		watch = append(watch, "index")
	}
	trainOpts := []controller.FieldOption{controller.Optional()}
	if trainOut {
		trainOpts = append(trainOpts, controller.Output())
	}
	if err := ctrl.AddField("train", controller.ListOf(elem), trainOpts...); err != nil {
		return nil, nil, err
	}
	testOpts := []controller.FieldOption{controller.Optional()}
	if testOut {
		testOpts = append(testOpts, controller.Output())
	} else {
		watch = append(watch, "test")
	}
	if err := ctrl.AddField("test", elem, testOpts...); err != nil {
		return nil, nil, err
	}

	update := func(string) {
		inputs, _ := ctrl.Get("inputs").([]any)
		index := -1
		if hasIndex {
			index, _ = ctrl.Get("index").(int)
		} else {
			test := ctrl.Get("test")
			for i, x := range inputs {
				if reflect.DeepEqual(x, test) {
					index = i
					break
				}
			}
			if index < 0 {
				return
			}
		}
		train := make([]any, 0, len(inputs))
		for i, x := range inputs {
			if i != index {
				train = append(train, x)
			}
		}
		_ = ctrl.Set("train", train)
		if hasIndex && index >= 0 && index < len(inputs) {
			_ = ctrl.Set("test", inputs[index])
		}
	}
	return watch, update, nil
}

// buildMap splits each list input into one output plug per element, named
// from the matching output pattern ("output_%d" by default), and publishes
// the list lengths on "lengths".
func buildMap(ctrl *controller.Controller, cfg CustomConfig) ([]string, func(string), error) {
	inputs := cfg.stringList("input_names", []string{"inputs"})
	patterns := cfg.stringList("output_names", []string{"output_%d"})
	if len(patterns) != len(inputs) {
		return nil, nil, errors.InvalidInput("output_names", "map needs one output pattern per input")
	}
	typeNames := cfg.stringList("input_types", nil)
	types := make([]controller.Type, len(inputs))
	for i, name := range inputs {
		types[i] = controller.File
		if i < len(typeNames) {
			t, err := controller.ParseType(typeNames[i])
			if err != nil {
				return nil, nil, err
			}
			types[i] = t
		}
		if err := ctrl.AddField(name, controller.ListOf(types[i])); err != nil {
			return nil, nil, err
		}
	}
	if err := ctrl.AddField("lengths", controller.ListOf(controller.Int), controller.Output(), controller.Optional()); err != nil {
		return nil, nil, err
	}

	counts := make([]int, len(inputs))
	update := func(string) {
		lengths := make([]any, len(inputs))
		for i, name := range inputs {
			values, _ := ctrl.Get(name).([]any)
			for k := counts[i] - 1; k >= len(values); k-- {
				_ = ctrl.RemoveField(fmt.Sprintf(patterns[i], k))
			}
			for k := counts[i]; k < len(values); k++ {
				_ = ctrl.AddField(fmt.Sprintf(patterns[i], k), types[i], controller.Output(), controller.Optional())
			}
			counts[i] = len(values)
			for k, v := range values {
				_ = ctrl.Set(fmt.Sprintf(patterns[i], k), v)
			}
			lengths[i] = len(values)
		}
		_ = ctrl.Set("lengths", lengths)
	}
	return inputs, update, nil
}
