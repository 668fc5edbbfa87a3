package controller

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// Kind enumerates the value kinds a field may hold.
type Kind int

const (
	KindAny Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindFile
	KindDirectory
	KindEnum
	KindList
	KindMap
	KindUnion
	KindNested
)

var kindNames = map[Kind]string{
	KindAny:       "any",
	KindBool:      "bool",
	KindInt:       "int",
	KindFloat:     "float",
	KindString:    "str",
	KindFile:      "file",
	KindDirectory: "directory",
	KindEnum:      "enum",
	KindList:      "list",
	KindMap:       "map",
	KindUnion:     "union",
	KindNested:    "controller",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type describes the values a field accepts.
type Type struct {
	Kind     Kind
	Elem     *Type
	Options  []string
	Variants []Type
}

// Scalar and path types.
var (
	Any       = Type{Kind: KindAny}
	Bool      = Type{Kind: KindBool}
	Int       = Type{Kind: KindInt}
	Float     = Type{Kind: KindFloat}
	String    = Type{Kind: KindString}
	File      = Type{Kind: KindFile}
	Directory = Type{Kind: KindDirectory}
)

// Enum returns a type accepting one of the given literals.
func Enum(options ...string) Type {
	return Type{Kind: KindEnum, Options: slices.Clone(options)}
}

// ListOf returns an ordered sequence type.
func ListOf(elem Type) Type {
	return Type{Kind: KindList, Elem: &elem}
}

// MapOf returns a string-keyed mapping type.
func MapOf(elem Type) Type {
	return Type{Kind: KindMap, Elem: &elem}
}

// Union returns a type accepting any of the variants.
func Union(variants ...Type) Type {
	return Type{Kind: KindUnion, Variants: slices.Clone(variants)}
}

// Nested returns a type holding a *Controller.
func Nested() Type {
	return Type{Kind: KindNested}
}

// IsPath reports whether values of t are filesystem paths, looking through
// lists, maps and unions.
func (t Type) IsPath() bool {
	switch t.Kind {
	case KindFile, KindDirectory:
		return true
	case KindList, KindMap:
		return t.Elem != nil && t.Elem.IsPath()
	case KindUnion:
		for _, v := range t.Variants {
			if v.IsPath() {
				return true
			}
		}
	}
	return false
}

// IsList reports whether t is a list type.
func (t Type) IsList() bool { return t.Kind == KindList }

// ElemType returns the element type of a list or map, or Any.
func (t Type) ElemType() Type {
	if t.Elem == nil {
		return Any
	}
	return *t.Elem
}

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	return t.String() == o.String()
}

func (t Type) String() string {
	switch t.Kind {
	case KindEnum:
		return "enum[" + strings.Join(t.Options, "|") + "]"
	case KindList, KindMap:
		return t.Kind.String() + "[" + t.ElemType().String() + "]"
	case KindUnion:
		parts := make([]string, len(t.Variants))
		for i, v := range t.Variants {
			parts[i] = v.String()
		}
		return "union[" + strings.Join(parts, ",") + "]"
	default:
		return t.Kind.String()
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType parses the textual form produced by Type.String.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	name, args, hasArgs := strings.Cut(s, "[")
	if hasArgs {
		if !strings.HasSuffix(args, "]") {
			return Type{}, fmt.Errorf("controller: malformed type %q", s)
		}
		args = args[:len(args)-1]
	}
	name = strings.ToLower(name)
	switch name {
	case "enum":
		if !hasArgs || args == "" {
			return Type{}, fmt.Errorf("controller: enum needs options in %q", s)
		}
		return Enum(strings.Split(args, "|")...), nil
	case "list", "map":
		elem := Any
		if hasArgs {
			var err error
			if elem, err = ParseType(args); err != nil {
				return Type{}, err
			}
		}
		if name == "list" {
			return ListOf(elem), nil
		}
		return MapOf(elem), nil
	case "union":
		parts := splitTopLevel(args)
		variants := make([]Type, 0, len(parts))
		for _, p := range parts {
			v, err := ParseType(p)
			if err != nil {
				return Type{}, err
			}
			variants = append(variants, v)
		}
		return Union(variants...), nil
	}
	if hasArgs {
		return Type{}, fmt.Errorf("controller: type %q takes no arguments", name)
	}
	for k, n := range kindNames {
		if n == name {
			return Type{Kind: k}, nil
		}
	}
	if name == "string" {
		return String, nil
	}
	return Type{}, fmt.Errorf("controller: unknown type %q", s)
}

// splitTopLevel splits on commas not nested in brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

// Compatible reports whether a value of type t may flow into a plug of
// type dst: equal types, an Any wildcard on either side, int to float,
// path to string and back, enum to string, and element-wise for
// containers.
func (t Type) Compatible(dst Type) bool {
	if t.Kind == KindAny || dst.Kind == KindAny {
		return true
	}
	if t.Kind == KindUnion {
		for _, v := range t.Variants {
			if v.Compatible(dst) {
				return true
			}
		}
		return false
	}
	if dst.Kind == KindUnion {
		for _, v := range dst.Variants {
			if t.Compatible(v) {
				return true
			}
		}
		return false
	}
	switch {
	case t.Kind == dst.Kind:
		switch t.Kind {
		case KindList, KindMap:
			return t.ElemType().Compatible(dst.ElemType())
		case KindEnum:
			for _, o := range t.Options {
				if !slices.Contains(dst.Options, o) {
					return false
				}
			}
		}
		return true
	case t.Kind == KindInt && dst.Kind == KindFloat:
		return true
	case isStringLike(t.Kind) && isStringLike(dst.Kind) && dst.Kind != KindEnum:
		return t.Kind == KindString || dst.Kind == KindString || t.Kind == KindEnum
	}
	return false
}

func isStringLike(k Kind) bool {
	return k == KindString || k == KindFile || k == KindDirectory || k == KindEnum
}

// Check reports whether v is acceptable for t without conversion errors.
func (t Type) Check(v any) bool {
	_, err := t.Coerce(v)
	return err == nil
}

// Coerce returns v in the canonical representation of t: bool, int,
// float64, string, []any, map[string]any or *Controller. Undefined is
// accepted by every type.
func (t Type) Coerce(v any) (any, error) {
	if IsUndefined(v) {
		return Undefined, nil
	}
	switch t.Kind {
	case KindAny:
		return v, nil
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt:
		if i, ok := toInt(v); ok {
			return i, nil
		}
	case KindFloat:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
	case KindString, KindFile, KindDirectory:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindEnum:
		if s, ok := v.(string); ok && slices.Contains(t.Options, s) {
			return s, nil
		}
	case KindList:
		return t.coerceList(v)
	case KindMap:
		return t.coerceMap(v)
	case KindUnion:
		for _, variant := range t.Variants {
			if c, err := variant.Coerce(v); err == nil {
				return c, nil
			}
		}
	case KindNested:
		if c, ok := v.(*Controller); ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("value of type %T does not conform to %s", v, t)
}

func (t Type) coerceList(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("value of type %T is not a list", v)
	}
	elem := t.ElemType()
	out := make([]any, rv.Len())
	for i := range out {
		c, err := elem.Coerce(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

func (t Type) coerceMap(v any) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("value of type %T is not a string-keyed map", v)
	}
	elem := t.ElemType()
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().String()
		c, err := elem.Coerce(iter.Value().Interface())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = c
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n >= math.MinInt && n <= math.MaxInt {
			return int(n), true
		}
	case uint:
		if n <= math.MaxInt {
			return int(n), true
		}
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		if uint64(n) <= math.MaxInt {
			return int(n), true
		}
	case uint64:
		if n <= math.MaxInt {
			return int(n), true
		}
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	}
	return 0, false
}

// floatToInt accepts integral finite floats within the int range. The
// upper bound is exclusive since MaxInt is not representable.
func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
		return 0, false
	}
	return int(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

type undefined struct{}

func (undefined) String() string { return "<undefined>" }

// Undefined marks a field without a value.
var Undefined any = undefined{}

// IsUndefined reports whether v is the Undefined sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}
