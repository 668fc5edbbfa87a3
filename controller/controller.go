package controller

import (
	"reflect"

	"github.com/kbukum/capsule/errors"
)

// ChangeEvent is delivered to listeners when a field value changes. For a
// change inside a nested controller, Field names the nested field of the
// receiving controller and SubField the field that changed inside it.
type ChangeEvent struct {
	Controller *Controller
	Field      string
	SubField   string
	Old        any
	New        any
}

// StructureEvent is delivered when a field is added or removed.
type StructureEvent struct {
	Controller *Controller
	Added      string
	Removed    string
}

// Subscription identifies a registered listener.
type Subscription struct {
	id    int
	field string
}

type changeListener struct {
	id int
	fn func(ChangeEvent)
}

type structureListener struct {
	id int
	fn func(StructureEvent)
}

// Controller is an ordered mapping of field descriptors with a value store.
type Controller struct {
	fields   []*Field
	index    map[string]*Field
	values   map[string]any
	change   map[string][]changeListener
	struc    []structureListener
	inflight map[string]bool
	nested   map[string]Subscription
	nextID   int
}

// New returns an empty controller.
func New() *Controller {
	return &Controller{
		index:    make(map[string]*Field),
		values:   make(map[string]any),
		change:   make(map[string][]changeListener),
		inflight: make(map[string]bool),
		nested:   make(map[string]Subscription),
	}
}

// AddField registers a new field. The default value, if any, becomes the
// current value.
func (c *Controller) AddField(name string, t Type, opts ...FieldOption) error {
	if _, ok := c.index[name]; ok {
		return errors.DuplicateField(name)
	}
	f := &Field{Name: name, Type: t, Default: Undefined}
	for _, opt := range opts {
		opt(f)
	}
	f.Name = name
	if f.Default == nil && t.Kind != KindAny {
		f.Default = Undefined
	}
	value, err := f.Type.Coerce(f.Default)
	if err != nil {
		return errors.TypeViolation(name, f.Type.String(), f.Default).WithCause(err)
	}
	f.Default = value

	c.fields = append(c.fields, f)
	c.index[name] = f
	c.values[name] = value
	c.watchNested(name, value)
	c.emitStructure(StructureEvent{Controller: c, Added: name})
	return nil
}

// RemoveField removes a field and its value.
func (c *Controller) RemoveField(name string) error {
	if _, ok := c.index[name]; !ok {
		return errors.NotFound("field", name)
	}
	c.unwatchNested(name)
	delete(c.index, name)
	delete(c.values, name)
	delete(c.change, name)
	for i, f := range c.fields {
		if f.Name == name {
			c.fields = append(c.fields[:i], c.fields[i+1:]...)
			break
		}
	}
	c.emitStructure(StructureEvent{Controller: c, Removed: name})
	return nil
}

// Has reports whether a field exists.
func (c *Controller) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Field returns a copy of the named descriptor.
func (c *Controller) Field(name string) (Field, bool) {
	f, ok := c.index[name]
	if !ok {
		return Field{}, false
	}
	return f.clone(), true
}

// Fields returns copies of every descriptor in insertion order.
func (c *Controller) Fields() []Field {
	out := make([]Field, len(c.fields))
	for i, f := range c.fields {
		out[i] = f.clone()
	}
	return out
}

// SetOptional changes the optional flag of a field.
func (c *Controller) SetOptional(name string, optional bool) error {
	f, ok := c.index[name]
	if !ok {
		return errors.NotFound("field", name)
	}
	f.Optional = optional
	return nil
}

// Get returns the value of a field, or Undefined when the field is unknown
// or unset.
func (c *Controller) Get(name string) any {
	v, ok := c.values[name]
	if !ok {
		return Undefined
	}
	return v
}

// Lookup returns the value of a field and whether the field exists.
func (c *Controller) Lookup(name string) (any, bool) {
	v, ok := c.values[name]
	return v, ok
}

// IsDefined reports whether the field holds a value.
func (c *Controller) IsDefined(name string) bool {
	v, ok := c.values[name]
	return ok && !IsUndefined(v)
}

// Values returns the defined values keyed by field name.
func (c *Controller) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	for _, f := range c.fields {
		if v := c.values[f.Name]; !IsUndefined(v) {
			out[f.Name] = v
		}
	}
	return out
}

// Set validates and stores a value. Setting the current value is a no-op
// and notifies nobody.
func (c *Controller) Set(name string, value any) error {
	f, ok := c.index[name]
	if !ok {
		return errors.NotFound("field", name)
	}
	coerced, err := f.Type.Coerce(value)
	if err != nil {
		return errors.TypeViolation(name, f.Type.String(), value).WithCause(err)
	}
	old := c.values[name]
	if sameValue(old, coerced) {
		return nil
	}
	c.unwatchNested(name)
	c.values[name] = coerced
	c.watchNested(name, coerced)
	c.emit(ChangeEvent{Controller: c, Field: name, Old: old, New: coerced})
	return nil
}

// Reset returns every field to its default value.
func (c *Controller) Reset() {
	for _, f := range c.fields {
		_ = c.Set(f.Name, f.Default)
	}
}

// OnChange registers fn for changes of the named field. An empty name
// subscribes to every field.
func (c *Controller) OnChange(name string, fn func(ChangeEvent)) Subscription {
	c.nextID++
	c.change[name] = append(c.change[name], changeListener{id: c.nextID, fn: fn})
	return Subscription{id: c.nextID, field: name}
}

// OffChange removes a listener registered with OnChange.
func (c *Controller) OffChange(sub Subscription) {
	listeners := c.change[sub.field]
	for i, l := range listeners {
		if l.id == sub.id {
			c.change[sub.field] = append(listeners[:i:i], listeners[i+1:]...)
			return
		}
	}
}

// OnStructure registers fn for field additions and removals.
func (c *Controller) OnStructure(fn func(StructureEvent)) Subscription {
	c.nextID++
	c.struc = append(c.struc, structureListener{id: c.nextID, fn: fn})
	return Subscription{id: c.nextID}
}

// OffStructure removes a listener registered with OnStructure.
func (c *Controller) OffStructure(sub Subscription) {
	for i, l := range c.struc {
		if l.id == sub.id {
			c.struc = append(c.struc[:i:i], c.struc[i+1:]...)
			return
		}
	}
}

// MissingMandatory returns the names of non-optional inputs that are still
// undefined.
func (c *Controller) MissingMandatory() []string {
	var missing []string
	for _, f := range c.fields {
		if f.IsOutput() || f.Optional {
			continue
		}
		if IsUndefined(c.values[f.Name]) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Copy returns a controller with the same fields and, when withValues is
// set, the same values. Listeners are not copied.
func (c *Controller) Copy(withValues bool) *Controller {
	cp := New()
	for _, f := range c.fields {
		nf := f.clone()
		cp.fields = append(cp.fields, &nf)
		cp.index[nf.Name] = &nf
		if withValues {
			cp.values[nf.Name] = c.values[nf.Name]
		} else {
			cp.values[nf.Name] = nf.Default
		}
	}
	return cp
}

func (c *Controller) emit(ev ChangeEvent) {
	if c.inflight[ev.Field] {
		return
	}
	c.inflight[ev.Field] = true
	defer delete(c.inflight, ev.Field)

	for _, key := range []string{ev.Field, ""} {
		listeners := append([]changeListener(nil), c.change[key]...)
		for _, l := range listeners {
			l.fn(ev)
		}
	}
}

func (c *Controller) emitStructure(ev StructureEvent) {
	listeners := append([]structureListener(nil), c.struc...)
	for _, l := range listeners {
		l.fn(ev)
	}
}

func (c *Controller) watchNested(name string, value any) {
	child, ok := value.(*Controller)
	if !ok || child == nil {
		return
	}
	c.nested[name] = child.OnChange("", func(ev ChangeEvent) {
		c.emit(ChangeEvent{
			Controller: c,
			Field:      name,
			SubField:   subFieldPath(ev),
			Old:        ev.Old,
			New:        ev.New,
		})
	})
}

func (c *Controller) unwatchNested(name string) {
	sub, ok := c.nested[name]
	if !ok {
		return
	}
	if child, ok := c.values[name].(*Controller); ok {
		child.OffChange(sub)
	}
	delete(c.nested, name)
}

func subFieldPath(ev ChangeEvent) string {
	if ev.SubField == "" {
		return ev.Field
	}
	return ev.Field + "." + ev.SubField
}

func sameValue(a, b any) bool {
	if ca, ok := a.(*Controller); ok {
		cb, ok := b.(*Controller)
		return ok && ca == cb
	}
	return reflect.DeepEqual(a, b)
}
