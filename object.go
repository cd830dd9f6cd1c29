package track

import (
	"fmt"
)

// Object is the tracked view of a *T. Writes routed through Set are recorded
// in the change ledger and update the status of the object and its owners.
// Value exposes the live copy; writing to it directly bypasses tracking.
type Object[T any] struct {
	base
	plan     *objectPlan[T]
	target   *T
	bindings map[string]bound
	ledger   *ledger
}

// Value returns the live target. It is a copy of the source passed to
// AsTrackable, never the source itself.
func (o *Object[T]) Value() *T {
	return o.target
}

// Members returns the member names in declaration order.
func (o *Object[T]) Members() []string {
	return o.plan.desc.Members()
}

// KindOf returns the resolved kind of a member. Excluded members report
// KindExcluded whatever their declared kind.
func (o *Object[T]) KindOf(name string) (Kind, bool) {
	s, ok := o.plan.slot(name)
	if !ok {
		return 0, false
	}
	return s.kind, true
}

// Get reads a member. Tracked complex members return their *Object, tracked
// collections their *Collection; excluded members return the plain value.
func (o *Object[T]) Get(name string) (any, error) {
	s, ok := o.plan.slot(name)
	if !ok {
		return nil, propertyError(ErrUnknownProperty, o.typeName, name)
	}
	switch s.kind {
	case KindComplex, KindCollection:
		return o.bindings[name].view, nil
	default:
		return s.prop.get(o.target), nil
	}
}

// Set writes a member. Writes to excluded members go straight to the target
// after validation and never record changes or notify.
func (o *Object[T]) Set(name string, value any) error {
	start := o.graph.relay.now()
	err := o.set(name, value)
	o.graph.relay.log(LogEvent{
		Op:       "set",
		Type:     o.typeName,
		ID:       o.id,
		Property: name,
		Duration: o.graph.relay.now().Sub(start),
		Err:      err,
	})
	return err
}

func (o *Object[T]) set(name string, value any) error {
	s, ok := o.plan.slot(name)
	if !ok {
		return propertyError(ErrUnknownProperty, o.typeName, name)
	}
	switch s.kind {
	case KindExcluded:
		return o.setExcluded(s, value)
	case KindScalar:
		return o.setScalar(s, value)
	default:
		return o.setNested(s, value)
	}
}

func (o *Object[T]) setExcluded(s slot[T], value any) error {
	next, err := s.prop.accepts(value)
	if err != nil {
		return err
	}
	if err := s.prop.validate(o.typeName, next, s.prop.get(o.target)); err != nil {
		return err
	}
	return s.prop.assign(o.target, next)
}

func (o *Object[T]) setScalar(s slot[T], value any) error {
	next, err := s.prop.accepts(value)
	if err != nil {
		return err
	}
	current := s.prop.get(o.target)
	if s.prop.equal(current, next) {
		return nil
	}
	if err := s.prop.validate(o.typeName, next, current); err != nil {
		return err
	}
	if err := s.prop.assign(o.target, next); err != nil {
		return err
	}

	name := s.prop.name
	if original, ok := o.ledger.original(name); ok {
		if s.prop.equal(original, next) {
			o.ledger.forget(name)
		}
	} else {
		o.ledger.record(name, s.prop.snapshot(current))
	}
	o.refresh()
	o.notifyProperty(name)
	return nil
}

// setNested replaces a complex or collection member. The replaced value is
// recorded like a scalar original and the new value is wrapped.
func (o *Object[T]) setNested(s slot[T], value any) error {
	name := s.prop.name
	current := o.bindings[name]
	if current.view != nil && value == current.view {
		return nil
	}
	next, err := s.prop.accepts(value)
	if err != nil {
		return err
	}
	if s.kind == KindComplex && next == current.raw {
		return nil
	}
	if err := s.prop.validate(o.typeName, next, current.current()); err != nil {
		return err
	}
	b, err := o.attach(s, value, next)
	if err != nil {
		return fmt.Errorf("track: %s.%s: %w", o.typeName, name, err)
	}
	if err := s.prop.assign(o.target, b.raw); err != nil {
		return err
	}
	o.unbind(name)
	o.bind(s, b)

	if original, ok := o.ledger.original(name); ok {
		if original.(bound).same(b) {
			o.ledger.forget(name)
		}
	} else {
		o.ledger.record(name, current)
	}
	o.refresh()
	o.notifyProperty(name)
	return nil
}

// attach wraps next, reusing the recorded original when value is the view it
// held so that assigning it back clears the change.
func (o *Object[T]) attach(s slot[T], value, next any) (bound, error) {
	if original, ok := o.ledger.original(s.prop.name); ok {
		if b := original.(bound); b.view != nil && b.view == value {
			b.raw = b.current()
			return b, nil
		}
	}
	return s.prop.attach(o.graph, next)
}

// bind makes b the tracked value of the member and links it back to o.
func (o *Object[T]) bind(s slot[T], b bound) {
	name := s.prop.name
	o.bindings[name] = b
	if b.node == nil {
		return
	}
	b.node.core().addOwner(&o.base, name)
	if c, ok := b.node.(interface{ setSink(func(any)) }); ok {
		prop := s.prop
		c.setSink(func(raw any) {
			if err := prop.assign(o.target, raw); err != nil {
				o.graph.relay.log(LogEvent{Op: "sync", Type: o.typeName, ID: o.id, Property: name, Err: err})
			}
		})
	}
}

func (o *Object[T]) unbind(name string) {
	b, ok := o.bindings[name]
	if !ok || b.node == nil {
		return
	}
	b.node.core().removeOwner(&o.base, name)
	if c, ok := b.node.(interface{ setSink(func(any)) }); ok {
		c.setSink(nil)
	}
}

// ChangedProperties returns the members changed since the last accept or
// reject, sorted. Changes inside nested tracked values are reported by those
// values, not here.
func (o *Object[T]) ChangedProperties() []string {
	return o.ledger.names()
}

// OriginalValue returns the value a changed member had at the last accept or
// reject. Complex and collection members report the tracked view they held.
func (o *Object[T]) OriginalValue(name string) (any, bool) {
	original, ok := o.ledger.original(name)
	if !ok {
		return nil, false
	}
	if b, ok := original.(bound); ok {
		return b.view, true
	}
	return original, true
}

func (o *Object[T]) children() []tracked {
	var out []tracked
	for _, s := range o.plan.slots {
		if b, ok := o.bindings[s.prop.name]; ok && b.node != nil {
			out = append(out, b.node)
		}
	}
	return out
}

func (o *Object[T]) dirty() bool {
	return !o.ledger.empty()
}

func (o *Object[T]) commitOwn() {
	o.ledger.clear()
}

func (o *Object[T]) restoreOwn() error {
	return o.ledger.reject(func(name string, original any) error {
		s, _ := o.plan.slot(name)
		if err := o.restore(s, original); err != nil {
			return &WritebackError{Type: o.typeName, ID: o.id, Property: name, Err: err}
		}
		return nil
	})
}

func (o *Object[T]) restore(s slot[T], original any) error {
	if s.kind == KindComplex || s.kind == KindCollection {
		b := original.(bound)
		raw := b.current()
		if err := s.prop.validate(o.typeName, raw, o.bindings[s.prop.name].current()); err != nil {
			return err
		}
		if err := s.prop.assign(o.target, raw); err != nil {
			return err
		}
		o.unbind(s.prop.name)
		o.bind(s, b)
		return nil
	}
	if err := s.prop.validate(o.typeName, original, s.prop.get(o.target)); err != nil {
		return err
	}
	return s.prop.assign(o.target, original)
}

// Lookup reads a member of o as V. A nil member yields the zero V.
func Lookup[V any, T any](o *Object[T], name string) (V, error) {
	var zero V
	value, err := o.Get(name)
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	typed, ok := value.(V)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s is %T", ErrTypeMismatch, o.typeName, name, value)
	}
	return typed, nil
}
