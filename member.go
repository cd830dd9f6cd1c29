package track

import (
	"fmt"
	"reflect"

	"github.com/goliatone/go-tracking/internal/clone"
)

// Prop describes one member of T: how to read it, how to write it and how it
// participates in tracking. Build props with Field, Value, Ref and List.
type Prop[T any] struct {
	name     string
	kind     Kind
	declared reflect.Type
	marked   bool
	exprs    []string
	rules    []predicate
	checks   []func(any) error

	get      func(*T) any
	assign   func(*T, any) error
	accepts  func(any) (any, error)
	equal    func(a, b any) bool
	snapshot func(any) any
	attach   attachFunc
}

// bound is the tracked form of a complex or collection member value. raw is
// what the live target stores; view is what Get returns.
type bound struct {
	raw  any
	view any
	node tracked
}

// current is the raw value as it stands now; a collection reports its
// current elements rather than the slice it was built from.
func (b bound) current() any {
	if c, ok := b.node.(interface{ rawValue() any }); ok {
		return c.rawValue()
	}
	return b.raw
}

func (b bound) same(other bound) bool {
	if b.node != nil || other.node != nil {
		return b.node == other.node
	}
	return b.view == other.view
}

type attachFunc func(g *graph, raw any) (bound, error)

// Name returns the member name used by Get, Set and ChangedProperties.
func (p *Prop[T]) Name() string {
	return p.name
}

// Kind returns the declared kind. Exclusion is resolved per graph, see Explain.
func (p *Prop[T]) Kind() Kind {
	return p.kind
}

// DoNotTrack marks the member as excluded. Writes go straight to the target,
// nested values are never wrapped and no notifications fire.
func (p *Prop[T]) DoNotTrack() *Prop[T] {
	p.marked = true
	return p
}

// Rule adds a boolean validation expression evaluated on every write and on
// reject write-back. Bound variables: owner, property, value, old.
func (p *Prop[T]) Rule(expr string) *Prop[T] {
	p.exprs = append(p.exprs, expr)
	return p
}

func (p *Prop[T]) compile(e Evaluator) error {
	p.rules = p.rules[:0]
	for _, expr := range p.exprs {
		rule, err := compilePredicate(e, expr, valueVariables)
		if err != nil {
			return fmt.Errorf("track: member %s: %w", p.name, err)
		}
		p.rules = append(p.rules, rule)
	}
	return nil
}

func (p *Prop[T]) validate(owner string, value, old any) error {
	for _, check := range p.checks {
		if err := check(value); err != nil {
			return err
		}
	}
	if len(p.rules) == 0 {
		return nil
	}
	ctx := RuleContext{
		Subject: map[string]any{
			"owner":    owner,
			"property": p.name,
			"value":    value,
			"old":      old,
		},
		Target: owner + "." + p.name,
	}
	for _, rule := range p.rules {
		ok, err := rule.test(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("track: %s.%s rejected by rule %q", owner, p.name, rule.expr)
		}
	}
	return nil
}

// FieldOption configures a scalar member.
type FieldOption[V any] func(*fieldConfig[V])

type fieldConfig[V any] struct {
	checks []func(V) error
}

// Check validates values written to the member. A failing check rejects the
// write and, during RejectChanges, the restore of that member.
func Check[V any](fn func(V) error) FieldOption[V] {
	return func(cfg *fieldConfig[V]) {
		if fn != nil {
			cfg.checks = append(cfg.checks, fn)
		}
	}
}

// Field declares a comparable scalar member.
func Field[T any, V comparable](name string, get func(*T) V, set func(*T, V), opts ...FieldOption[V]) *Prop[T] {
	p := scalarProp(name, get, set, opts)
	p.equal = func(a, b any) bool {
		av, aok := as[V](a)
		bv, bok := as[V](b)
		return aok && bok && av == bv
	}
	p.snapshot = func(v any) any { return v }
	return p
}

// Value declares a scalar member of a non-comparable type such as a slice or
// map. Originals are deep-copied when recorded so in-place edits of the new
// value cannot leak into the baseline.
func Value[T any, V any](name string, get func(*T) V, set func(*T, V), equal func(a, b V) bool, opts ...FieldOption[V]) *Prop[T] {
	p := scalarProp(name, get, set, opts)
	p.equal = func(a, b any) bool {
		av, aok := as[V](a)
		bv, bok := as[V](b)
		if !aok || !bok {
			return false
		}
		if equal == nil {
			return reflect.DeepEqual(av, bv)
		}
		return equal(av, bv)
	}
	p.snapshot = clone.Any
	return p
}

func scalarProp[T any, V any](name string, get func(*T) V, set func(*T, V), opts []FieldOption[V]) *Prop[T] {
	cfg := fieldConfig[V]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	p := &Prop[T]{
		name:     name,
		kind:     KindScalar,
		declared: reflect.TypeFor[V](),
	}
	if get != nil {
		p.get = func(t *T) any { return get(t) }
	}
	if set != nil {
		p.assign = func(t *T, v any) error {
			typed, ok := as[V](v)
			if !ok {
				return fmt.Errorf("%w: %s wants %s, got %T", ErrTypeMismatch, name, reflect.TypeFor[V](), v)
			}
			set(t, typed)
			return nil
		}
	}
	p.accepts = func(v any) (any, error) {
		typed, ok := as[V](v)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants %s, got %T", ErrTypeMismatch, name, reflect.TypeFor[V](), v)
		}
		return typed, nil
	}
	for _, check := range cfg.checks {
		check := check
		p.checks = append(p.checks, func(v any) error {
			typed, _ := as[V](v)
			return check(typed)
		})
	}
	return p
}

// Ref declares a complex member pointing at another registered type.
func Ref[T any, C any](name string, get func(*T) *C, set func(*T, *C)) *Prop[T] {
	p := &Prop[T]{
		name:     name,
		kind:     KindComplex,
		declared: reflect.TypeFor[C](),
	}
	if get != nil {
		p.get = func(t *T) any { return get(t) }
	}
	if set != nil {
		p.assign = func(t *T, v any) error {
			c, ok := as[*C](v)
			if !ok {
				return fmt.Errorf("%w: %s wants *%s, got %T", ErrTypeMismatch, name, reflect.TypeFor[C](), v)
			}
			set(t, c)
			return nil
		}
	}
	p.accepts = func(v any) (any, error) {
		switch typed := v.(type) {
		case nil:
			return (*C)(nil), nil
		case *C:
			return typed, nil
		case *Object[C]:
			if typed == nil {
				return (*C)(nil), nil
			}
			return typed.target, nil
		default:
			return nil, fmt.Errorf("%w: %s wants *%s, got %T", ErrTypeMismatch, name, reflect.TypeFor[C](), v)
		}
	}
	p.attach = func(g *graph, raw any) (bound, error) {
		c, _ := raw.(*C)
		if c == nil {
			return bound{raw: (*C)(nil)}, nil
		}
		obj, err := wrapObject(g, c)
		if err != nil {
			return bound{}, err
		}
		return bound{raw: obj.target, view: obj, node: obj}, nil
	}
	return p
}

// List declares a collection member holding pointers to a registered type.
func List[T any, E any](name string, get func(*T) []*E, set func(*T, []*E)) *Prop[T] {
	p := &Prop[T]{
		name:     name,
		kind:     KindCollection,
		declared: reflect.TypeFor[E](),
	}
	if get != nil {
		p.get = func(t *T) any { return get(t) }
	}
	if set != nil {
		p.assign = func(t *T, v any) error {
			items, ok := as[[]*E](v)
			if !ok {
				return fmt.Errorf("%w: %s wants []*%s, got %T", ErrTypeMismatch, name, reflect.TypeFor[E](), v)
			}
			set(t, items)
			return nil
		}
	}
	p.accepts = func(v any) (any, error) {
		switch typed := v.(type) {
		case nil:
			return []*E(nil), nil
		case []*E:
			return typed, nil
		case *Collection[E]:
			if typed == nil {
				return []*E(nil), nil
			}
			return typed.Values(), nil
		default:
			return nil, fmt.Errorf("%w: %s wants []*%s, got %T", ErrTypeMismatch, name, reflect.TypeFor[E](), v)
		}
	}
	p.attach = func(g *graph, raw any) (bound, error) {
		items, _ := raw.([]*E)
		coll, err := newCollection(g, items)
		if err != nil {
			return bound{}, err
		}
		return bound{raw: coll.raw(), view: coll, node: coll}, nil
	}
	return p
}

// as converts v to V, accepting nil for nilable V.
func as[V any](v any) (V, bool) {
	var zero V
	if v == nil {
		return zero, nilable(reflect.TypeFor[V]())
	}
	typed, ok := v.(V)
	return typed, ok
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}
