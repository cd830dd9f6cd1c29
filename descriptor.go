package track

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Descriptor is the declared member table of T. It replaces runtime member
// discovery: only the listed members are visible to the engine.
type Descriptor[T any] struct {
	typeName string
	props    []*Prop[T]
	marked   bool
	copyFn   func(*T) *T
}

// Describe builds a descriptor for T from its members.
func Describe[T any](props ...*Prop[T]) *Descriptor[T] {
	t := reflect.TypeFor[T]()
	return &Descriptor[T]{
		typeName: defaultTypeName(t),
		props:    append([]*Prop[T](nil), props...),
	}
}

// Named overrides the type name used by policies, events and reports.
func (d *Descriptor[T]) Named(name string) *Descriptor[T] {
	if name != "" {
		d.typeName = name
	}
	return d
}

// DoNotTrack marks the whole type as excluded wherever it is declared.
func (d *Descriptor[T]) DoNotTrack() *Descriptor[T] {
	d.marked = true
	return d
}

// WithCopy replaces the shallow struct copy taken when a value is wrapped.
func (d *Descriptor[T]) WithCopy(fn func(*T) *T) *Descriptor[T] {
	d.copyFn = fn
	return d
}

// Members returns the member names in declaration order.
func (d *Descriptor[T]) Members() []string {
	names := make([]string, 0, len(d.props))
	for _, p := range d.props {
		names = append(names, p.name)
	}
	return names
}

func (d *Descriptor[T]) copyOf(src *T) *T {
	if d.copyFn != nil {
		return d.copyFn(src)
	}
	dst := *src
	return &dst
}

func (d *Descriptor[T]) name() string        { return d.typeName }
func (d *Descriptor[T]) goType() reflect.Type { return reflect.TypeFor[T]() }
func (d *Descriptor[T]) excluded() bool      { return d.marked }

func (d *Descriptor[T]) check(e Evaluator) error {
	seen := make(map[string]bool, len(d.props))
	for _, p := range d.props {
		if p == nil {
			return fmt.Errorf("track: %s: nil member", d.typeName)
		}
		if p.name == "" {
			return fmt.Errorf("track: %s: member name must not be empty", d.typeName)
		}
		if seen[p.name] {
			return fmt.Errorf("track: %s: duplicate member %q", d.typeName, p.name)
		}
		seen[p.name] = true
		if p.get == nil || p.assign == nil {
			return fmt.Errorf("track: %s.%s: getter and setter are required", d.typeName, p.name)
		}
		if err := p.compile(e); err != nil {
			return err
		}
	}
	return nil
}

// describer is the type-erased view of a Descriptor kept by the registry.
type describer interface {
	name() string
	goType() reflect.Type
	excluded() bool
	check(e Evaluator) error
	resolve(g *graph) (*TypePlan, error)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// Registry holds descriptors for every type that can appear in a tracked
// graph, plus the defaults applied to AsTrackable calls.
type Registry struct {
	mu        sync.RWMutex
	types     map[reflect.Type]describer
	names     map[string]reflect.Type
	evaluator Evaluator
	engine    string
	cache     ProgramCache
	functions *FunctionRegistry
	policy    *Policy
	logger    Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		types: map[reflect.Type]describer{},
		names: map[string]reflect.Type{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// RegistryWithEvaluator sets the engine used to compile member rules.
func RegistryWithEvaluator(e Evaluator) RegistryOption {
	return func(r *Registry) {
		r.evaluator = e
	}
}

// RegistryWithEngine selects a built-in engine by name ("expr", "cel", "js").
func RegistryWithEngine(name string) RegistryOption {
	return func(r *Registry) {
		r.engine = name
	}
}

// RegistryWithProgramCache shares compiled programs between rules.
func RegistryWithProgramCache(cache ProgramCache) RegistryOption {
	return func(r *Registry) {
		r.cache = cache
	}
}

// RegistryWithPolicy sets the default exclusion policy for AsTrackable.
func RegistryWithPolicy(policy *Policy) RegistryOption {
	return func(r *Registry) {
		r.policy = policy
	}
}

// RegistryWithLogger sets the default logger for AsTrackable.
func RegistryWithLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func (r *Registry) ruleEvaluator() (Evaluator, error) {
	if r.evaluator != nil {
		return r.evaluator, nil
	}
	e, err := NewEvaluator(r.engine, r.cache, r.functions)
	if err != nil {
		return nil, err
	}
	r.evaluator = e
	return e, nil
}

// Register validates d, compiles its member rules and stores it. Registering
// the same type twice replaces the previous descriptor.
func Register[T any](r *Registry, d *Descriptor[T]) error {
	if r == nil {
		return fmt.Errorf("track: registry is nil")
	}
	if d == nil {
		return fmt.Errorf("track: descriptor for %s is nil", reflect.TypeFor[T]())
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var evaluator Evaluator
	if hasRules(d.props) {
		e, err := r.ruleEvaluator()
		if err != nil {
			return err
		}
		evaluator = e
	}
	if err := d.check(evaluator); err != nil {
		return err
	}
	if existing, ok := r.names[d.typeName]; ok && existing != d.goType() {
		return fmt.Errorf("track: type name %q already used by %s", d.typeName, existing)
	}
	if previous, ok := r.types[d.goType()]; ok {
		delete(r.names, previous.name())
	}
	r.types[d.goType()] = d
	r.names[d.typeName] = d.goType()
	return nil
}

// MustRegister is Register that panics on error, for package-level setup.
func MustRegister[T any](r *Registry, d *Descriptor[T]) {
	if err := Register(r, d); err != nil {
		panic(err)
	}
}

func hasRules[T any](props []*Prop[T]) bool {
	for _, p := range props {
		if p != nil && len(p.exprs) > 0 {
			return true
		}
	}
	return false
}

func (r *Registry) lookup(t reflect.Type) (describer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[t]
	return d, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// typeNameOf returns the registered name of t, or its Go name.
func (r *Registry) typeNameOf(t reflect.Type) string {
	if d, ok := r.lookup(t); ok {
		return d.name()
	}
	return defaultTypeName(t)
}

func defaultTypeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

func descriptorFor[T any](g *graph) (*Descriptor[T], error) {
	d, ok := g.registry.lookup(reflect.TypeFor[T]())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, reflect.TypeFor[T]())
	}
	typed, ok := d.(*Descriptor[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, reflect.TypeFor[T]())
	}
	return typed, nil
}
