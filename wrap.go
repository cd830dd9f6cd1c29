package track

import (
	"fmt"
	"reflect"
)

// graph is the state of one AsTrackable call: resolved plans and the
// identity map that makes wrapping cycle tolerant.
type graph struct {
	registry *Registry
	cfg      config
	relay    *relay
	plans    map[reflect.Type]any
	views    map[any]any
}

func newGraph(reg *Registry, opts []Option) *graph {
	cfg := applyOptions(reg, opts)
	return &graph{
		registry: reg,
		cfg:      cfg,
		relay:    newRelay(cfg),
		plans:    map[reflect.Type]any{},
		views:    map[any]any{},
	}
}

// AsTrackable copies src into a tracked object graph. Each tracked object is
// a shallow copy of its source; excluded members keep the source's value as
// is, and nested complex members and collections that are not excluded are
// wrapped recursively. A value reached twice, for example through a
// back-reference, is wrapped once.
func AsTrackable[T any](reg *Registry, src *T, opts ...Option) (*Object[T], error) {
	if reg == nil {
		return nil, fmt.Errorf("track: registry is nil")
	}
	if src == nil {
		return nil, fmt.Errorf("track: source %s is nil", reflect.TypeFor[T]())
	}
	g := newGraph(reg, opts)
	start := g.relay.now()

	plan, err := planFor[T](g)
	if err != nil {
		g.relay.log(LogEvent{Op: "wrap", Type: reflect.TypeFor[T]().String(), Err: err})
		return nil, err
	}
	if excluded, reason, err := g.typeExcluded(plan.desc.typeName, plan.desc.marked); err != nil {
		return nil, err
	} else if excluded {
		err := fmt.Errorf("%w: %s (%s)", ErrExcludedType, plan.desc.typeName, reason)
		g.relay.log(LogEvent{Op: "wrap", Type: plan.desc.typeName, Err: err})
		return nil, err
	}

	obj, err := wrapObject(g, src)
	if err != nil {
		g.relay.log(LogEvent{Op: "wrap", Type: plan.desc.typeName, Err: err})
		return nil, err
	}
	g.relay.log(LogEvent{Op: "wrap", Type: obj.typeName, ID: obj.id, Duration: g.relay.now().Sub(start)})
	return obj, nil
}

// MustTrack is AsTrackable that panics on error.
func MustTrack[T any](reg *Registry, src *T, opts ...Option) *Object[T] {
	obj, err := AsTrackable(reg, src, opts...)
	if err != nil {
		panic(err)
	}
	return obj
}

// wrapObject returns the view already created for src in this graph, or
// creates one. The view is registered under both the source and the copy
// before members are walked.
func wrapObject[C any](g *graph, src *C) (*Object[C], error) {
	if existing, ok := g.views[src]; ok {
		if obj, ok := existing.(*Object[C]); ok {
			return obj, nil
		}
	}
	plan, err := planFor[C](g)
	if err != nil {
		return nil, err
	}

	obj := &Object[C]{
		plan:     plan,
		target:   plan.desc.copyOf(src),
		bindings: map[string]bound{},
		ledger:   newLedger(),
	}
	obj.setup(g, plan.desc.typeName, obj)
	g.views[src] = obj
	g.views[obj.target] = obj

	for _, s := range plan.slots {
		if s.kind != KindComplex && s.kind != KindCollection {
			continue
		}
		b, err := s.prop.attach(g, s.prop.get(obj.target))
		if err != nil {
			return nil, fmt.Errorf("track: %s.%s: %w", plan.desc.typeName, s.prop.name, err)
		}
		if err := s.prop.assign(obj.target, b.raw); err != nil {
			return nil, err
		}
		obj.bind(s, b)
	}
	return obj, nil
}

// slot is a member of T with its exclusion resolved for one graph.
type slot[T any] struct {
	prop   *Prop[T]
	kind   Kind
	reason string
}

type objectPlan[T any] struct {
	desc  *Descriptor[T]
	slots []slot[T]
	index map[string]int
	info  *TypePlan
}

func (p *objectPlan[T]) slot(name string) (slot[T], bool) {
	i, ok := p.index[name]
	if !ok {
		return slot[T]{}, false
	}
	return p.slots[i], true
}

// planFor resolves the members of T against the graph's policy once.
func planFor[T any](g *graph) (*objectPlan[T], error) {
	t := reflect.TypeFor[T]()
	if cached, ok := g.plans[t]; ok {
		return cached.(*objectPlan[T]), nil
	}
	desc, err := descriptorFor[T](g)
	if err != nil {
		return nil, err
	}

	plan := &objectPlan[T]{
		desc:  desc,
		index: make(map[string]int, len(desc.props)),
		info: &TypePlan{
			Name:     desc.typeName,
			GoType:   t.String(),
			Excluded: desc.marked,
		},
	}
	for i, p := range desc.props {
		kind, reason, err := resolveSlot(g, desc.typeName, p)
		if err != nil {
			return nil, err
		}
		plan.slots = append(plan.slots, slot[T]{prop: p, kind: kind, reason: reason})
		plan.index[p.name] = i
		plan.info.Properties = append(plan.info.Properties, PropertyPlan{
			Name:     p.name,
			Declared: p.kind,
			Kind:     kind,
			Type:     g.memberTypeName(p.kind, p.declared),
			GoType:   p.declared,
			Reason:   reason,
			Rules:    append([]string(nil), p.exprs...),
		})
	}
	g.plans[t] = plan
	return plan, nil
}

func resolveSlot[T any](g *graph, owner string, p *Prop[T]) (Kind, string, error) {
	if p.marked {
		return KindExcluded, "member marked", nil
	}
	typeName := g.memberTypeName(p.kind, p.declared)
	nested := p.kind == KindComplex || p.kind == KindCollection

	var nestedDesc describer
	if nested {
		d, ok := g.registry.lookup(p.declared)
		if ok && d.excluded() {
			return KindExcluded, "type marked", nil
		}
		nestedDesc = d
	}

	excluded, reason, err := g.cfg.policy.explainMember(Member{Owner: owner, Name: p.name, Type: typeName, Kind: p.kind})
	if err != nil {
		return 0, "", err
	}
	if excluded {
		return KindExcluded, reason, nil
	}
	if !nested {
		return p.kind, "", nil
	}

	excluded, reason, err = g.cfg.policy.explainType(typeName)
	if err != nil {
		return 0, "", err
	}
	if excluded {
		return KindExcluded, reason, nil
	}
	if nestedDesc == nil {
		return 0, "", fmt.Errorf("%w: %s.%s refers to %s", ErrNotRegistered, owner, p.name, p.declared)
	}
	return p.kind, "", nil
}

// typeExcluded reports whether a registered type is excluded by mark or by
// the graph's policy.
func (g *graph) typeExcluded(name string, marked bool) (bool, string, error) {
	if marked {
		return true, "type marked", nil
	}
	return g.cfg.policy.explainType(name)
}

func (g *graph) memberTypeName(kind Kind, declared reflect.Type) string {
	if kind == KindComplex || kind == KindCollection {
		return g.registry.typeNameOf(declared)
	}
	return defaultTypeName(declared)
}

// resolve implements describer for Explain.
func (d *Descriptor[T]) resolve(g *graph) (*TypePlan, error) {
	plan, err := planFor[T](g)
	if err != nil {
		return nil, err
	}
	excluded, reason, err := g.typeExcluded(d.typeName, d.marked)
	if err != nil {
		return nil, err
	}
	info := *plan.info
	info.Excluded = excluded
	info.Reason = reason
	return &info, nil
}
