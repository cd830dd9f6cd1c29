package track

import (
	"fmt"
	"reflect"
	"strings"
)

// Plan is the tracking plan of a root type and every type reachable through
// its tracked members, as resolved against one policy.
type Plan struct {
	Root  string     `json:"root"`
	Types []TypePlan `json:"types"`
}

// TypePlan lists the resolved members of one type.
type TypePlan struct {
	Name       string         `json:"name"`
	GoType     string         `json:"go_type"`
	Excluded   bool           `json:"excluded,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Properties []PropertyPlan `json:"properties"`
}

// PropertyPlan is one member with its declared and resolved kind. Reason
// names the exclusion source when Kind is KindExcluded.
type PropertyPlan struct {
	Name     string       `json:"name"`
	Declared Kind         `json:"declared"`
	Kind     Kind         `json:"kind"`
	Type     string       `json:"type"`
	GoType   reflect.Type `json:"-"`
	Reason   string       `json:"reason,omitempty"`
	Rules    []string     `json:"rules,omitempty"`
}

// Tracked reports whether the member participates in tracking.
func (p PropertyPlan) Tracked() bool {
	return p.Kind != KindExcluded
}

// FieldDescriptor is a flattened member path of a plan.
type FieldDescriptor struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Kind     Kind   `json:"kind"`
	Excluded bool   `json:"excluded,omitempty"`
}

// Explain resolves the plan AsTrackable would use for T with the same
// registry and options, without wrapping anything.
func Explain[T any](reg *Registry, opts ...Option) (Plan, error) {
	if reg == nil {
		return Plan{}, fmt.Errorf("track: registry is nil")
	}
	g := newGraph(reg, opts)
	root, ok := reg.lookup(reflect.TypeFor[T]())
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrNotRegistered, reflect.TypeFor[T]())
	}

	plan := Plan{Root: root.name()}
	seen := map[reflect.Type]bool{}
	queue := []describer{root}
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if seen[d.goType()] {
			continue
		}
		seen[d.goType()] = true

		info, err := d.resolve(g)
		if err != nil {
			return Plan{}, err
		}
		plan.Types = append(plan.Types, *info)
		for _, p := range info.Properties {
			if !p.Tracked() || (p.Kind != KindComplex && p.Kind != KindCollection) {
				continue
			}
			if nested, ok := reg.lookup(p.GoType); ok && !seen[nested.goType()] {
				queue = append(queue, nested)
			}
		}
	}
	return plan, nil
}

// Type returns the plan of the named type.
func (p Plan) Type(name string) (TypePlan, bool) {
	for _, t := range p.Types {
		if t.Name == name {
			return t, true
		}
	}
	return TypePlan{}, false
}

// Property returns the named member of the type plan.
func (t TypePlan) Property(name string) (PropertyPlan, bool) {
	for _, prop := range t.Properties {
		if prop.Name == name {
			return prop, true
		}
	}
	return PropertyPlan{}, false
}

// Descriptors flattens the plan into dotted paths from the root. Collection
// members appear as "Name[]" and their element members below that prefix.
// A type already on the current path is not expanded again.
func (p Plan) Descriptors() []FieldDescriptor {
	root, ok := p.Type(p.Root)
	if !ok {
		return []FieldDescriptor{}
	}
	out := []FieldDescriptor{}
	p.describe(root, "", map[string]bool{root.Name: true}, &out)
	return out
}

func (p Plan) describe(t TypePlan, prefix string, onPath map[string]bool, out *[]FieldDescriptor) {
	for _, prop := range t.Properties {
		path := joinPath(prefix, prop.Name)
		if prop.Kind == KindCollection {
			path += "[]"
		}
		*out = append(*out, FieldDescriptor{
			Path:     path,
			Type:     prop.Type,
			Kind:     prop.Kind,
			Excluded: !prop.Tracked(),
		})
		if prop.Kind != KindComplex && prop.Kind != KindCollection {
			continue
		}
		nested, ok := p.Type(prop.Type)
		if !ok || onPath[nested.Name] {
			continue
		}
		onPath[nested.Name] = true
		p.describe(nested, path, onPath, out)
		delete(onPath, nested.Name)
	}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
