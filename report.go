package track

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Report describes the pending changes of a tracked node and of every
// tracked node below it that is not Unchanged.
type Report struct {
	Property string           `json:"property,omitempty"`
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Status   Status           `json:"status"`
	Changes  []PropertyReport `json:"changes,omitempty"`
	Children []Report         `json:"children,omitempty"`
}

// PropertyReport is one changed member. Nested members are reported by the
// IDs of the tracked values they held.
type PropertyReport struct {
	Name     string `json:"name"`
	Original any    `json:"original"`
	Current  any    `json:"current"`
}

// reporter is implemented by Object and Collection.
type reporter interface {
	tracked
	changeReports() []PropertyReport
	namedChildren() []namedChild
}

type namedChild struct {
	property string
	node     tracked
}

// Changes reports the pending changes below ct. Values that do not come from
// AsTrackable yield an empty report.
func Changes(ct ChangeTrackable) Report {
	r, ok := ct.(reporter)
	if !ok {
		return Report{}
	}
	return buildReport(r, "", map[*base]bool{})
}

func buildReport(r reporter, property string, seen map[*base]bool) Report {
	b := r.core()
	seen[b] = true
	report := Report{
		Property: property,
		ID:       b.id,
		Type:     b.typeName,
		Status:   b.status,
		Changes:  r.changeReports(),
	}
	for _, child := range r.namedChildren() {
		cb := child.node.core()
		if seen[cb] || cb.status == Unchanged {
			continue
		}
		nested, ok := child.node.(reporter)
		if !ok {
			continue
		}
		report.Children = append(report.Children, buildReport(nested, child.property, seen))
	}
	return report
}

// Paths lists the changed members as dotted paths from the report root.
func (r Report) Paths() []string {
	var out []string
	r.paths("", &out)
	return out
}

func (r Report) paths(prefix string, out *[]string) {
	for _, change := range r.Changes {
		*out = append(*out, joinPath(prefix, change.Name))
	}
	for _, child := range r.Children {
		next := prefix
		switch {
		case strings.HasPrefix(child.Property, "["):
			next = prefix + child.Property
		case child.Property != "":
			next = joinPath(prefix, child.Property)
		}
		child.paths(next, out)
	}
}

// ToJSON serialises the report.
func (r Report) ToJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(alias(r))
}

// ReportFromJSON decodes a payload produced by ToJSON. Member values come
// back in their JSON form: numbers as json.Number so integers keep their
// precision, objects as map[string]any and arrays as []any.
func ReportFromJSON(payload []byte) (Report, error) {
	type alias Report
	var report alias
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&report); err != nil {
		return Report{}, fmt.Errorf("track: decode report: %w", err)
	}
	if dec.More() {
		return Report{}, fmt.Errorf("track: decode report: trailing data")
	}
	return Report(report), nil
}

func (o *Object[T]) changeReports() []PropertyReport {
	var out []PropertyReport
	for _, name := range o.ledger.names() {
		original, _ := o.ledger.original(name)
		s, _ := o.plan.slot(name)
		change := PropertyReport{Name: name}
		if b, ok := original.(bound); ok {
			change.Original = boundID(b)
			change.Current = boundID(o.bindings[name])
		} else {
			change.Original = original
			change.Current = s.prop.get(o.target)
		}
		out = append(out, change)
	}
	return out
}

func (o *Object[T]) namedChildren() []namedChild {
	var out []namedChild
	for _, s := range o.plan.slots {
		if b, ok := o.bindings[s.prop.name]; ok && b.node != nil {
			out = append(out, namedChild{property: s.prop.name, node: b.node})
		}
	}
	return out
}

func (c *Collection[E]) changeReports() []PropertyReport {
	if !c.dirty() {
		return nil
	}
	return []PropertyReport{{
		Name:     itemsProperty,
		Original: objectIDs(c.baseline),
		Current:  objectIDs(c.items),
	}}
}

func (c *Collection[E]) namedChildren() []namedChild {
	var out []namedChild
	for i, item := range c.items {
		out = append(out, namedChild{property: fmt.Sprintf("[%d]", i), node: item})
	}
	for _, item := range c.removed {
		out = append(out, namedChild{property: "[-]", node: item})
	}
	return out
}

func boundID(b bound) any {
	if b.node == nil {
		return nil
	}
	return b.node.core().id
}

func objectIDs[E any](items []*Object[E]) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.id)
	}
	return out
}
