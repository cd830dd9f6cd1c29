package track

import (
	"fmt"
	"iter"
	"reflect"
)

// Collection is the tracked form of a []*E member. Elements are tracked
// objects; inserting marks them Added and removing a baseline element marks
// it Deleted until the next accept or reject. Structural changes are written
// back to the owner's live slice.
type Collection[E any] struct {
	base
	items    []*Object[E]
	baseline []*Object[E]
	removed  []*Object[E]
	wasNil   bool
	sink     func(any)
}

// itemsProperty is the name under which element changes reach the owner.
const itemsProperty = "Items"

func newCollection[E any](g *graph, src []*E) (*Collection[E], error) {
	plan, err := planFor[E](g)
	if err != nil {
		return nil, err
	}
	c := &Collection[E]{wasNil: src == nil}
	c.setup(g, "[]"+plan.desc.typeName, c)
	for i, item := range src {
		if item == nil {
			return nil, fmt.Errorf("track: %s[%d] is nil", c.typeName, i)
		}
		obj, err := wrapObject(g, item)
		if err != nil {
			return nil, err
		}
		c.link(obj)
		c.items = append(c.items, obj)
	}
	c.baseline = append([]*Object[E](nil), c.items...)
	return c, nil
}

// Len returns the number of current elements.
func (c *Collection[E]) Len() int {
	return len(c.items)
}

// At returns the element at i.
func (c *Collection[E]) At(i int) (*Object[E], error) {
	if i < 0 || i >= len(c.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(c.items))
	}
	return c.items[i], nil
}

// Items returns the current elements.
func (c *Collection[E]) Items() []*Object[E] {
	return append([]*Object[E](nil), c.items...)
}

// All iterates the current elements with their index.
func (c *Collection[E]) All() iter.Seq2[int, *Object[E]] {
	return func(yield func(int, *Object[E]) bool) {
		for i, item := range c.Items() {
			if !yield(i, item) {
				return
			}
		}
	}
}

// Values returns the live targets of the current elements.
func (c *Collection[E]) Values() []*E {
	out := make([]*E, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item.target)
	}
	return out
}

// Index returns the position of item, which may be an *E or an *Object[E],
// or -1.
func (c *Collection[E]) Index(item any) int {
	for i, obj := range c.items {
		switch v := item.(type) {
		case *Object[E]:
			if obj == v {
				return i
			}
		case *E:
			if obj.target == v {
				return i
			}
		}
	}
	return -1
}

// Add appends item and returns its tracked view.
func (c *Collection[E]) Add(item any) (*Object[E], error) {
	return c.Insert(len(c.items), item)
}

// Insert places item at i. Items not seen before are marked Added; a
// removed baseline element put back returns to its computed status.
func (c *Collection[E]) Insert(i int, item any) (*Object[E], error) {
	if i < 0 || i > len(c.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(c.items))
	}
	obj, err := c.adopt(item)
	if err != nil {
		return nil, err
	}
	c.items = append(c.items[:i], append([]*Object[E]{obj}, c.items[i:]...)...)
	c.changed(func() { c.enter(obj) })
	return obj, nil
}

// RemoveAt removes the element at i and returns it.
func (c *Collection[E]) RemoveAt(i int) (*Object[E], error) {
	if i < 0 || i >= len(c.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(c.items))
	}
	obj := c.items[i]
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	c.changed(func() { c.release(obj) })
	return obj, nil
}

// Remove removes the first occurrence of item and reports whether it was
// present.
func (c *Collection[E]) Remove(item any) bool {
	i := c.Index(item)
	if i < 0 {
		return false
	}
	_, err := c.RemoveAt(i)
	return err == nil
}

// Replace swaps the element at i for item. The collection is left untouched
// when item is rejected.
func (c *Collection[E]) Replace(i int, item any) (*Object[E], error) {
	if i < 0 || i >= len(c.items) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(c.items))
	}
	obj, err := c.adopt(item)
	if err != nil {
		return nil, err
	}
	old := c.items[i]
	if old == obj {
		return obj, nil
	}
	c.items[i] = obj
	c.changed(func() {
		c.release(old)
		c.enter(obj)
	})
	return obj, nil
}

// Clear removes every element.
func (c *Collection[E]) Clear() {
	if len(c.items) == 0 {
		return
	}
	dropped := c.items
	c.items = nil
	c.changed(func() {
		for _, obj := range dropped {
			c.release(obj)
		}
	})
}

// AddedItems returns current elements marked Added.
func (c *Collection[E]) AddedItems() []*Object[E] {
	return c.filter(Added)
}

// DeletedItems returns baseline elements removed since the last accept or
// reject.
func (c *Collection[E]) DeletedItems() []*Object[E] {
	return append([]*Object[E](nil), c.removed...)
}

// ChangedItems returns current elements with their own changes.
func (c *Collection[E]) ChangedItems() []*Object[E] {
	return c.filter(Changed)
}

// UnchangedItems returns current elements without changes.
func (c *Collection[E]) UnchangedItems() []*Object[E] {
	return c.filter(Unchanged)
}

// ChangedProperties reports "Items" while the elements differ from the
// baseline.
func (c *Collection[E]) ChangedProperties() []string {
	if c.dirty() {
		return []string{itemsProperty}
	}
	return nil
}

// OriginalValue returns the baseline elements for "Items".
func (c *Collection[E]) OriginalValue(name string) (any, bool) {
	if name != itemsProperty || !c.dirty() {
		return nil, false
	}
	return append([]*Object[E](nil), c.baseline...), true
}

func (c *Collection[E]) filter(status Status) []*Object[E] {
	var out []*Object[E]
	for _, item := range c.items {
		if item.status == status {
			out = append(out, item)
		}
	}
	return out
}

// adopt returns the tracked view of item within this graph.
func (c *Collection[E]) adopt(item any) (*Object[E], error) {
	switch v := item.(type) {
	case *Object[E]:
		if v == nil {
			return nil, fmt.Errorf("%w: nil element for %s", ErrTypeMismatch, c.typeName)
		}
		if v.graph == c.graph {
			return v, nil
		}
		return wrapObject(c.graph, v.target)
	case *E:
		if v == nil {
			return nil, fmt.Errorf("%w: nil element for %s", ErrTypeMismatch, c.typeName)
		}
		return wrapObject(c.graph, v)
	default:
		return nil, fmt.Errorf("%w: %s wants *%s or its tracked view, got %T", ErrTypeMismatch, c.typeName, reflect.TypeFor[E](), item)
	}
}

// enter links an element that just joined items.
func (c *Collection[E]) enter(obj *Object[E]) {
	if c.takeRemoved(obj) {
		obj.setStatus(obj.derived())
		return
	}
	c.link(obj)
	if !c.inBaseline(obj) {
		obj.setStatus(Added)
	}
}

// release unlinks a removed element. Baseline elements are kept as Deleted
// until the next accept or reject; others are dropped.
func (c *Collection[E]) release(obj *Object[E]) {
	if c.Index(obj) >= 0 {
		return
	}
	if c.inBaseline(obj) {
		c.removed = append(c.removed, obj)
		obj.setStatus(Deleted)
		return
	}
	c.unlink(obj)
}

// link and unlink keep one back-reference per element held in items or
// removed.
func (c *Collection[E]) link(obj *Object[E]) {
	if !obj.hasOwner(&c.base, itemsProperty) {
		obj.addOwner(&c.base, itemsProperty)
	}
}

func (c *Collection[E]) unlink(obj *Object[E]) {
	obj.removeOwner(&c.base, itemsProperty)
}

func (c *Collection[E]) takeRemoved(obj *Object[E]) bool {
	for i, r := range c.removed {
		if r == obj {
			c.removed = append(c.removed[:i:i], c.removed[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Collection[E]) inBaseline(obj *Object[E]) bool {
	for _, b := range c.baseline {
		if b == obj {
			return true
		}
	}
	return false
}

// changed finishes a structural edit: the owner's slice is written back
// before any status moves, then the notification fires.
func (c *Collection[E]) changed(apply func()) {
	c.sync()
	apply()
	c.refresh()
	c.notifyProperty(itemsProperty)
}

func (c *Collection[E]) sync() {
	if c.sink != nil {
		c.sink(c.raw())
	}
}

func (c *Collection[E]) setSink(sink func(any)) {
	c.sink = sink
}

// raw is the slice stored in the owner: nil when the source was nil and
// nothing was added since.
func (c *Collection[E]) raw() []*E {
	if c.wasNil && len(c.items) == 0 {
		return nil
	}
	return c.Values()
}

func (c *Collection[E]) rawValue() any {
	return c.raw()
}

func (c *Collection[E]) children() []tracked {
	out := make([]tracked, 0, len(c.items)+len(c.removed))
	for _, item := range c.items {
		out = append(out, item)
	}
	for _, item := range c.removed {
		out = append(out, item)
	}
	return out
}

func (c *Collection[E]) dirty() bool {
	if len(c.items) != len(c.baseline) {
		return true
	}
	for i := range c.items {
		if c.items[i] != c.baseline[i] {
			return true
		}
	}
	return false
}

func (c *Collection[E]) commitOwn() {
	for _, obj := range c.removed {
		if c.Index(obj) < 0 {
			c.unlink(obj)
		}
	}
	c.removed = nil
	c.baseline = append([]*Object[E](nil), c.items...)
	if len(c.items) > 0 {
		c.wasNil = false
	}
}

func (c *Collection[E]) restoreOwn() error {
	for _, obj := range c.items {
		if !c.inBaseline(obj) {
			c.unlink(obj)
		}
	}
	c.items = append([]*Object[E](nil), c.baseline...)
	c.removed = nil
	c.sync()
	return nil
}
