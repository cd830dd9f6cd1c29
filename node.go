package track

import (
	"errors"

	"github.com/google/uuid"
)

// tracked is implemented by every node of a tracked graph.
type tracked interface {
	core() *base
	// children returns the directly owned tracked nodes.
	children() []tracked
	// dirty reports own changes: ledger entries or collection structure.
	dirty() bool
	// commitOwn adopts the current state as baseline without events.
	commitOwn()
	// restoreOwn restores the baseline without events.
	restoreOwn() error
}

// edge is a back-reference from a node to one of its owners.
type edge struct {
	owner    *base
	property string
}

// base carries identity, status and subscriptions shared by Object and
// Collection.
type base struct {
	id       string
	typeName string
	status   Status
	owners   []edge
	graph    *graph
	self     tracked

	propertySubs hub[PropertyChange]
	statusSubs   hub[StatusChange]
}

func (b *base) setup(g *graph, typeName string, self tracked) {
	b.id = uuid.NewString()
	b.typeName = typeName
	b.graph = g
	b.self = self
}

func (b *base) core() *base { return b }

// ID returns the identifier assigned when the node was created.
func (b *base) ID() string { return b.id }

// TypeName returns the registered type name.
func (b *base) TypeName() string { return b.typeName }

// Status returns the current lifecycle status.
func (b *base) Status() Status { return b.status }

// MarkAdded sets the explicit Added status. Property writes and child changes
// do not override it; AcceptChanges and RejectChanges clear it.
func (b *base) MarkAdded() { b.setStatus(Added) }

// MarkDeleted sets the explicit Deleted status.
func (b *base) MarkDeleted() { b.setStatus(Deleted) }

// OnPropertyChanged subscribes to property writes on this node and on any
// tracked node below it. Nested changes arrive under the owning member name.
func (b *base) OnPropertyChanged(fn func(PropertyChange)) *Subscription {
	return b.propertySubs.add(fn)
}

// OnStatusChanged subscribes to status transitions of this node.
func (b *base) OnStatusChanged(fn func(StatusChange)) *Subscription {
	return b.statusSubs.add(fn)
}

// AcceptChanges adopts the current values of the whole tracked subtree as the
// new baseline. Calling it again without writes in between is a no-op.
func (b *base) AcceptChanges() {
	start := b.graph.relay.now()
	properties := b.ownChanges()
	settle(b, true)
	b.graph.relay.log(LogEvent{Op: "accept", Type: b.typeName, ID: b.id, Duration: b.graph.relay.now().Sub(start)})
	b.graph.relay.settled(b, true, properties, nil)
}

// RejectChanges restores the baseline of the whole tracked subtree. Members
// whose write-back fails keep their ledger entry and are reported in the
// returned error; every other member is restored.
func (b *base) RejectChanges() error {
	start := b.graph.relay.now()
	properties := b.ownChanges()
	err := settle(b, false)
	b.graph.relay.log(LogEvent{Op: "reject", Type: b.typeName, ID: b.id, Duration: b.graph.relay.now().Sub(start), Err: err})
	b.graph.relay.settled(b, false, properties, err)
	return err
}

func (b *base) ownChanges() []string {
	if lister, ok := b.self.(interface{ ChangedProperties() []string }); ok {
		return lister.ChangedProperties()
	}
	return nil
}

func (b *base) addOwner(owner *base, property string) {
	b.owners = append(b.owners, edge{owner: owner, property: property})
}

func (b *base) removeOwner(owner *base, property string) {
	for i, e := range b.owners {
		if e.owner == owner && e.property == property {
			b.owners = append(b.owners[:i:i], b.owners[i+1:]...)
			return
		}
	}
}

func (b *base) hasOwner(owner *base, property string) bool {
	for _, e := range b.owners {
		if e.owner == owner && e.property == property {
			return true
		}
	}
	return false
}

// computed derives the status from own changes and children. Explicit
// statuses win.
func (b *base) computed() Status {
	if b.status.explicit() {
		return b.status
	}
	return b.derived()
}

// derived ignores explicit statuses.
func (b *base) derived() Status {
	if b.self.dirty() {
		return Changed
	}
	for _, child := range b.self.children() {
		if child.core().status != Unchanged {
			return Changed
		}
	}
	return Unchanged
}

// refresh recomputes b and everything above it.
func (b *base) refresh() {
	region := b.ownerClosure()
	reconcile(region, snapshot(region))
}

// setStatus assigns next, then settles b and every owner above it before the
// first status notification fires.
func (b *base) setStatus(next Status) {
	if b.status == next {
		return
	}
	region := b.ownerClosure()
	prior := snapshot(region)
	b.status = next
	reconcile(region, prior)
}

// ownerClosure returns b followed by every node reachable through owner
// edges, each once.
func (b *base) ownerClosure() []*base {
	region := []*base{b}
	seen := map[*base]bool{b: true}
	for i := 0; i < len(region); i++ {
		for _, e := range region[i].owners {
			if !seen[e.owner] {
				seen[e.owner] = true
				region = append(region, e.owner)
			}
		}
	}
	return region
}

func snapshot(region []*base) map[*base]Status {
	prior := make(map[*base]Status, len(region))
	for _, b := range region {
		prior[b] = b.status
	}
	return prior
}

// reconcile drops the derived statuses of region and rebuilds them from own
// changes and children. Starting from Unchanged keeps a cycle from holding
// itself at Changed once the change that caused it is gone.
func reconcile(region []*base, prior map[*base]Status) {
	for _, b := range region {
		if !b.status.explicit() {
			b.status = Unchanged
		}
	}
	fixpoint(region)
	fireMoved(region, prior)
}

// fixpoint raises statuses until no node of order moves.
func fixpoint(order []*base) {
	for moved := true; moved; {
		moved = false
		for _, b := range order {
			if next := b.computed(); next != b.status {
				b.status = next
				moved = true
			}
		}
	}
}

func fireMoved(order []*base, prior map[*base]Status) {
	for _, b := range order {
		if old := prior[b]; old != b.status {
			b.fireStatus(old, b.status)
		}
	}
}

func (b *base) fireStatus(old, next Status) {
	b.statusSubs.fire(StatusChange{ID: b.id, Type: b.typeName, Old: old, New: next})
	b.graph.relay.status(b, old, next)
}

// notifyProperty fires on b and bubbles to every owner under the owning
// member name, visiting each node once.
func (b *base) notifyProperty(property string) {
	b.bubble(property, map[*base]bool{})
}

func (b *base) bubble(property string, seen map[*base]bool) {
	if seen[b] {
		return
	}
	seen[b] = true
	b.propertySubs.fire(PropertyChange{ID: b.id, Type: b.typeName, Property: property})
	b.graph.relay.property(b, property)
	for _, e := range append([]edge(nil), b.owners...) {
		e.owner.bubble(e.property, seen)
	}
}

// settle commits or restores every node reachable from root, then settles
// all statuses before the first status notification fires. Owners outside
// the subtree are refreshed last.
func settle(root *base, accept bool) error {
	var (
		order []*base
		prior = map[*base]Status{}
		errs  []error
	)

	stack := []tracked{root.self}
	for len(stack) > 0 {
		n := len(stack) - 1
		node := stack[n]
		stack = stack[:n]
		b := node.core()
		if _, ok := prior[b]; ok {
			continue
		}
		prior[b] = b.status
		order = append(order, b)

		if accept {
			node.commitOwn()
		} else if err := node.restoreOwn(); err != nil {
			errs = append(errs, err)
		}
		children := node.children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	for _, b := range order {
		b.status = Unchanged
	}
	fixpoint(order)
	fireMoved(order, prior)
	for _, b := range order {
		for _, e := range append([]edge(nil), b.owners...) {
			if _, inside := prior[e.owner]; !inside {
				e.owner.refresh()
			}
		}
	}
	return errors.Join(errs...)
}
