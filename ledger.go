package track

import (
	"errors"
	"sort"
)

// ledger holds the original value of every member changed since the last
// accept or reject. An entry exists only while the member differs from its
// original.
type ledger struct {
	entries map[string]any
}

func newLedger() *ledger {
	return &ledger{entries: map[string]any{}}
}

// record stores old as the original of property unless the property already
// has an entry in the current change window.
func (l *ledger) record(property string, old any) {
	if _, ok := l.entries[property]; ok {
		return
	}
	l.entries[property] = old
}

func (l *ledger) forget(property string) {
	delete(l.entries, property)
}

func (l *ledger) original(property string) (any, bool) {
	v, ok := l.entries[property]
	return v, ok
}

func (l *ledger) has(property string) bool {
	_, ok := l.entries[property]
	return ok
}

func (l *ledger) empty() bool {
	return len(l.entries) == 0
}

// names returns the changed property names, sorted.
func (l *ledger) names() []string {
	out := make([]string, 0, len(l.entries))
	for name := range l.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (l *ledger) clear() {
	clear(l.entries)
}

// reject restores every entry through writeback. Entries that restore are
// removed; failed entries stay so the reject can be retried.
func (l *ledger) reject(writeback func(property string, original any) error) error {
	var errs []error
	for _, name := range l.names() {
		if err := writeback(name, l.entries[name]); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(l.entries, name)
	}
	return errors.Join(errs...)
}
