package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Metadata keys set by the tracking event builders.
const (
	MetaProperty   = "property"
	MetaProperties = "properties"
	MetaOldStatus  = "old_status"
	MetaNewStatus  = "new_status"
	MetaError      = "error"
)

// defaultObjectType names events whose tracked node has no registered type.
const defaultObjectType = "tracked"

// Event is one tracking notification mirrored to activity hooks. ObjectID
// is the tracked node ID and ObjectType its registered type name.
type Event struct {
	Verb       string
	ObjectType string
	ObjectID   string
	Channel    string
	ActorID    string
	TenantID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Property returns the member named by a property event.
func (e Event) Property() string {
	name, _ := e.Metadata[MetaProperty].(string)
	return name
}

// Properties returns the pending members listed by accept and reject events.
func (e Event) Properties() []string {
	names, _ := e.Metadata[MetaProperties].([]string)
	return names
}

// Transition returns the statuses of a status event.
func (e Event) Transition() (old, next string, ok bool) {
	old, okOld := e.Metadata[MetaOldStatus].(string)
	next, okNew := e.Metadata[MetaNewStatus].(string)
	return old, next, okOld && okNew
}

// Failure returns the write-back error carried by a reject event.
func (e Event) Failure() (string, bool) {
	msg, ok := e.Metadata[MetaError].(string)
	return msg, ok
}

// ActivityHook receives normalized activity events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes the event and forwards it to every hook. Events without
// a verb or a node ID are dropped. Failures are joined, each labelled with
// the verb and hook position.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectID == "" {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for i, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, fmt.Errorf("activity: %s hook %d: %w", normalized.Verb, i, err))
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers, defaults the object type and timestamp,
// and copies metadata so hooks cannot alter each other's view.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.ObjectType = strings.TrimSpace(event.ObjectType)
	if normalized.ObjectType == "" {
		normalized.ObjectType = defaultObjectType
	}
	normalized.ObjectID = strings.TrimSpace(event.ObjectID)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.Metadata = cloneMetadata(event.Metadata)
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func cloneMetadata(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		if names, ok := value.([]string); ok {
			value = append([]string(nil), names...)
		}
		dst[key] = value
	}
	return dst
}
