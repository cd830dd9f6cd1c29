package track

import (
	"context"
	"time"

	"github.com/goliatone/go-tracking/pkg/activity"
)

// Subscription is returned by OnPropertyChanged and OnStatusChanged.
type Subscription struct {
	cancel func()
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	cancel := s.cancel
	s.cancel = nil
	cancel()
}

type listener[E any] struct {
	id int
	fn func(E)
}

// hub keeps listeners in subscription order.
type hub[E any] struct {
	next      int
	listeners []listener[E]
}

func (h *hub[E]) add(fn func(E)) *Subscription {
	if fn == nil {
		return &Subscription{}
	}
	h.next++
	id := h.next
	h.listeners = append(h.listeners, listener[E]{id: id, fn: fn})
	return &Subscription{cancel: func() { h.remove(id) }}
}

func (h *hub[E]) remove(id int) {
	for i, l := range h.listeners {
		if l.id == id {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)
			return
		}
	}
}

// fire delivers to a snapshot so listeners may unsubscribe while running.
func (h *hub[E]) fire(event E) {
	if len(h.listeners) == 0 {
		return
	}
	snapshot := append([]listener[E](nil), h.listeners...)
	for _, l := range snapshot {
		l.fn(event)
	}
}

// WithActivityHooks mirrors every notification of the graph to hooks as an
// activity event. Hook failures are logged and never reach the caller.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *config) {
		cfg.activityHooks = append(cfg.activityHooks, hooks...)
	}
}

// relay mirrors notifications of one graph to logging and activity hooks.
type relay struct {
	logger  Logger
	emitter *activity.Emitter
	clock   func() time.Time
}

func newRelay(cfg config) *relay {
	return &relay{
		logger: cfg.logger,
		emitter: activity.NewEmitter(cfg.activityHooks, activity.Config{
			Enabled:  true,
			Channel:  cfg.channel,
			ActorID:  cfg.actorID,
			TenantID: cfg.tenantID,
		}),
		clock: cfg.clock,
	}
}

func (r *relay) now() time.Time {
	if r == nil || r.clock == nil {
		return time.Now()
	}
	return r.clock()
}

func (r *relay) log(event LogEvent) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.LogTracking(event)
}

func (r *relay) property(b *base, property string) {
	r.emit(b, activity.BuildPropertyChangedEvent(activity.TrackingEventInput{
		ObjectType: b.typeName,
		ObjectID:   b.id,
		Property:   property,
		OccurredAt: r.now(),
	}))
}

func (r *relay) status(b *base, old, next Status) {
	r.emit(b, activity.BuildStatusChangedEvent(activity.TrackingEventInput{
		ObjectType: b.typeName,
		ObjectID:   b.id,
		OldStatus:  old.String(),
		NewStatus:  next.String(),
		OccurredAt: r.now(),
	}))
}

func (r *relay) settled(b *base, accepted bool, properties []string, err error) {
	input := activity.TrackingEventInput{
		ObjectType: b.typeName,
		ObjectID:   b.id,
		Properties: properties,
		Err:        err,
		OccurredAt: r.now(),
	}
	if accepted {
		r.emit(b, activity.BuildChangesAcceptedEvent(input))
		return
	}
	r.emit(b, activity.BuildChangesRejectedEvent(input))
}

func (r *relay) emit(b *base, event activity.Event) {
	if r == nil || !r.emitter.Enabled() {
		return
	}
	if err := r.emitter.Emit(context.Background(), event); err != nil {
		r.log(LogEvent{Op: "emit", Type: b.typeName, ID: b.id, Err: err})
	}
}
