// Package promsink counts tracking activity in Prometheus.
package promsink

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goliatone/go-tracking/pkg/activity"
)

// Hook increments tracking_events_total{verb,object_type} per event.
type Hook struct {
	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// New registers the counters on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer, namespace string) *Hook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Hook{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_events_total",
			Help:      "Change-tracking events by verb and object type",
		}, []string{"verb", "object_type"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_reject_failures_total",
			Help:      "RejectChanges calls with at least one failed write-back",
		}, []string{"object_type"}),
	}
}

// Notify implements activity.ActivityHook.
func (h *Hook) Notify(_ context.Context, event activity.Event) error {
	if h == nil {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if event.Verb == "" || event.ObjectID == "" {
		return nil
	}
	h.events.WithLabelValues(event.Verb, event.ObjectType).Inc()
	if _, failed := event.Failure(); failed && event.Verb == activity.VerbChangesRejected {
		h.failures.WithLabelValues(event.ObjectType).Inc()
	}
	return nil
}
