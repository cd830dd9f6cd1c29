package promsink

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/goliatone/go-tracking/pkg/activity"
)

func TestHookCountsByVerbAndType(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook := New(reg, "shop")
	hooks := activity.Hooks{hook}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = hooks.Notify(ctx, activity.BuildPropertyChangedEvent(activity.TrackingEventInput{ObjectType: "Order", ObjectID: "1", Property: "Total"}))
	}
	_ = hooks.Notify(ctx, activity.BuildStatusChangedEvent(activity.TrackingEventInput{ObjectType: "Order", ObjectID: "1", OldStatus: "unchanged", NewStatus: "changed"}))
	_ = hooks.Notify(ctx, activity.BuildPropertyChangedEvent(activity.TrackingEventInput{ObjectType: "Address", ObjectID: "2", Property: "City"}))

	if got := testutil.ToFloat64(hook.events.WithLabelValues(activity.VerbPropertyChanged, "Order")); got != 3 {
		t.Fatalf("expected 3 Order property events, got %v", got)
	}
	if got := testutil.CollectAndCount(hook.events, "shop_tracking_events_total"); got != 3 {
		t.Fatalf("expected 3 label series, got %d", got)
	}
}

func TestHookCountsRejectFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook := New(reg, "")

	_ = hook.Notify(context.Background(), activity.BuildChangesRejectedEvent(activity.TrackingEventInput{ObjectType: "Order", ObjectID: "1"}))
	_ = hook.Notify(context.Background(), activity.BuildChangesRejectedEvent(activity.TrackingEventInput{ObjectType: "Order", ObjectID: "1", Err: errors.New("restore failed")}))

	if got := testutil.ToFloat64(hook.failures.WithLabelValues("Order")); got != 1 {
		t.Fatalf("expected one failed reject, got %v", got)
	}
	if got := testutil.ToFloat64(hook.events.WithLabelValues(activity.VerbChangesRejected, "Order")); got != 2 {
		t.Fatalf("expected two reject events, got %v", got)
	}
}

func TestHookIgnoresIncompleteEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook := New(reg, "")
	_ = hook.Notify(context.Background(), activity.Event{})
	if got := testutil.CollectAndCount(hook.events); got != 0 {
		t.Fatalf("expected no series, got %d", got)
	}
}
