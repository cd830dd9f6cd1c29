package activity

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestNormalizeEventTrimsClonesAndDefaults(t *testing.T) {
	names := []string{"Total"}
	meta := map[string]any{MetaProperty: "Total", MetaProperties: names}
	evt := Event{
		Verb:     " tracking.status.changed ",
		ObjectID: " 42 ",
		Channel:  " tracking ",
		ActorID:  " actor ",
		TenantID: " tenant ",
		Metadata: meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != VerbStatusChanged || got.ObjectID != "42" || got.Channel != "tracking" {
		t.Fatalf("unexpected normalized fields: %+v", got)
	}
	if got.ObjectType != "tracked" {
		t.Fatalf("expected default object type, got %q", got.ObjectType)
	}
	if got.ActorID != "actor" || got.TenantID != "tenant" {
		t.Fatalf("unexpected identity fields: %+v", got)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata[MetaProperty] = "changed"
	got.Properties()[0] = "changed"
	if meta[MetaProperty] != "Total" || names[0] != "Total" {
		t.Fatalf("expected original metadata untouched: %+v", meta)
	}
}

func TestEventAccessors(t *testing.T) {
	status := BuildStatusChangedEvent(TrackingEventInput{ObjectID: "1", OldStatus: "unchanged", NewStatus: "changed"})
	if old, next, ok := status.Transition(); !ok || old != "unchanged" || next != "changed" {
		t.Fatalf("unexpected transition %q %q %v", old, next, ok)
	}
	if status.Property() != "" || status.Properties() != nil {
		t.Fatalf("status events name no members: %+v", status.Metadata)
	}
	if _, failed := status.Failure(); failed {
		t.Fatalf("status events carry no failure")
	}

	property := BuildPropertyChangedEvent(TrackingEventInput{ObjectID: "1", Property: "City"})
	if property.Property() != "City" {
		t.Fatalf("unexpected property %q", property.Property())
	}
	if _, _, ok := property.Transition(); ok {
		t.Fatalf("property events carry no transition")
	}
}

func TestHooksNotifyDropsEventsWithoutNode(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	if err := hooks.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := hooks.Notify(context.Background(), Event{Verb: VerbChangesAccepted}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	capture := &CaptureHook{}
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, event Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		capture,
		HookFunc(func(context.Context, Event) error { return boom1 }),
		nil,
		HookFunc(func(context.Context, Event) error { return boom2 }),
	}

	err := hooks.Notify(nil, Event{Verb: VerbPropertyChanged, ObjectType: "Order", ObjectID: "1"})
	if !errors.Is(err, boom1) || !errors.Is(err, boom2) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if !strings.Contains(err.Error(), "tracking.property.changed hook 2") {
		t.Fatalf("expected hook position in error, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected event to be captured once, got %d", len(capture.Events))
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.Emit(context.Background(), Event{Verb: VerbChangesAccepted, ObjectID: "1"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}
	if NewEmitter(Hooks{nil}, Config{Enabled: true}).Enabled() {
		t.Fatalf("expected emitter without hooks to be disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, ActorID: "user-1", TenantID: "acme"})
	if err := enabled.Emit(context.Background(), Event{Verb: VerbChangesAccepted, ObjectType: "Order", ObjectID: "1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events[0]
	if got.Channel != DefaultChannel || got.ActorID != "user-1" || got.TenantID != "acme" {
		t.Fatalf("expected stamped defaults, got %+v", got)
	}
}

func TestEmitterPreservesExplicitFields(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "default", ActorID: "system"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := emitter.Emit(context.Background(), Event{
		Verb:       VerbStatusChanged,
		ObjectType: "Order",
		ObjectID:   "1",
		Channel:    "custom",
		ActorID:    "user-2",
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events[0]
	if got.Channel != "custom" || got.ActorID != "user-2" || !got.OccurredAt.Equal(at) {
		t.Fatalf("expected explicit fields preserved, got %+v", got)
	}
}

func TestCaptureHookQueries(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}
	_ = hooks.Notify(context.Background(), BuildPropertyChangedEvent(TrackingEventInput{ObjectType: "Order", ObjectID: "1", Property: "Total"}))
	_ = hooks.Notify(context.Background(), BuildStatusChangedEvent(TrackingEventInput{ObjectType: "Line", ObjectID: "2", OldStatus: "unchanged", NewStatus: "added"}))
	_ = hooks.Notify(context.Background(), BuildChangesAcceptedEvent(TrackingEventInput{ObjectType: "Order", ObjectID: "1"}))

	want := []string{VerbPropertyChanged, VerbStatusChanged, VerbChangesAccepted}
	if got := capture.Verbs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected verbs %v", got)
	}
	if got := capture.ForObject("1"); len(got) != 2 || got[0].Property() != "Total" {
		t.Fatalf("unexpected events for object 1: %+v", got)
	}
	capture.Reset()
	if len(capture.Verbs()) != 0 {
		t.Fatalf("expected reset to drop events")
	}
}
