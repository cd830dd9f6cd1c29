package activity

import (
	"strings"
	"time"
)

// Verbs emitted for tracked object graphs.
const (
	VerbPropertyChanged = "tracking.property.changed"
	VerbStatusChanged   = "tracking.status.changed"
	VerbChangesAccepted = "tracking.changes.accepted"
	VerbChangesRejected = "tracking.changes.rejected"
)

// TrackingEventInput describes one notification of a tracked node. Channel,
// actor and tenant are stamped later by the Emitter.
type TrackingEventInput struct {
	ObjectType string
	ObjectID   string
	Property   string
	OldStatus  string
	NewStatus  string
	Properties []string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildPropertyChangedEvent constructs an event for a tracked member write.
func BuildPropertyChangedEvent(input TrackingEventInput) Event {
	return buildTrackingEvent(VerbPropertyChanged, input)
}

// BuildStatusChangedEvent constructs an event for a status transition.
func BuildStatusChangedEvent(input TrackingEventInput) Event {
	return buildTrackingEvent(VerbStatusChanged, input)
}

// BuildChangesAcceptedEvent constructs an event for AcceptChanges.
func BuildChangesAcceptedEvent(input TrackingEventInput) Event {
	return buildTrackingEvent(VerbChangesAccepted, input)
}

// BuildChangesRejectedEvent constructs an event for RejectChanges. A failed
// write-back is reported under MetaError.
func BuildChangesRejectedEvent(input TrackingEventInput) Event {
	return buildTrackingEvent(VerbChangesRejected, input)
}

func buildTrackingEvent(verb string, input TrackingEventInput) Event {
	metadata := cloneMetadata(input.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	if input.Property != "" {
		set(MetaProperty, input.Property)
	}
	if input.OldStatus != "" || input.NewStatus != "" {
		set(MetaOldStatus, input.OldStatus)
		set(MetaNewStatus, input.NewStatus)
	}
	if len(input.Properties) > 0 {
		set(MetaProperties, append([]string(nil), input.Properties...))
	}
	if input.Err != nil {
		set(MetaError, input.Err.Error())
	}

	return Event{
		Verb:       verb,
		ObjectType: strings.TrimSpace(input.ObjectType),
		ObjectID:   strings.TrimSpace(input.ObjectID),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
