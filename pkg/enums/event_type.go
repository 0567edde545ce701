package enums

import "fmt"

// EventType tags a realtime domain event.
type EventType string

const (
	EventTypeMessageCreated          EventType = "message.created"
	EventTypeMessageRead             EventType = "message.read"
	EventTypeReactionAdded           EventType = "reaction.added"
	EventTypeReactionRemoved         EventType = "reaction.removed"
	EventTypePresenceUpdated         EventType = "presence.updated"
	EventTypeDraftSaved              EventType = "draft.saved"
	EventTypeTaskDependenciesUpdated EventType = "task.dependencies_updated"
	EventTypeTaskStatusChanged       EventType = "task.status_changed"
)

var validEventTypes = []EventType{
	EventTypeMessageCreated,
	EventTypeMessageRead,
	EventTypeReactionAdded,
	EventTypeReactionRemoved,
	EventTypePresenceUpdated,
	EventTypeDraftSaved,
	EventTypeTaskDependenciesUpdated,
	EventTypeTaskStatusChanged,
}

// IsValid reports whether the type is one of the modelled event kinds.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw strings into a modelled EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
