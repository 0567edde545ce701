// Package broadcast hands appended events to the fan-out transport that
// delivers them to connected clients.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/angelmondragon/huddle-backend/internal/events"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

const EnvelopeVersion = 1

// Broadcaster delivers ev to every client in room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, ev events.Event) error
}

type ActorRef struct {
	UserID string `json:"userId"`
}

// Envelope is the stable wire shape of a broadcast event.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	Type       string          `json:"type"`
	Room       string          `json:"room"`
	OccurredAt time.Time       `json:"occurredAt"`
	ServerTS   int64           `json:"serverTimestamp"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps ev for room.
func NewEnvelope(room string, ev events.Event) (Envelope, error) {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return Envelope{}, err
	}
	env := Envelope{
		Version:    EnvelopeVersion,
		EventID:    ev.ID,
		Type:       string(ev.Type),
		Room:       room,
		OccurredAt: time.UnixMilli(ev.ServerTimestamp).UTC(),
		ServerTS:   ev.ServerTimestamp,
		Data:       data,
	}
	if ev.ActorID != "" {
		env.Actor = &ActorRef{UserID: ev.ActorID}
	}
	return env, nil
}

// LogBroadcaster only logs. It is used when no transport is configured.
type LogBroadcaster struct {
	logg *logger.Logger
}

func NewLogBroadcaster(logg *logger.Logger) *LogBroadcaster {
	return &LogBroadcaster{logg: logg}
}

func (b *LogBroadcaster) Broadcast(ctx context.Context, room string, ev events.Event) error {
	if b == nil || b.logg == nil {
		return nil
	}
	ctx = b.logg.WithFields(b.logg.WithRoom(ctx, room), map[string]any{
		"event_id":   ev.ID,
		"event_type": string(ev.Type),
		"server_ts":  ev.ServerTimestamp,
	})
	b.logg.Debug(ctx, "event broadcast")
	return nil
}
