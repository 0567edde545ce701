package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/angelmondragon/huddle-backend/pkg/enums"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownType is returned for event type tags that are not well formed.
	ErrUnknownType = errors.New("event type tag is not well formed")
	// ErrInvalidPayload wraps decode and structural validation failures.
	ErrInvalidPayload = errors.New("invalid event payload")
)

var typeTagPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

type decoderFunc func(raw json.RawMessage) (Payload, error)

// DecoderRegistry maps event type tags to payload decoders.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[enums.EventType]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[enums.EventType]decoderFunc)}
}

// DefaultRegistry has a decoder for every modelled event kind.
func DefaultRegistry() *DecoderRegistry {
	v := validator.New(validator.WithRequiredStructEnabled())
	r := NewDecoderRegistry()
	r.Register(enums.EventTypeMessageCreated, decodeInto[MessageCreated](v))
	r.Register(enums.EventTypeMessageRead, decodeInto[MessageRead](v))
	r.Register(enums.EventTypeReactionAdded, decodeInto[ReactionAdded](v))
	r.Register(enums.EventTypeReactionRemoved, decodeInto[ReactionRemoved](v))
	r.Register(enums.EventTypePresenceUpdated, decodeInto[PresenceUpdated](v))
	r.Register(enums.EventTypeDraftSaved, decodeInto[DraftSaved](v))
	r.Register(enums.EventTypeTaskDependenciesUpdated, decodeInto[TaskDependenciesUpdated](v))
	r.Register(enums.EventTypeTaskStatusChanged, decodeInto[TaskStatusChanged](v))
	return r
}

func (r *DecoderRegistry) Register(eventType enums.EventType, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[eventType] = decoder
}

// Decode turns raw JSON into the typed payload for eventType. Well formed
// but unregistered tags decode to Opaque as long as raw is valid JSON.
func (r *DecoderRegistry) Decode(eventType enums.EventType, raw json.RawMessage) (Payload, error) {
	if !typeTagPattern.MatchString(string(eventType)) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, eventType)
	}
	r.mtx.RLock()
	decoder, ok := r.registry[eventType]
	r.mtx.RUnlock()
	if ok {
		return decoder(raw)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: %s payload must be valid json", ErrInvalidPayload, eventType)
	}
	return Opaque{Type: eventType, Raw: append(json.RawMessage(nil), trimmed...)}, nil
}

func decodeInto[T Payload](v *validator.Validate) decoderFunc {
	return func(raw json.RawMessage) (Payload, error) {
		var payload T
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if err := v.Struct(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return payload, nil
	}
}
