package events

import (
	"encoding/json"

	"github.com/angelmondragon/huddle-backend/pkg/enums"
)

// Payload is the typed body of an event. Every modelled event kind has its
// own struct; unmodelled kinds decode to Opaque.
type Payload interface {
	EventType() enums.EventType
}

// Roomed payloads name the broadcast room their event belongs to.
type Roomed interface {
	RoomID() string
}

// RoomFor returns the broadcast room for p, or "" when p is not room scoped.
func RoomFor(p Payload) string {
	if r, ok := p.(Roomed); ok {
		return r.RoomID()
	}
	return ""
}

func chatRoom(chatID string) string   { return "chat:" + chatID }
func boardRoom(boardID string) string { return "board:" + boardID }

type MessageCreated struct {
	ChatID    string `json:"chatId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
	Body      string `json:"body" validate:"required,max=4000"`
}

func (MessageCreated) EventType() enums.EventType { return enums.EventTypeMessageCreated }
func (p MessageCreated) RoomID() string          { return chatRoom(p.ChatID) }

type MessageRead struct {
	ChatID    string `json:"chatId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
}

func (MessageRead) EventType() enums.EventType { return enums.EventTypeMessageRead }
func (p MessageRead) RoomID() string          { return chatRoom(p.ChatID) }

// Reaction is shared by the added and removed kinds.
type Reaction struct {
	ChatID    string `json:"chatId" validate:"required,max=128"`
	MessageID string `json:"messageId" validate:"required,max=128"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

type ReactionAdded struct{ Reaction }

func (ReactionAdded) EventType() enums.EventType { return enums.EventTypeReactionAdded }
func (p ReactionAdded) RoomID() string          { return chatRoom(p.ChatID) }

type ReactionRemoved struct{ Reaction }

func (ReactionRemoved) EventType() enums.EventType { return enums.EventTypeReactionRemoved }
func (p ReactionRemoved) RoomID() string          { return chatRoom(p.ChatID) }

type PresenceUpdated struct {
	UserID        string               `json:"userId" validate:"required"`
	Status        enums.PresenceStatus `json:"status" validate:"required,oneof=online away offline"`
	LastHeartbeat int64                `json:"lastHeartbeat"`
}

func (PresenceUpdated) EventType() enums.EventType { return enums.EventTypePresenceUpdated }
func (PresenceUpdated) RoomID() string             { return "presence" }

type DraftSaved struct {
	DraftID         string `json:"draftId" validate:"required"`
	HolderID        string `json:"holderId,omitempty"`
	ServerUpdatedAt int64  `json:"serverUpdatedAt"`
}

func (DraftSaved) EventType() enums.EventType { return enums.EventTypeDraftSaved }
func (p DraftSaved) RoomID() string          { return "draft:" + p.DraftID }

type DependencyChange struct {
	TaskID    string   `json:"taskId" validate:"required"`
	DependsOn []string `json:"dependsOn"`
}

type TaskDependenciesUpdated struct {
	BoardID string             `json:"boardId" validate:"required"`
	Updates []DependencyChange `json:"updates" validate:"required,min=1,dive"`
}

func (TaskDependenciesUpdated) EventType() enums.EventType {
	return enums.EventTypeTaskDependenciesUpdated
}
func (p TaskDependenciesUpdated) RoomID() string { return boardRoom(p.BoardID) }

type TaskStatusChanged struct {
	BoardID string           `json:"boardId" validate:"required"`
	TaskID  string           `json:"taskId" validate:"required"`
	From    enums.TaskStatus `json:"from"`
	To      enums.TaskStatus `json:"to" validate:"required"`
}

func (TaskStatusChanged) EventType() enums.EventType { return enums.EventTypeTaskStatusChanged }
func (p TaskStatusChanged) RoomID() string          { return boardRoom(p.BoardID) }

// Opaque carries a well-formed event kind the server does not model yet.
type Opaque struct {
	Type enums.EventType
	Raw  json.RawMessage
}

func (o Opaque) EventType() enums.EventType { return o.Type }

func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o.Raw) == 0 {
		return []byte("null"), nil
	}
	return o.Raw, nil
}

// ClientWritable reports whether clients may append events of type t
// directly. Kinds produced by server side state changes are reserved.
func ClientWritable(t enums.EventType) bool {
	switch t {
	case enums.EventTypePresenceUpdated,
		enums.EventTypeDraftSaved,
		enums.EventTypeTaskDependenciesUpdated,
		enums.EventTypeTaskStatusChanged:
		return false
	}
	return true
}
