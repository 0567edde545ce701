// Package realtime wires the in-memory realtime components together: it
// appends domain events, bridges presence heartbeats into the log, flushes
// outboxes and arbitrates draft saves, translating outcomes into typed
// errors for the HTTP layer.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/huddle-backend/internal/broadcast"
	"github.com/angelmondragon/huddle-backend/internal/drafts"
	"github.com/angelmondragon/huddle-backend/internal/events"
	"github.com/angelmondragon/huddle-backend/internal/outbox"
	"github.com/angelmondragon/huddle-backend/internal/presence"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
	"github.com/angelmondragon/huddle-backend/pkg/metrics"
)

const (
	maxBodyLength = 4000
	maxIDLength   = 128
)

type Deps struct {
	Log         *events.Log
	Registry    *events.DecoderRegistry
	Presence    *presence.Tracker
	Outbox      *outbox.Queue
	Drafts      *drafts.Coordinator
	Broadcaster broadcast.Broadcaster
	Metrics     *metrics.RealtimeMetrics
	Logger      *logger.Logger
}

type Service struct {
	log         *events.Log
	registry    *events.DecoderRegistry
	presence    *presence.Tracker
	outbox      *outbox.Queue
	drafts      *drafts.Coordinator
	broadcaster broadcast.Broadcaster
	metrics     *metrics.RealtimeMetrics
	logg        *logger.Logger

	unsubscribe func()
}

// PollResult is a page of missed events. Cursor is the value to send on the
// next poll.
type PollResult struct {
	Events []events.Event `json:"events"`
	Cursor int64          `json:"cursor"`
}

type EnqueueResult struct {
	Item    outbox.Entry   `json:"item"`
	Evicted []outbox.Entry `json:"evicted"`
}

type FlushResult struct {
	Events  []events.Event `json:"events"`
	Flushed int            `json:"flushed"`
}

func NewService(deps Deps) (*Service, error) {
	if deps.Log == nil || deps.Presence == nil || deps.Outbox == nil || deps.Drafts == nil {
		return nil, fmt.Errorf("realtime components required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Registry == nil {
		deps.Registry = events.DefaultRegistry()
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = broadcast.NewLogBroadcaster(deps.Logger)
	}
	s := &Service{
		log:         deps.Log,
		registry:    deps.Registry,
		presence:    deps.Presence,
		outbox:      deps.Outbox,
		drafts:      deps.Drafts,
		broadcaster: deps.Broadcaster,
		metrics:     deps.Metrics,
		logg:        deps.Logger,
	}
	s.unsubscribe = s.presence.Subscribe(s.onHeartbeat)
	return s, nil
}

// Close detaches the presence bridge.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Publish appends payload to the log and hands the stored event to the
// broadcaster. Broadcast failures are logged and never fail the append.
func (s *Service) Publish(ctx context.Context, payload events.Payload, actorID string) events.Event {
	ev := s.log.Append(payload, actorID)
	s.metrics.IncEventAppended(string(ev.Type))

	room := ev.Room()
	if err := s.broadcaster.Broadcast(ctx, room, ev); err != nil {
		s.metrics.IncBroadcastFailure()
		s.logg.Error(s.logg.WithRoom(ctx, room), "broadcast event", err)
	}
	return ev
}

func (s *Service) onHeartbeat(rec presence.Record) {
	s.Publish(context.Background(), events.PresenceUpdated{
		UserID:        rec.UserID,
		Status:        rec.Status,
		LastHeartbeat: rec.LastHeartbeat.UnixMilli(),
	}, rec.UserID)
}

// AppendClientEvent decodes and appends an event submitted by a client.
func (s *Service) AppendClientEvent(ctx context.Context, actorID, eventType string, raw json.RawMessage) (events.Event, error) {
	t := enums.EventType(strings.TrimSpace(eventType))
	if !events.ClientWritable(t) {
		return events.Event{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("event type %q is server generated", t))
	}
	payload, err := s.registry.Decode(t, raw)
	if err != nil {
		return events.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event")
	}
	return s.Publish(ctx, payload, actorID), nil
}

// Poll returns events newer than cursor. A cursor that predates retention
// yields CURSOR_EXPIRED so the client resyncs from a snapshot.
func (s *Service) Poll(ctx context.Context, cursor int64) (PollResult, error) {
	if cursor < 0 {
		return PollResult{}, pkgerrors.New(pkgerrors.CodeValidation, "cursor must be non-negative")
	}
	evs, err := s.log.Since(cursor)
	if errors.Is(err, events.ErrCursorExpired) {
		s.metrics.IncCursorExpired()
		oldest := s.log.Oldest()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"cursor": cursor, "oldest": oldest}), "poll cursor expired")
		return PollResult{}, pkgerrors.Wrap(pkgerrors.CodeCursorExpired, err, "cursor expired").
			WithDetails(map[string]any{"cursor": cursor, "oldest": oldest, "latest": s.log.Latest()})
	}
	if err != nil {
		return PollResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read events")
	}
	next := cursor
	if len(evs) > 0 {
		next = evs[len(evs)-1].ServerTimestamp
	}
	return PollResult{Events: evs, Cursor: next}, nil
}

func (s *Service) Heartbeat(ctx context.Context, userID, status string) (presence.Record, error) {
	parsed, err := enums.ParsePresenceStatus(strings.TrimSpace(status))
	if err != nil {
		return presence.Record{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid presence status")
	}
	rec := s.presence.Heartbeat(userID, parsed)
	s.metrics.IncHeartbeat(string(parsed))
	return rec, nil
}

func (s *Service) PresenceOf(userID string) (presence.Record, error) {
	rec, ok := s.presence.Lookup(userID)
	if !ok {
		return presence.Record{}, pkgerrors.New(pkgerrors.CodeNotFound, "no live presence for user")
	}
	return rec, nil
}

func (s *Service) PresenceAll() []presence.Record {
	return s.presence.All()
}

// SweepPresence drops expired presence records and refreshes the live gauge.
func (s *Service) SweepPresence() int {
	removed := s.presence.Sweep()
	s.metrics.SetPresenceLive(len(s.presence.All()))
	return removed
}

// Enqueue buffers an item for userID. Entries evicted by the per-user cap
// are returned so the client learns which messages were dropped.
func (s *Service) Enqueue(ctx context.Context, userID string, item outbox.Item) (EnqueueResult, error) {
	item.ChatID = strings.TrimSpace(item.ChatID)
	if item.ChatID == "" || item.Body == "" {
		return EnqueueResult{}, pkgerrors.New(pkgerrors.CodeValidation, "chatId and body are required")
	}
	if len(item.Body) > maxBodyLength {
		return EnqueueResult{}, pkgerrors.New(pkgerrors.CodeValidation, "body too long")
	}
	if len(item.ChatID) > maxIDLength || len(item.ID) > maxIDLength {
		return EnqueueResult{}, pkgerrors.Newf(pkgerrors.CodeValidation, "chatId and id must be at most %d characters", maxIDLength)
	}
	stored, evicted := s.outbox.Enqueue(userID, item)
	if len(evicted) > 0 {
		s.metrics.AddOutboxEvicted(len(evicted))
		ids := make([]string, 0, len(evicted))
		for _, e := range evicted {
			ids = append(ids, e.ID)
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"evicted_ids": ids, "capacity": s.outbox.Capacity()}), "outbox capacity reached, oldest entries evicted")
	}
	if evicted == nil {
		evicted = []outbox.Entry{}
	}
	return EnqueueResult{Item: stored, Evicted: evicted}, nil
}

func (s *Service) ListOutbox(userID string) []outbox.Entry {
	return s.outbox.All(userID)
}

func (s *Service) DequeueOutbox(userID, itemID string) bool {
	return s.outbox.Dequeue(userID, itemID)
}

func (s *Service) ClearOutbox(userID string) int {
	return s.outbox.Clear(userID)
}

// FlushOutbox appends every queued entry as a message.created event. Each
// entry is dequeued before it is published, so concurrent flushes publish
// it at most once.
func (s *Service) FlushOutbox(ctx context.Context, userID string) FlushResult {
	entries := s.outbox.All(userID)
	out := FlushResult{Events: make([]events.Event, 0, len(entries))}
	for _, entry := range entries {
		if !s.outbox.Dequeue(userID, entry.ID) {
			continue
		}
		ev := s.Publish(ctx, events.MessageCreated{
			ChatID:    entry.ChatID,
			MessageID: entry.ID,
			Body:      entry.Body,
		}, userID)
		out.Flushed++
		out.Events = append(out.Events, ev)
	}
	return out
}

func (s *Service) GetDraft(draftID string) (drafts.Record, error) {
	rec, ok := s.drafts.Get(draftID)
	if !ok {
		return drafts.Record{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "draft %s not found", draftID)
	}
	return rec, nil
}

func (s *Service) AcquireDraftLock(draftID, holderID string) (drafts.LockResult, error) {
	if err := requireHolder(draftID, holderID); err != nil {
		return drafts.LockResult{}, err
	}
	return s.drafts.AcquireLock(draftID, holderID), nil
}

func (s *Service) ReleaseDraftLock(draftID, holderID string) (bool, error) {
	if err := requireHolder(draftID, holderID); err != nil {
		return false, err
	}
	return s.drafts.ReleaseLock(draftID, holderID), nil
}

func (s *Service) HeartbeatDraftLock(draftID, holderID string) (bool, error) {
	if err := requireHolder(draftID, holderID); err != nil {
		return false, err
	}
	return s.drafts.HeartbeatLock(draftID, holderID), nil
}

// SaveDraft applies a last-writer-wins save. A conflict is returned as a
// CONFLICT error whose details carry the current server record.
func (s *Service) SaveDraft(ctx context.Context, actorID, draftID, holderID, body string, clientUpdatedAt int64) (drafts.Record, error) {
	if err := requireHolder(draftID, holderID); err != nil {
		return drafts.Record{}, err
	}
	if clientUpdatedAt < 0 {
		return drafts.Record{}, pkgerrors.New(pkgerrors.CodeValidation, "clientUpdatedAt must be non-negative")
	}

	res := s.drafts.Save(draftID, holderID, body, clientUpdatedAt)
	if res.Status == drafts.SaveStatusConflict {
		s.metrics.IncDraftConflict()
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"draft_id":          draftID,
			"client_updated_at": clientUpdatedAt,
			"server_updated_at": res.Record.ServerUpdatedAt,
		}), "draft save conflict")
		return drafts.Record{}, pkgerrors.New(pkgerrors.CodeConflict, "draft was updated by another writer").
			WithDetails(map[string]any{"status": drafts.SaveStatusConflict, "server": res.Record})
	}

	s.Publish(ctx, events.DraftSaved{
		DraftID:         draftID,
		HolderID:        holderID,
		ServerUpdatedAt: res.Record.ServerUpdatedAt,
	}, actorID)
	return res.Record, nil
}

// PruneDrafts ages out drafts untouched for longer than idle.
func (s *Service) PruneDrafts(idle time.Duration) int {
	return s.drafts.Prune(idle)
}

func requireHolder(draftID, holderID string) error {
	if strings.TrimSpace(draftID) == "" || strings.TrimSpace(holderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "draft id and holderId are required")
	}
	return nil
}
