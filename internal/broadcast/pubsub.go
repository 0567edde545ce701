package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/huddle-backend/internal/events"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
	pkgpubsub "github.com/angelmondragon/huddle-backend/pkg/pubsub"
)

const defaultPublishTimeout = 10 * time.Second

// PubSubBroadcaster publishes envelopes to a Pub/Sub topic. Publish results
// are awaited in the background so callers never block on the network.
type PubSubBroadcaster struct {
	publisher pkgpubsub.MessagePublisher
	logg      *logger.Logger
	timeout   time.Duration
	onFailure func()
	wg        sync.WaitGroup
}

// NewPubSubBroadcaster builds a broadcaster. onFailure may be nil.
func NewPubSubBroadcaster(publisher pkgpubsub.MessagePublisher, logg *logger.Logger, onFailure func()) *PubSubBroadcaster {
	return &PubSubBroadcaster{
		publisher: publisher,
		logg:      logg,
		timeout:   defaultPublishTimeout,
		onFailure: onFailure,
	}
}

func (b *PubSubBroadcaster) Broadcast(ctx context.Context, room string, ev events.Event) error {
	if b == nil || b.publisher == nil {
		return fmt.Errorf("pubsub publisher not configured")
	}
	env, err := NewEnvelope(room, ev)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_type": string(ev.Type),
			"room":       room,
			"server_ts":  strconv.FormatInt(ev.ServerTimestamp, 10),
		},
	}
	if room != "" {
		msg.OrderingKey = room
	}

	result := b.publisher.Publish(context.WithoutCancel(ctx), msg)
	if result == nil {
		return fmt.Errorf("publish returned no result")
	}

	logCtx := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		waitCtx, cancel := context.WithTimeout(logCtx, b.timeout)
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			if b.onFailure != nil {
				b.onFailure()
			}
			if b.logg != nil {
				b.logg.Error(b.logg.WithField(logCtx, "event_id", ev.ID), "pubsub broadcast failed", err)
			}
		}
	}()
	return nil
}

// Wait blocks until every in-flight publish has resolved.
func (b *PubSubBroadcaster) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}
