package events

import (
	"encoding/json"
	"testing"

	"github.com/angelmondragon/huddle-backend/pkg/enums"
	"github.com/stretchr/testify/require"
)

func TestDecodeTypedPayload(t *testing.T) {
	reg := DefaultRegistry()
	p, err := reg.Decode(enums.EventTypeReactionAdded, json.RawMessage(`{"chatId":"c1","messageId":"m1","emoji":"+1"}`))
	require.NoError(t, err)
	reaction, ok := p.(ReactionAdded)
	require.True(t, ok)
	require.Equal(t, "+1", reaction.Emoji)
	require.Equal(t, "chat:c1", RoomFor(p))
}

func TestDecodeRejectsInvalidPayload(t *testing.T) {
	reg := DefaultRegistry()
	cases := map[string]string{
		"missing field": `{"chatId":"c1","body":"hi"}`,
		"unknown field": `{"chatId":"c1","messageId":"m1","body":"hi","extra":true}`,
		"not json":      `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Decode(enums.EventTypeMessageCreated, json.RawMessage(raw))
			require.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestDecodeFallsBackToOpaque(t *testing.T) {
	reg := DefaultRegistry()
	p, err := reg.Decode("poll.voted", json.RawMessage(` {"option":2} `))
	require.NoError(t, err)
	opaque, ok := p.(Opaque)
	require.True(t, ok)
	require.Equal(t, enums.EventType("poll.voted"), opaque.EventType())
	require.Empty(t, RoomFor(p))

	out, err := json.Marshal(Event{ID: "e1", Type: opaque.Type, Payload: p, ServerTimestamp: 3})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"e1","type":"poll.voted","payload":{"option":2},"serverTimestamp":3}`, string(out))

	_, err = reg.Decode("poll.voted", json.RawMessage(`nope`))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodeRejectsMalformedTag(t *testing.T) {
	reg := DefaultRegistry()
	for _, tag := range []string{"", "Message", "message.", "a b.c"} {
		_, err := reg.Decode(enums.EventType(tag), json.RawMessage(`{}`))
		require.ErrorIs(t, err, ErrUnknownType, tag)
	}
}

func TestClientWritable(t *testing.T) {
	require.True(t, ClientWritable(enums.EventTypeMessageCreated))
	require.True(t, ClientWritable("poll.voted"))
	require.False(t, ClientWritable(enums.EventTypePresenceUpdated))
	require.False(t, ClientWritable(enums.EventTypeTaskStatusChanged))
}
