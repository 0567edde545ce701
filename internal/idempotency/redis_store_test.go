package idempotency

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeKV) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeKV) IdempotencyKey(scope, id string) string {
	return "hd:idempotency:" + scope + ":" + id
}

func TestRedisStoreRoundTrip(t *testing.T) {
	kv := newFakeKV()
	store := NewRedisStore(kv)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	rec := Record{Status: http.StatusCreated, Body: []byte(`{"ok":true}`), Fingerprint: "fp"}
	require.NoError(t, store.Put(ctx, "k", rec, time.Minute))
	require.Equal(t, time.Minute, kv.ttls["hd:idempotency:records:k"])

	require.NoError(t, store.Put(ctx, "k", Record{Status: http.StatusTeapot}, time.Minute))
	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, http.StatusCreated, got.Status, "first write wins")
	require.Equal(t, rec.Body, got.Body)
}

func TestRedisStoreErrors(t *testing.T) {
	kv := newFakeKV()
	store := NewRedisStore(kv)
	kv.data["hd:idempotency:records:bad"] = "{"
	_, _, err := store.Get(context.Background(), "bad")
	require.Error(t, err)

	kv.getErr = errors.New("connection refused")
	g := NewGuard(store, time.Minute)
	var calls int32
	_, _, err = g.WithKey(context.Background(), "k", 0, okOp(&calls, "x"))
	require.Error(t, err)
	require.Zero(t, calls, "lookup failure must not execute the mutation")
}
