package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/huddle-backend/api/middleware"
	"github.com/angelmondragon/huddle-backend/internal/drafts"
	"github.com/angelmondragon/huddle-backend/internal/events"
	"github.com/angelmondragon/huddle-backend/internal/outbox"
	"github.com/angelmondragon/huddle-backend/internal/presence"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newRealtimeService(t *testing.T, maxEvents, outboxCap int) *realtime.Service {
	t.Helper()
	logg := testLogger()
	svc, err := realtime.NewService(realtime.Deps{
		Log:      events.NewLog(maxEvents),
		Presence: presence.NewTracker(time.Minute),
		Outbox:   outbox.NewQueue(outboxCap),
		Drafts:   drafts.NewCoordinator(time.Minute),
		Logger:   logg,
	})
	if err != nil {
		t.Fatalf("realtime.NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.RouteContext(req.Context())
	if routeCtx == nil {
		routeCtx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	}
	routeCtx.URLParams.Add(key, value)
	return req
}

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

type envelope[T any] struct {
	Data  T `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope[T any](t *testing.T, body []byte) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, string(body))
	}
	return env
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
