package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
)

func TestAppendEventAndPoll(t *testing.T) {
	svc := newRealtimeService(t, 10, 5)
	logg := testLogger()

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/events",
		jsonBody(`{"type":"reaction.added","payload":{"chatId":"c1","messageId":"m1","emoji":"+1"}}`)), "u1")
	resp := httptest.NewRecorder()
	AppendEvent(svc, logg)(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	created := decodeEnvelope[map[string]any](t, resp.Body.Bytes())
	if created.Data["type"] != "reaction.added" {
		t.Fatalf("unexpected event %v", created.Data)
	}

	resp = httptest.NewRecorder()
	PollEvents(svc, logg)(resp, httptest.NewRequest(http.MethodGet, "/api/v1/events?cursor=0", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	polled := decodeEnvelope[struct {
		Events []map[string]any `json:"events"`
		Cursor int64            `json:"cursor"`
	}](t, resp.Body.Bytes())
	if len(polled.Data.Events) != 1 || polled.Data.Cursor == 0 {
		t.Fatalf("unexpected poll result %+v", polled.Data)
	}
}

func TestAppendEventRejectsServerKinds(t *testing.T) {
	svc := newRealtimeService(t, 10, 5)
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/events",
		jsonBody(`{"type":"draft.saved","payload":{"draftId":"d"}}`)), "u1")
	resp := httptest.NewRecorder()
	AppendEvent(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAppendEventRequiresUser(t *testing.T) {
	svc := newRealtimeService(t, 10, 5)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", jsonBody(`{"type":"message.read","payload":{}}`))
	resp := httptest.NewRecorder()
	AppendEvent(svc, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestPollEventsExpiredCursorIsGone(t *testing.T) {
	svc := newRealtimeService(t, 1, 5)
	logg := testLogger()
	var first int64
	for i := 0; i < 3; i++ {
		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/events",
			jsonBody(`{"type":"message.read","payload":{"chatId":"c1","messageId":"m1"}}`)), "u1")
		resp := httptest.NewRecorder()
		AppendEvent(svc, logg)(resp, req)
		ev := decodeEnvelope[struct {
			ServerTimestamp int64 `json:"serverTimestamp"`
		}](t, resp.Body.Bytes())
		if i == 0 {
			first = ev.Data.ServerTimestamp
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	q := req.URL.Query()
	q.Set("cursor", formatInt(first))
	req.URL.RawQuery = q.Encode()
	resp := httptest.NewRecorder()
	PollEvents(svc, logg)(resp, req)
	if resp.Code != http.StatusGone {
		t.Fatalf("expected 410 got %d", resp.Code)
	}
	env := decodeEnvelope[any](t, resp.Body.Bytes())
	if env.Error.Code != string(pkgerrors.CodeCursorExpired) {
		t.Fatalf("unexpected code %s", env.Error.Code)
	}
}

func TestPresenceHeartbeatAndLookup(t *testing.T) {
	svc := newRealtimeService(t, 10, 5)
	logg := testLogger()

	resp := httptest.NewRecorder()
	PresenceHeartbeat(svc, logg)(resp, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/presence/heartbeat", jsonBody(`{"status":"online"}`)), "u1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	hb := decodeEnvelope[presenceResponse](t, resp.Body.Bytes())
	if hb.Data.Status != "online" || hb.Data.ServerTimestamp == 0 {
		t.Fatalf("unexpected heartbeat %+v", hb.Data)
	}

	resp = httptest.NewRecorder()
	PresenceHeartbeat(svc, logg)(resp, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/presence/heartbeat", jsonBody(`{"status":"busy"}`)), "u1"))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	GetPresence(svc, logg)(resp, addRouteParam(httptest.NewRequest(http.MethodGet, "/api/v1/presence/u1", nil), "userId", "u1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	GetPresence(svc, logg)(resp, addRouteParam(httptest.NewRequest(http.MethodGet, "/api/v1/presence/ghost", nil), "userId", "ghost"))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	ListPresence(svc, logg)(resp, httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil))
	list := decodeEnvelope[[]presenceResponse](t, resp.Body.Bytes())
	if len(list.Data) != 1 || list.Data[0].UserID != "u1" {
		t.Fatalf("unexpected list %+v", list.Data)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	svc := newRealtimeService(t, 10, 1)
	logg := testLogger()

	enqueue := func(body string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		EnqueueOutbox(svc, logg)(resp, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/outbox", jsonBody(body)), "u1"))
		return resp
	}

	if resp := enqueue(`{"id":"a","chatId":"c1","body":"first"}`); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	resp := enqueue(`{"id":"b","chatId":"c1","body":"second"}`)
	res := decodeEnvelope[struct {
		Item    map[string]any   `json:"item"`
		Evicted []map[string]any `json:"evicted"`
	}](t, resp.Body.Bytes())
	if len(res.Data.Evicted) != 1 || res.Data.Evicted[0]["id"] != "a" {
		t.Fatalf("expected a to be evicted, got %+v", res.Data.Evicted)
	}

	if resp := enqueue(`{"chatId":"c1"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	FlushOutbox(svc, logg)(resp, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/outbox/flush", nil), "u1"))
	flushed := decodeEnvelope[struct {
		Flushed int `json:"flushed"`
	}](t, resp.Body.Bytes())
	if flushed.Data.Flushed != 1 {
		t.Fatalf("expected one flushed entry, got %d", flushed.Data.Flushed)
	}

	resp = httptest.NewRecorder()
	DequeueOutbox(svc, logg)(resp, addRouteParam(asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/outbox/b", nil), "u1"), "itemId", "b"))
	removed := decodeEnvelope[map[string]bool](t, resp.Body.Bytes())
	if removed.Data["removed"] {
		t.Fatal("flushed entry should already be gone")
	}

	resp = httptest.NewRecorder()
	ClearOutbox(svc, logg)(resp, asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/outbox", nil), "u1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestSaveDraftConflict(t *testing.T) {
	svc := newRealtimeService(t, 10, 5)
	logg := testLogger()

	save := func(body string) *httptest.ResponseRecorder {
		req := asUser(httptest.NewRequest(http.MethodPut, "/api/v1/drafts/d1", jsonBody(body)), "u1")
		resp := httptest.NewRecorder()
		SaveDraft(svc, logg)(resp, addRouteParam(req, "draftId", "d1"))
		return resp
	}

	resp := save(`{"holderId":"tab1","body":"hello","clientUpdatedAt":0}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	saved := decodeEnvelope[struct {
		Record struct {
			ServerUpdatedAt int64 `json:"serverUpdatedAt"`
		} `json:"record"`
	}](t, resp.Body.Bytes())

	resp = save(`{"holderId":"tab2","body":"stale","clientUpdatedAt":` + formatInt(saved.Data.Record.ServerUpdatedAt-1) + `}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	env := decodeEnvelope[any](t, resp.Body.Bytes())
	server, ok := env.Error.Details["server"].(map[string]any)
	if !ok || server["body"] != "hello" {
		t.Fatalf("expected server record in details, got %v", env.Error.Details)
	}

	if resp := save(`{"holderId":"tab1","body":"x"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without clientUpdatedAt, got %d", resp.Code)
	}
}

func TestDraftLocking(t *testing.T) {
	svc := newRealtimeService(t, 10, 5)
	logg := testLogger()

	lock := func(holder string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/drafts/d1/lock", jsonBody(`{"holderId":"`+holder+`"}`))
		resp := httptest.NewRecorder()
		AcquireDraftLock(svc, logg)(resp, addRouteParam(req, "draftId", "d1"))
		return resp
	}

	first := decodeEnvelope[struct {
		Acquired bool `json:"acquired"`
	}](t, lock("tab1").Body.Bytes())
	if !first.Data.Acquired {
		t.Fatal("expected first holder to acquire")
	}
	second := decodeEnvelope[struct {
		Acquired bool   `json:"acquired"`
		LockedBy string `json:"lockedBy"`
	}](t, lock("tab2").Body.Bytes())
	if second.Data.Acquired || second.Data.LockedBy != "tab1" {
		t.Fatalf("unexpected second result %+v", second.Data)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/drafts/d1/lock", jsonBody(`{"holderId":"tab1"}`))
	resp := httptest.NewRecorder()
	ReleaseDraftLock(svc, logg)(resp, addRouteParam(req, "draftId", "d1"))
	released := decodeEnvelope[map[string]bool](t, resp.Body.Bytes())
	if !released.Data["released"] {
		t.Fatal("expected release")
	}

	resp = httptest.NewRecorder()
	GetDraft(svc, logg)(resp, addRouteParam(httptest.NewRequest(http.MethodGet, "/api/v1/drafts/missing", nil), "draftId", "missing"))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
