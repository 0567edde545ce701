package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/huddle-backend/internal/quiethours"
)

type testQuietHoursService struct {
	setFn    func(ctx context.Context, userID, start, end string) (quiethours.Preference, error)
	decideFn func(ctx context.Context, userID string, at time.Time) (quiethours.Decision, error)
}

func (s *testQuietHoursService) SetPreference(ctx context.Context, userID, start, end string) (quiethours.Preference, error) {
	if s.setFn != nil {
		return s.setFn(ctx, userID, start, end)
	}
	return quiethours.Preference{Start: start, End: end}, nil
}

func (s *testQuietHoursService) Decide(ctx context.Context, userID string, at time.Time) (quiethours.Decision, error) {
	if s.decideFn != nil {
		return s.decideFn(ctx, userID, at)
	}
	return quiethours.Decision{Deliver: true}, nil
}

func TestSetQuietHours(t *testing.T) {
	req := asUser(httptest.NewRequest(http.MethodPut, "/api/v1/me/quiet-hours", jsonBody(`{"start":"22:00","end":"07:00"}`)), "u1")
	resp := httptest.NewRecorder()
	SetQuietHours(&testQuietHoursService{}, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	env := decodeEnvelope[quiethours.Preference](t, resp.Body.Bytes())
	if env.Data.Start != "22:00" || env.Data.End != "07:00" {
		t.Fatalf("unexpected preference %+v", env.Data)
	}
}

func TestNotificationDeliveryParsesAt(t *testing.T) {
	var gotAt time.Time
	svc := &testQuietHoursService{
		decideFn: func(ctx context.Context, userID string, at time.Time) (quiethours.Decision, error) {
			gotAt = at
			return quiethours.Decision{Quiet: true}, nil
		},
	}
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/v1/me/notification-delivery?at=2026-03-01T23:15:00Z", nil), "u1")
	resp := httptest.NewRecorder()
	NotificationDelivery(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !gotAt.Equal(time.Date(2026, 3, 1, 23, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected at %v", gotAt)
	}

	req = asUser(httptest.NewRequest(http.MethodGet, "/api/v1/me/notification-delivery?at=tonight", nil), "u1")
	resp = httptest.NewRecorder()
	NotificationDelivery(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
