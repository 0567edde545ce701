package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/huddle-backend/api/responses"
	"github.com/angelmondragon/huddle-backend/api/validators"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

type draftLockRequest struct {
	HolderID string `json:"holderId" validate:"required,max=128"`
}

type saveDraftRequest struct {
	HolderID        string `json:"holderId" validate:"required,max=128"`
	Body            string `json:"body"`
	ClientUpdatedAt *int64 `json:"clientUpdatedAt" validate:"required,gte=0"`
}

func draftIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "draftId"))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "draftId is required")
	}
	return id, nil
}

func GetDraft(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID, err := draftIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.GetDraft(draftID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// AcquireDraftLock answers 200 either way; acquired=false names the holder.
func AcquireDraftLock(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID, body, ok := decodeDraftLock(w, r, logg)
		if !ok {
			return
		}
		res, err := svc.AcquireDraftLock(draftID, body.HolderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func ReleaseDraftLock(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID, body, ok := decodeDraftLock(w, r, logg)
		if !ok {
			return
		}
		released, err := svc.ReleaseDraftLock(draftID, body.HolderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"released": released})
	}
}

func HeartbeatDraftLock(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draftID, body, ok := decodeDraftLock(w, r, logg)
		if !ok {
			return
		}
		extended, err := svc.HeartbeatDraftLock(draftID, body.HolderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"extended": extended})
	}
}

// SaveDraft applies a last-writer-wins save; a stale clientUpdatedAt gets 409
// with the server record in the error details.
func SaveDraft(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draftID, err := draftIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body saveDraftRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.SaveDraft(r.Context(), userID, draftID, body.HolderID, body.Body, *body.ClientUpdatedAt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ok", "record": rec})
	}
}

func decodeDraftLock(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, draftLockRequest, bool) {
	var body draftLockRequest
	draftID, err := draftIDParam(r)
	if err == nil {
		err = validators.DecodeJSONBody(r, &body)
	}
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return "", body, false
	}
	return draftID, body, true
}
