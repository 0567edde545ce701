package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/huddle-backend/api/responses"
	"github.com/angelmondragon/huddle-backend/api/validators"
	"github.com/angelmondragon/huddle-backend/internal/presence"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

type heartbeatRequest struct {
	Status string `json:"status" validate:"required,oneof=online away offline"`
}

type presenceResponse struct {
	UserID          string               `json:"userId"`
	Status          enums.PresenceStatus `json:"status"`
	ServerTimestamp int64                `json:"serverTimestamp"`
}

func toPresenceResponse(rec presence.Record) presenceResponse {
	return presenceResponse{
		UserID:          rec.UserID,
		Status:          rec.Status,
		ServerTimestamp: rec.LastHeartbeat.UnixMilli(),
	}
}

func PresenceHeartbeat(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body heartbeatRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.Heartbeat(r.Context(), userID, body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPresenceResponse(rec))
	}
}

func ListPresence(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := svc.PresenceAll()
		out := make([]presenceResponse, 0, len(records))
		for _, rec := range records {
			out = append(out, toPresenceResponse(rec))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetPresence(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(chi.URLParam(r, "userId"))
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "userId is required"))
			return
		}
		rec, err := svc.PresenceOf(userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPresenceResponse(rec))
	}
}
