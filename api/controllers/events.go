package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/huddle-backend/api/responses"
	"github.com/angelmondragon/huddle-backend/api/validators"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

type appendEventRequest struct {
	Type    string          `json:"type" validate:"required,max=64"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// AppendEvent stores a client submitted chat event and returns it with its
// server timestamp.
func AppendEvent(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body appendEventRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ev, err := svc.AppendClientEvent(r.Context(), userID, body.Type, body.Payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ev)
	}
}

// PollEvents returns events newer than ?cursor. An expired cursor answers 410.
func PollEvents(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cursor, err := validators.ParseQueryInt64(r, "cursor", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Poll(r.Context(), cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}
