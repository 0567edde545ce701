package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/huddle-backend/api/responses"
	"github.com/angelmondragon/huddle-backend/api/validators"
	"github.com/angelmondragon/huddle-backend/internal/outbox"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

type enqueueRequest struct {
	ID     string `json:"id" validate:"max=128"`
	ChatID string `json:"chatId" validate:"required,max=128"`
	Body   string `json:"body" validate:"required"`
}

// EnqueueOutbox buffers an unsent message. The response lists any entries
// evicted to make room.
func EnqueueOutbox(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body enqueueRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Enqueue(r.Context(), userID, outbox.Item{
			ID:     strings.TrimSpace(body.ID),
			ChatID: body.ChatID,
			Body:   body.Body,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

func ListOutbox(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": svc.ListOutbox(userID)})
	}
}

func DequeueOutbox(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
		if itemID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "itemId is required"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"removed": svc.DequeueOutbox(userID, itemID)})
	}
}

func ClearOutbox(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"cleared": svc.ClearOutbox(userID)})
	}
}

func FlushOutbox(svc *realtime.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, svc.FlushOutbox(r.Context(), userID))
	}
}
