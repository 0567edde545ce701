package controllers

import (
	"net/http"

	"github.com/angelmondragon/huddle-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
)

func requireUser(r *http.Request) (string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}
