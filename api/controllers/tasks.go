package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/huddle-backend/api/responses"
	"github.com/angelmondragon/huddle-backend/api/validators"
	"github.com/angelmondragon/huddle-backend/internal/depgraph"
	"github.com/angelmondragon/huddle-backend/internal/tasks"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

const maxTaskTitle = 200

type createTaskRequest struct {
	ID    string `json:"id" validate:"max=128"`
	Title string `json:"title" validate:"required"`
}

type dependencyUpdateRequest struct {
	TaskID    string   `json:"taskId" validate:"required"`
	DependsOn []string `json:"dependsOn" validate:"dive,required"`
}

type updateDependenciesRequest struct {
	Updates []dependencyUpdateRequest `json:"updates" validate:"required,min=1,dive"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=todo in_progress review done"`
}

func boardIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "boardId"))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "boardId is required")
	}
	return id, nil
}

func CreateTask(svc tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tasks service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		boardID, err := boardIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createTaskRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.CreateTask(r.Context(), tasks.CreateTaskInput{
			BoardID: boardID,
			ID:      strings.TrimSpace(body.ID),
			Title:   validators.SanitizeString(body.Title, maxTaskTitle),
			ActorID: userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

func ListTasks(svc tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tasks service unavailable"))
			return
		}
		boardID, err := boardIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views, err := svc.ListTasks(r.Context(), boardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"tasks": views})
	}
}

// UpdateDependencies applies a batch of dependency replacements. Cycles and
// unknown tasks reject the whole batch.
func UpdateDependencies(svc tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tasks service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		boardID, err := boardIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateDependenciesRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updates := make([]depgraph.Update, 0, len(body.Updates))
		for _, u := range body.Updates {
			deps := u.DependsOn
			if deps == nil {
				deps = []string{}
			}
			updates = append(updates, depgraph.Update{TaskID: u.TaskID, DependsOn: deps})
		}
		views, err := svc.UpdateDependencies(r.Context(), tasks.UpdateDependenciesInput{
			BoardID: boardID,
			ActorID: userID,
			Updates: updates,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"tasks": views})
	}
}

func TransitionTaskStatus(svc tasks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tasks service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		boardID, err := boardIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		taskID := strings.TrimSpace(chi.URLParam(r, "taskId"))
		if taskID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "taskId is required"))
			return
		}
		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseTaskStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		view, err := svc.TransitionStatus(r.Context(), tasks.TransitionInput{
			BoardID: boardID,
			TaskID:  taskID,
			To:      status,
			ActorID: userID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
