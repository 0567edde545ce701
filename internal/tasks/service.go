// Package tasks hosts board tasks, their dependency graph and status
// workflow. Every committed change is published as a realtime event.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/huddle-backend/internal/depgraph"
	"github.com/angelmondragon/huddle-backend/internal/events"
	dbpkg "github.com/angelmondragon/huddle-backend/pkg/db"
	"github.com/angelmondragon/huddle-backend/pkg/db/models"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

const (
	ReasonCycle       = "cycle"
	ReasonUnknownTask = "unknown_task"
	ReasonBlocked     = "blocked"
	ReasonWIPLimit    = "wip_limit"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EventSink appends committed changes to the realtime log.
type EventSink interface {
	Publish(ctx context.Context, payload events.Payload, actorID string) events.Event
}

// Metrics records rejected dependency batches and transitions.
type Metrics interface {
	ObserveTaskRejection(reason string)
}

// WIPLimits caps how many tasks of a board may sit in a status. Zero
// disables the cap.
type WIPLimits map[enums.TaskStatus]int

type Service interface {
	CreateTask(ctx context.Context, input CreateTaskInput) (TaskView, error)
	ListTasks(ctx context.Context, boardID string) ([]TaskView, error)
	UpdateDependencies(ctx context.Context, input UpdateDependenciesInput) ([]TaskView, error)
	TransitionStatus(ctx context.Context, input TransitionInput) (TaskView, error)
}

type TaskView struct {
	models.Task
	DependsOn []string `json:"dependsOn"`
}

type CreateTaskInput struct {
	BoardID string
	ID      string
	Title   string
	ActorID string
}

type UpdateDependenciesInput struct {
	BoardID string
	ActorID string
	Updates []depgraph.Update
}

type TransitionInput struct {
	BoardID string
	TaskID  string
	To      enums.TaskStatus
	ActorID string
}

type service struct {
	repo    Repository
	tx      txRunner
	sink    EventSink
	metrics Metrics
	limits  WIPLimits
	now     func() time.Time
}

// NewService builds the tasks service. metrics may be nil.
func NewService(repo Repository, tx txRunner, sink EventSink, metrics Metrics, limits WIPLimits) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tasks repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		sink:    sink,
		metrics: metrics,
		limits:  limits,
		now:     time.Now,
	}, nil
}

func (s *service) CreateTask(ctx context.Context, input CreateTaskInput) (TaskView, error) {
	title := strings.TrimSpace(input.Title)
	if input.BoardID == "" || title == "" {
		return TaskView{}, pkgerrors.New(pkgerrors.CodeValidation, "board id and title are required")
	}
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()
	task := models.Task{
		ID:        id,
		BoardID:   input.BoardID,
		Title:     title,
		Status:    enums.TaskStatusTodo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &task); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return TaskView{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "task id already exists")
		}
		return TaskView{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create task")
	}
	return TaskView{Task: task, DependsOn: []string{}}, nil
}

func (s *service) ListTasks(ctx context.Context, boardID string) ([]TaskView, error) {
	views, err := s.loadBoard(ctx, s.repo, boardID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tasks")
	}
	return views, nil
}

func (s *service) loadBoard(ctx context.Context, repo Repository, boardID string) ([]TaskView, error) {
	rows, err := repo.ListByBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	deps, err := repo.ListDependencies(ctx, boardID)
	if err != nil {
		return nil, err
	}
	byTask := lo.GroupBy(deps, func(d models.TaskDependency) string { return d.TaskID })
	return lo.Map(rows, func(t models.Task, _ int) TaskView {
		dependsOn := lo.Map(byTask[t.ID], func(d models.TaskDependency, _ int) string { return d.DependsOnID })
		return TaskView{Task: t, DependsOn: dependsOn}
	}), nil
}

// UpdateDependencies validates the batch against the resulting graph and
// persists it in one transaction. Nothing is written when it is rejected.
func (s *service) UpdateDependencies(ctx context.Context, input UpdateDependenciesInput) ([]TaskView, error) {
	if input.BoardID == "" || len(input.Updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "board id and at least one update are required")
	}

	var result []TaskView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		views, err := s.loadBoard(ctx, repo, input.BoardID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load board")
		}
		graph := lo.Map(views, func(v TaskView, _ int) depgraph.Task {
			return depgraph.Task{ID: v.ID, DependsOn: v.DependsOn}
		})

		next, err := depgraph.UpdateDependencies(graph, input.Updates)
		if err != nil {
			return s.rejectDependencies(err)
		}

		byID := lo.SliceToMap(next, func(t depgraph.Task) (string, []string) { return t.ID, t.DependsOn })
		now := s.now().UTC()
		for _, u := range input.Updates {
			if err := repo.ReplaceDependencies(ctx, u.TaskID, byID[u.TaskID], now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace dependencies")
			}
		}

		result = lo.Map(views, func(v TaskView, _ int) TaskView {
			v.DependsOn = byID[v.ID]
			if v.DependsOn == nil {
				v.DependsOn = []string{}
			}
			return v
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	changes := lo.Map(input.Updates, func(u depgraph.Update, _ int) events.DependencyChange {
		return events.DependencyChange{TaskID: u.TaskID, DependsOn: lo.Uniq(u.DependsOn)}
	})
	s.sink.Publish(ctx, events.TaskDependenciesUpdated{BoardID: input.BoardID, Updates: changes}, input.ActorID)
	return result, nil
}

func (s *service) rejectDependencies(err error) error {
	var cycle *depgraph.CycleError
	switch {
	case errors.As(err, &cycle):
		s.observe(ReasonCycle)
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "dependency update would create a cycle").
			WithDetails(map[string]any{"reason": ReasonCycle, "path": cycle.Path})
	case errors.Is(err, depgraph.ErrUnknownTask):
		s.observe(ReasonUnknownTask)
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "dependency update references an unknown task")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "validate dependencies")
	}
}

// TransitionStatus moves a task through the workflow. A task is blocked
// while any dependency is not done, and a blocked task may only sit in
// todo. Statuses with a WIP limit refuse tasks once the limit is reached.
func (s *service) TransitionStatus(ctx context.Context, input TransitionInput) (TaskView, error) {
	if !input.To.IsValid() {
		return TaskView{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid task status %q", input.To))
	}

	var (
		view    TaskView
		from    enums.TaskStatus
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		views, err := s.loadBoard(ctx, repo, input.BoardID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load board")
		}
		current, ok := lo.Find(views, func(v TaskView) bool { return v.ID == input.TaskID })
		if !ok {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "task %s not found on board %s", input.TaskID, input.BoardID)
		}
		from = current.Status
		view = current
		if from == input.To {
			return nil
		}

		if input.To != enums.TaskStatusTodo {
			statusByID := lo.SliceToMap(views, func(v TaskView) (string, enums.TaskStatus) { return v.ID, v.Status })
			blockers := lo.Filter(current.DependsOn, func(dep string, _ int) bool {
				return statusByID[dep] != enums.TaskStatusDone
			})
			if len(blockers) > 0 {
				s.observe(ReasonBlocked)
				return pkgerrors.New(pkgerrors.CodeStateConflict, "task is blocked by unfinished dependencies").
					WithDetails(map[string]any{"reason": ReasonBlocked, "blockedBy": blockers})
			}
		}

		if limit := s.limits[input.To]; limit > 0 {
			count, err := repo.CountByStatus(ctx, input.BoardID, input.To)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count tasks")
			}
			if count >= int64(limit) {
				s.observe(ReasonWIPLimit)
				return pkgerrors.New(pkgerrors.CodeStateConflict, "work in progress limit reached").
					WithDetails(map[string]any{"reason": ReasonWIPLimit, "status": input.To, "limit": limit})
			}
		}

		now := s.now().UTC()
		if err := repo.UpdateStatus(ctx, input.TaskID, input.To, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update task status")
		}
		view.Status = input.To
		view.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return TaskView{}, err
	}

	if changed {
		s.sink.Publish(ctx, events.TaskStatusChanged{
			BoardID: input.BoardID,
			TaskID:  input.TaskID,
			From:    from,
			To:      input.To,
		}, input.ActorID)
	}
	return view, nil
}

func (s *service) observe(reason string) {
	if s.metrics != nil {
		s.metrics.ObserveTaskRejection(reason)
	}
}
