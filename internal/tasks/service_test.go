package tasks

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/angelmondragon/huddle-backend/internal/depgraph"
	"github.com/angelmondragon/huddle-backend/internal/events"
	"github.com/angelmondragon/huddle-backend/pkg/config"
	dbpkg "github.com/angelmondragon/huddle-backend/pkg/db"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []events.Payload
}

func (s *recordingSink) Publish(_ context.Context, payload events.Payload, actorID string) events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return events.Event{Type: payload.EventType(), Payload: payload, ActorID: actorID}
}

type countingMetrics struct {
	reasons []string
}

func (m *countingMetrics) ObserveTaskRejection(reason string) {
	m.reasons = append(m.reasons, reason)
}

type fixture struct {
	svc     Service
	sink    *recordingSink
	metrics *countingMetrics
}

func setupTasks(t *testing.T, limits WIPLimits) fixture {
	t.Helper()
	ctx := context.Background()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	client, err := dbpkg.New(ctx, config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    "file:" + name + "?mode=memory&cache=shared",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.RunEmbedded(ctx, sqlDB, client.Dialect(), "up"))

	sink := &recordingSink{}
	metrics := &countingMetrics{}
	svc, err := NewService(NewRepository(client.DB()), client, sink, metrics, limits)
	require.NoError(t, err)
	return fixture{svc: svc, sink: sink, metrics: metrics}
}

func (f fixture) create(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.svc.CreateTask(context.Background(), CreateTaskInput{BoardID: "b1", ID: id, Title: "task " + id})
		require.NoError(t, err)
	}
}

func TestCreateAndListTasks(t *testing.T) {
	f := setupTasks(t, nil)
	f.create(t, "A", "B")

	_, err := f.svc.CreateTask(context.Background(), CreateTaskInput{BoardID: "b1", ID: "A", Title: "dup"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.CreateTask(context.Background(), CreateTaskInput{BoardID: "b1", Title: "  "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	views, err := f.svc.ListTasks(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, enums.TaskStatusTodo, views[0].Status)
	assert.Empty(t, views[0].DependsOn)

	other, err := f.svc.ListTasks(context.Background(), "b2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestUpdateDependenciesRejectsCycleAtomically(t *testing.T) {
	f := setupTasks(t, nil)
	f.create(t, "A", "B", "C")
	ctx := context.Background()

	_, err := f.svc.UpdateDependencies(ctx, UpdateDependenciesInput{BoardID: "b1", ActorID: "u1", Updates: []depgraph.Update{
		{TaskID: "A", DependsOn: []string{"B"}},
	}})
	require.NoError(t, err)

	_, err = f.svc.UpdateDependencies(ctx, UpdateDependenciesInput{BoardID: "b1", ActorID: "u1", Updates: []depgraph.Update{
		{TaskID: "B", DependsOn: []string{"C"}},
		{TaskID: "C", DependsOn: []string{"A"}},
	}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, ReasonCycle, details["reason"])

	views, err := f.svc.ListTasks(ctx, "b1")
	require.NoError(t, err)
	deps := map[string][]string{}
	for _, v := range views {
		deps[v.ID] = v.DependsOn
	}
	require.Equal(t, []string{"B"}, deps["A"])
	require.Empty(t, deps["B"], "rejected batch leaves no partial edges")
	require.Empty(t, deps["C"])

	updated, err := f.svc.UpdateDependencies(ctx, UpdateDependenciesInput{BoardID: "b1", ActorID: "u1", Updates: []depgraph.Update{
		{TaskID: "B", DependsOn: []string{"C"}},
	}})
	require.NoError(t, err)
	require.Len(t, updated, 3)

	require.Len(t, f.sink.payloads, 2, "only committed batches publish")
	published, ok := f.sink.payloads[1].(events.TaskDependenciesUpdated)
	require.True(t, ok)
	require.Equal(t, "board:b1", published.RoomID())
	require.Equal(t, []string{ReasonCycle}, f.metrics.reasons)
}

func TestUpdateDependenciesUnknownTask(t *testing.T) {
	f := setupTasks(t, nil)
	f.create(t, "A")
	_, err := f.svc.UpdateDependencies(context.Background(), UpdateDependenciesInput{BoardID: "b1", Updates: []depgraph.Update{
		{TaskID: "A", DependsOn: []string{"elsewhere"}},
	}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Equal(t, []string{ReasonUnknownTask}, f.metrics.reasons)
}

func TestTransitionBlockedByDependencies(t *testing.T) {
	f := setupTasks(t, nil)
	f.create(t, "A", "B")
	ctx := context.Background()
	_, err := f.svc.UpdateDependencies(ctx, UpdateDependenciesInput{BoardID: "b1", Updates: []depgraph.Update{
		{TaskID: "A", DependsOn: []string{"B"}},
	}})
	require.NoError(t, err)

	_, err = f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "A", To: enums.TaskStatusInProgress})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "B", To: enums.TaskStatusDone})
	require.NoError(t, err)

	view, err := f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "A", To: enums.TaskStatusInProgress, ActorID: "u1"})
	require.NoError(t, err)
	require.Equal(t, enums.TaskStatusInProgress, view.Status)

	last := f.sink.payloads[len(f.sink.payloads)-1].(events.TaskStatusChanged)
	require.Equal(t, enums.TaskStatusTodo, last.From)
	require.Equal(t, enums.TaskStatusInProgress, last.To)
	require.Equal(t, []string{ReasonBlocked}, f.metrics.reasons)
}

func TestTransitionRespectsWIPLimit(t *testing.T) {
	f := setupTasks(t, WIPLimits{enums.TaskStatusInProgress: 1})
	f.create(t, "A", "B")
	ctx := context.Background()

	_, err := f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "A", To: enums.TaskStatusInProgress})
	require.NoError(t, err)

	published := len(f.sink.payloads)
	_, err = f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "A", To: enums.TaskStatusInProgress})
	require.NoError(t, err, "no-op transition does not count against the limit")
	require.Len(t, f.sink.payloads, published, "no-op transition publishes nothing")

	_, err = f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "B", To: enums.TaskStatusInProgress})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "missing", To: enums.TaskStatusDone})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.TransitionStatus(ctx, TransitionInput{BoardID: "b1", TaskID: "A", To: "archived"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
