// Package depgraph validates task dependency edits against the graph they
// would produce. An edge A -> B means A depends on B.
package depgraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// ErrUnknownTask is returned when an update references a task id that is
// not part of the graph.
var ErrUnknownTask = errors.New("unknown task")

// CycleError rejects a batch whose resulting graph has a cycle. Path starts
// and ends on the same task.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Reason is the short machine-readable cause of a rejection.
func (e *CycleError) Reason() string {
	return "cycle"
}

type Task struct {
	ID        string   `json:"id"`
	DependsOn []string `json:"dependsOn"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Update replaces the full dependency list of one task.
type Update struct {
	TaskID    string   `json:"taskId"`
	DependsOn []string `json:"dependsOn"`
}

// Edges flattens the dependency lists of tasks.
func Edges(tasks []Task) []Edge {
	return lo.FlatMap(tasks, func(t Task, _ int) []Edge {
		return lo.Map(t.DependsOn, func(dep string, _ int) Edge { return Edge{From: t.ID, To: dep} })
	})
}

// WouldCreateCycle reports whether the existing edges of tasks plus
// proposed contain a cycle. Edges with an unknown endpoint are ignored.
func WouldCreateCycle(tasks []Task, proposed []Edge) bool {
	return findCycle(tasks, append(Edges(tasks), proposed...)) != nil
}

// UpdateDependencies applies updates to a copy of tasks and returns the
// result. The batch is rejected as a whole with ErrUnknownTask or a
// *CycleError; tasks is never modified.
func UpdateDependencies(tasks []Task, updates []Update) ([]Task, error) {
	known := make(map[string]int, len(tasks))
	for i, t := range tasks {
		known[t.ID] = i
	}

	next := lo.Map(tasks, func(t Task, _ int) Task {
		return Task{ID: t.ID, DependsOn: slices.Clone(t.DependsOn)}
	})
	for _, u := range updates {
		idx, ok := known[u.TaskID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, u.TaskID)
		}
		for _, dep := range u.DependsOn {
			if _, ok := known[dep]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTask, dep)
			}
		}
		next[idx].DependsOn = lo.Uniq(u.DependsOn)
	}

	if path := findCycle(next, Edges(next)); path != nil {
		return nil, &CycleError{Path: path}
	}
	return next, nil
}

// findCycle runs an iterative depth-first search and returns the first
// cycle found, or nil.
func findCycle(tasks []Task, edges []Edge) []string {
	ids := lo.Map(tasks, func(t Task, _ int) string { return t.ID })
	known := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })

	adj := make(map[string][]string, len(ids))
	for _, e := range edges {
		_, fromOK := known[e.From]
		_, toOK := known[e.To]
		if fromOK && toOK {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}

	const (
		unvisited = iota
		onPath
		explored
	)
	state := make(map[string]int, len(ids))

	type frame struct {
		node string
		next int
	}

	for _, root := range ids {
		if state[root] != unvisited {
			continue
		}
		stack := []frame{{node: root}}
		state[root] = onPath
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := adj[top.node]
			if top.next >= len(children) {
				state[top.node] = explored
				stack = stack[:len(stack)-1]
				continue
			}
			child := children[top.next]
			top.next++
			switch state[child] {
			case onPath:
				path := []string{}
				start := slices.IndexFunc(stack, func(f frame) bool { return f.node == child })
				for _, f := range stack[start:] {
					path = append(path, f.node)
				}
				return append(path, child)
			case unvisited:
				state[child] = onPath
				stack = append(stack, frame{node: child})
			}
		}
	}
	return nil
}
