package task

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Group is the set of tasks for one request.
//
// Ordered groups run one task at a time in position order. FailFast, which
// only applies to ordered groups, skips every task not yet started once one
// has failed. Unordered groups run all tasks concurrently.
type Group struct {
	ID       string
	Ordered  bool
	FailFast bool
	Tasks    []*Task
}

// NewGroup creates a group with a fresh time-sortable id. Tasks are kept
// in position order; duplicate positions are rejected.
func NewGroup(ordered, failFast bool, tasks ...*Task) (*Group, error) {
	sorted := slices.Clone(tasks)
	slices.SortFunc(sorted, func(a, b *Task) int { return a.position - b.position })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].position == sorted[i-1].position {
			return nil, fmt.Errorf("duplicate task position %d", sorted[i].position)
		}
	}
	return &Group{
		ID:       uuid.Must(uuid.NewV7()).String(),
		Ordered:  ordered,
		FailFast: failFast,
		Tasks:    sorted,
	}, nil
}

// ShouldFailFast reports whether a failure skips the remaining tasks.
func (g *Group) ShouldFailFast() bool {
	return g.Ordered && g.FailFast
}

// Len returns the number of tasks.
func (g *Group) Len() int { return len(g.Tasks) }
