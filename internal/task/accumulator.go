package task

import (
	"maps"
	"slices"

	"github.com/roach88/cqlbridge/internal/apierr"
)

// ItemResult is the fate of one task.
type ItemResult struct {
	Position int
	Kind     string
	Status   Status
	Error    *apierr.Error
	Outcome  Outcome
	Attempts int
}

// Result is the accumulated outcome of a group.
type Result struct {
	GroupID string

	// Items are in position order, one per task.
	Items []ItemResult

	// Warnings from the where-clause analysis, first occurrence order.
	Warnings []string
}

// Failed returns the items that ended in ERROR.
func (r *Result) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Status == StatusError {
			out = append(out, it)
		}
	}
	return out
}

// Completed returns the number of items that ended in COMPLETED.
func (r *Result) Completed() int {
	n := 0
	for _, it := range r.Items {
		if it.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// Item returns the result at position.
func (r *Result) Item(position int) (ItemResult, bool) {
	i, ok := slices.BinarySearchFunc(r.Items, position, func(it ItemResult, p int) int { return it.Position - p })
	if !ok {
		return ItemResult{}, false
	}
	return r.Items[i], true
}

// Totals sums the counters of every item, failed ones included.
// Deleted stays -1 if any item could not count its deletions.
func (r *Result) Totals() Outcome {
	var sum Outcome
	unknownDeleted := false
	for _, it := range r.Items {
		o := it.Outcome
		sum.Matched += o.Matched
		sum.Modified += o.Modified
		sum.Count += o.Count
		sum.MoreData = sum.MoreData || o.MoreData
		if o.Deleted < 0 {
			unknownDeleted = true
		} else {
			sum.Deleted += o.Deleted
		}
	}
	if unknownDeleted {
		sum.Deleted = -1
	}
	return sum
}

// Accumulator folds terminal tasks into a Result keyed by position.
// It never fails because a task failed; it fails only when folding is
// impossible, which means the executor misbehaved.
//
// Not safe for concurrent use.
type Accumulator struct {
	groupID  string
	items    map[int]ItemResult
	warnings map[int][]string
}

// NewAccumulator creates an empty accumulator for a group.
func NewAccumulator(groupID string) *Accumulator {
	return &Accumulator{
		groupID:  groupID,
		items:    make(map[int]ItemResult),
		warnings: make(map[int][]string),
	}
}

// Fold records a terminal task.
func (a *Accumulator) Fold(t *Task) error {
	if t == nil {
		return apierr.Internal("fold of nil task in group %s", a.groupID)
	}
	if !t.status.Terminal() {
		return apierr.Internal("fold of %s in state %s", t, t.status)
	}
	if _, dup := a.items[t.position]; dup {
		return apierr.Internal("duplicate position %d in group %s", t.position, a.groupID)
	}
	if t.status == StatusError && t.err == nil {
		return apierr.Internal("%s failed without an error", t)
	}

	a.items[t.position] = ItemResult{
		Position: t.position,
		Kind:     t.Kind(),
		Status:   t.status,
		Error:    t.err,
		Outcome:  t.outcome,
		Attempts: t.attempts,
	}
	a.warnings[t.position] = t.analysis.Warnings
	return nil
}

// Result returns the accumulated result.
func (a *Accumulator) Result() *Result {
	r := &Result{GroupID: a.groupID}
	seen := make(map[string]bool)
	for _, pos := range slices.Sorted(maps.Keys(a.items)) {
		r.Items = append(r.Items, a.items[pos])
		for _, w := range a.warnings[pos] {
			if !seen[w] {
				seen[w] = true
				r.Warnings = append(r.Warnings, w)
			}
		}
	}
	return r
}
