package task

// Observer is told about every task that reaches a terminal state,
// including tasks that were skipped or failed at build time.
// In unordered groups it is called from worker goroutines, so
// implementations must be safe for concurrent use.
type Observer interface {
	TaskFinished(groupID string, t *Task)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(groupID string, t *Task)

// TaskFinished implements Observer.
func (f ObserverFunc) TaskFinished(groupID string, t *Task) { f(groupID, t) }
