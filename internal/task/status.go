package task

// Status is the lifecycle state of a task.
type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusReady         Status = "READY"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusCompleted     Status = "COMPLETED"
	StatusSkipped       Status = "SKIPPED"
	StatusError         Status = "ERROR"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusSkipped, StatusError:
		return true
	}
	return false
}
