// Package task turns a resolved command into units of work and runs them.
//
// A Task is one atomic, independently retryable operation against one
// schema object. Builders validate and number tasks; a Group bundles them
// with an execution mode; the Executor drives a group against a
// driver.Client and the Accumulator folds every outcome into one Result
// that preserves input order and partial success.
//
// Lifecycle:
//
//	UNINITIALIZED -> READY -> IN_PROGRESS -> COMPLETED | ERROR
//	READY -> SKIPPED            (fail-fast or cancelled before submission)
//	ERROR                       (BuildFailed: never submitted)
//
// Only the Executor moves a task between states once it is built.
package task
