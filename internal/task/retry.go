package task

import (
	"context"
	"time"

	"github.com/roach88/cqlbridge/internal/driver"
)

// RetryPolicy bounds how a task is retried. Only errors Retryable accepts
// are retried; everything else is terminal on first failure.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// Retryable classifies a failure as transient. Nil means nothing is.
	Retryable func(err error) bool
}

// NoRetry runs every task exactly once.
var NoRetry = RetryPolicy{}

// allows reports whether another attempt may follow the given failure.
// retries is the number of retries already made.
func (p RetryPolicy) allows(err error, retries int) bool {
	if p.Retryable == nil || retries >= p.MaxRetries {
		return false
	}
	return p.Retryable(err)
}

// Transient accepts the driver failures that may succeed when repeated:
// timeouts, unavailable replicas and an overloaded coordinator.
func Transient(err error) bool {
	switch driver.KindOf(err) {
	case driver.KindTimeout, driver.KindReadTimeout, driver.KindWriteTimeout,
		driver.KindUnavailable, driver.KindOverloaded:
		return true
	}
	return false
}

// SchemaTransient accepts the failures worth repeating for DDL: the
// coordinator timing out while schema agreement is pending.
func SchemaTransient(err error) bool {
	switch driver.KindOf(err) {
	case driver.KindTimeout, driver.KindWriteTimeout:
		return true
	}
	return false
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
