// Package exhandler translates driver failures into domain errors.
//
// Default classifies by driver error kind. The specialised handlers know
// which object a statement touched and match the server's message text
// for schema conflicts the protocol reports only as INVALID or
// ALREADY_EXISTS. Their tables are the single place to update when the
// server changes its wording; a message that no longer matches falls
// through to Default and surfaces as a generic INVALID_DATABASE_QUERY.
//
// Handlers are pure: they never retry and never touch shared state.
package exhandler

import (
	"context"
	"errors"
	"regexp"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Handler translates the terminal failure of a task.
type Handler interface {
	Handle(obj *schema.Object, err error) error
}

// Factory creates the handler for a task's target. Bound at task build time.
type Factory func(obj *schema.Object) Handler

// Of returns a Factory that always yields h.
func Of(h Handler) Factory {
	return func(*schema.Object) Handler { return h }
}

// Default maps driver error kinds to generic codes. Domain errors pass
// through; anything unrecognised becomes SERVER_INTERNAL_ERROR.
type Default struct{}

// Handle implements Handler.
func (Default) Handle(obj *schema.Object, err error) error {
	if err == nil {
		return nil
	}
	if ae, ok := apierr.As(err); ok {
		return ae
	}

	var de *driver.Error
	if !errors.As(err, &de) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return apierr.New(apierr.CodeDriverTimeout, "request on %s did not complete: %v", target(obj), err)
		}
		return apierr.Internal("unexpected failure on %s: %v", target(obj), err)
	}

	switch de.Kind {
	case driver.KindTimeout:
		return apierr.New(apierr.CodeDriverTimeout, "no response from the database for %s", target(obj))
	case driver.KindReadTimeout:
		return apierr.New(apierr.CodeDatabaseReadTimeout, "read timed out on %s: %s", target(obj), de.Message)
	case driver.KindWriteTimeout:
		return apierr.New(apierr.CodeDatabaseWriteTimeout, "write timed out on %s: %s", target(obj), de.Message)
	case driver.KindUnavailable:
		return apierr.New(apierr.CodeDatabaseUnavailable, "not enough replicas available for %s: %s", target(obj), de.Message)
	case driver.KindOverloaded:
		return apierr.New(apierr.CodeDatabaseOverloaded, "database overloaded: %s", de.Message)
	case driver.KindUnauthorized:
		return apierr.New(apierr.CodeDatabaseUnauthorized, "not authorized on %s: %s", target(obj), de.Message)
	case driver.KindAlreadyExists:
		e := apierr.New(apierr.CodeObjectAlreadyExists, "%s", de.Message)
		if de.Keyspace != "" {
			e.With("keyspace", de.Keyspace)
		}
		if de.Table != "" {
			e.With("table", de.Table)
		}
		return e
	case driver.KindInvalidQuery, driver.KindConfig:
		return apierr.New(apierr.CodeInvalidDatabaseQuery, "database rejected the statement on %s: %s", target(obj), de.Message)
	case driver.KindSyntax:
		return apierr.New(apierr.CodeDatabaseSyntaxError, "invalid CQL for %s: %s", target(obj), de.Message)
	default:
		return apierr.Internal("database error on %s: %s", target(obj), de.Message)
	}
}

func target(obj *schema.Object) string {
	if obj == nil {
		return "database"
	}
	return obj.String()
}

// rule is one row of a message table: for errors of the listed kinds
// whose message matches pattern, build returns the domain error.
type rule struct {
	kinds   []driver.ErrorKind
	pattern *regexp.Regexp
	build   func(m []string) *apierr.Error
}

// apply returns the error built by the first matching rule.
func apply(rules []rule, err error) (*apierr.Error, bool) {
	var de *driver.Error
	if !errors.As(err, &de) {
		return nil, false
	}
	for _, r := range rules {
		if !kindIn(de.Kind, r.kinds) {
			continue
		}
		if m := r.pattern.FindStringSubmatch(de.Message); m != nil {
			return r.build(m), true
		}
	}
	return nil, false
}

func kindIn(k driver.ErrorKind, kinds []driver.ErrorKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// group returns submatch i, or fallback when the pattern has no such group
// or it did not participate.
func group(m []string, i int, fallback string) string {
	if i < len(m) && m[i] != "" {
		return m[i]
	}
	return fallback
}

var (
	invalid       = []driver.ErrorKind{driver.KindInvalidQuery, driver.KindConfig}
	alreadyExists = []driver.ErrorKind{driver.KindAlreadyExists}
)
