package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"
)

// ClusterConfig holds the connection settings for NewSession.
type ClusterConfig struct {
	Hosts       []string
	Keyspace    string
	Consistency string
	Username    string
	Password    string
	Timeout     time.Duration
	PageSize    int
}

// Session implements Client over a gocql session.
type Session struct {
	session *gocql.Session
	logger  *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the logger for statement tracing.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// NewSession connects to the cluster.
func NewSession(cfg ClusterConfig, opts ...SessionOption) (*Session, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("no hosts configured")
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	if cfg.Consistency != "" {
		c, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
		if err != nil {
			return nil, fmt.Errorf("consistency: %w", err)
		}
		cluster.Consistency = c
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	if cfg.PageSize > 0 {
		cluster.PageSize = cfg.PageSize
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	gs, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", Translate(err))
	}

	s := &Session{session: gs, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying session.
func (s *Session) Close() {
	if s.session != nil {
		s.session.Close()
	}
}

func (s *Session) query(ctx context.Context, stmt Statement) *gocql.Query {
	q := s.session.Query(stmt.CQL, stmt.Values...).WithContext(ctx).Idempotent(stmt.Idempotent)
	return paged(q, stmt)
}

// pager is the paging surface of *gocql.Query.
type pager[Q any] interface {
	PageSize(n int) Q
	PageState(state []byte) Q
}

// paged applies the statement's page size and page state. The page state
// is set even when empty: gocql fetches every page of a result unless one
// was given, and callers follow page states themselves.
func paged[Q pager[Q]](q Q, stmt Statement) Q {
	if stmt.PageSize > 0 {
		q = q.PageSize(stmt.PageSize)
	}
	return q.PageState(stmt.PageState)
}

// ExecuteRead runs a SELECT and returns one page of rows.
func (s *Session) ExecuteRead(ctx context.Context, stmt Statement) (*RowSet, error) {
	s.logger.Debug("execute read", "cql", stmt.CQL, "values", len(stmt.Values))

	q := s.query(ctx, stmt)
	defer q.Release()

	iter := q.Iter()
	pageState := iter.PageState()
	rows, err := iter.SliceMap()
	if closeErr := iter.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, Translate(err)
	}
	return &RowSet{Rows: rows, PageState: pageState, Applied: true}, nil
}

// ExecuteWrite runs an INSERT, UPDATE, DELETE or TRUNCATE. For
// conditional statements the [applied] column of the result sets Applied.
func (s *Session) ExecuteWrite(ctx context.Context, stmt Statement) (*RowSet, error) {
	s.logger.Debug("execute write", "cql", stmt.CQL, "values", len(stmt.Values))

	q := s.query(ctx, stmt)
	defer q.Release()

	iter := q.Iter()
	rows, err := iter.SliceMap()
	if closeErr := iter.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, Translate(err)
	}
	return &RowSet{Rows: rows, Applied: applied(rows)}, nil
}

// ExecuteSchemaChange runs a DDL statement. gocql waits for schema
// agreement before returning.
func (s *Session) ExecuteSchemaChange(ctx context.Context, stmt Statement) (*RowSet, error) {
	s.logger.Debug("execute schema change", "cql", stmt.CQL)

	q := s.query(ctx, stmt)
	defer q.Release()

	if err := q.Exec(); err != nil {
		return nil, Translate(err)
	}
	return &RowSet{Applied: true}, nil
}

func applied(rows []map[string]any) bool {
	if len(rows) == 0 {
		return true
	}
	if v, ok := rows[0]["[applied]"].(bool); ok {
		return v
	}
	return true
}

// Translate classifies a gocql error. Structured protocol error codes
// are used whenever the server sends one. Errors that are already
// classified are returned unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}

	wrap := func(kind ErrorKind) *Error {
		return &Error{Kind: kind, Message: err.Error(), Err: err}
	}

	var exists *gocql.RequestErrAlreadyExists
	if errors.As(err, &exists) {
		e := wrap(KindAlreadyExists)
		e.Keyspace = exists.Keyspace
		e.Table = exists.Table
		return e
	}

	switch {
	case errors.Is(err, gocql.ErrTimeoutNoResponse), errors.Is(err, context.DeadlineExceeded):
		return wrap(KindTimeout)
	case errors.Is(err, gocql.ErrNoConnections):
		return wrap(KindUnavailable)
	}

	var re gocql.RequestError
	if errors.As(err, &re) {
		switch re.Code() {
		case gocql.ErrCodeReadTimeout, gocql.ErrCodeReadFailure:
			return wrap(KindReadTimeout)
		case gocql.ErrCodeWriteTimeout, gocql.ErrCodeWriteFailure:
			return wrap(KindWriteTimeout)
		case gocql.ErrCodeUnavailable, gocql.ErrCodeBootstrapping:
			return wrap(KindUnavailable)
		case gocql.ErrCodeOverloaded, gocql.ErrCodeTruncate:
			return wrap(KindOverloaded)
		case gocql.ErrCodeAlreadyExists:
			return wrap(KindAlreadyExists)
		case gocql.ErrCodeInvalid:
			return wrap(KindInvalidQuery)
		case gocql.ErrCodeSyntax:
			return wrap(KindSyntax)
		case gocql.ErrCodeUnauthorized, gocql.ErrCodeCredentials:
			return wrap(KindUnauthorized)
		case gocql.ErrCodeConfig:
			return wrap(KindConfig)
		case gocql.ErrCodeServer:
			return wrap(KindServer)
		}
	}
	return wrap(KindUnknown)
}
