package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/pgdial/pgdial/pkg/pgwire"
)

// ErrorKind classifies a DbError.
type ErrorKind int

const (
	// ConnectionError is a transport-level failure: dial, read, write, or
	// an unexpectedly closed stream.
	ConnectionError ErrorKind = iota
	// ProtocolError is malformed framing or a failed authentication
	// exchange. A connection that produced one is unusable.
	ProtocolError
	// QueryError is a server ErrorResponse during query execution, or a
	// client-side precondition violation such as a NUL byte in a
	// parameter. The connection remains usable.
	QueryError
	// TimeoutError is a deadline expiring mid-operation.
	TimeoutError
	// OtherError covers pool exhaustion and internal failures.
	OtherError
)

func (k ErrorKind) String() string {
	switch k {
	case ConnectionError:
		return "connection error"
	case ProtocolError:
		return "protocol error"
	case QueryError:
		return "query error"
	case TimeoutError:
		return "timeout error"
	case OtherError:
		return "other database error"
	default:
		return "unknown error"
	}
}

// DbError is the error type surfaced by this package. Server errors keep
// the raw server message; wrapped causes stay reachable via errors.As and
// errors.Is.
type DbError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *DbError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DbError) Unwrap() error {
	return e.Cause
}

// ServerError returns the decoded server ErrorResponse if this error
// carries one.
func (e *DbError) ServerError() (*pgwire.PgError, bool) {
	var pgErr *pgwire.PgError
	if errors.As(e.Cause, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// IsKind reports whether err is a *DbError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var dbErr *DbError
	return errors.As(err, &dbErr) && dbErr.Kind == kind
}

func newError(kind ErrorKind, msg string) *DbError {
	return &DbError{Kind: kind, Message: msg}
}

func wrapError(kind ErrorKind, msg string, cause error) *DbError {
	if cause == nil {
		return newError(kind, msg)
	}
	// Deadline expiry outranks the operation that observed it.
	if isTimeout(cause) {
		kind = TimeoutError
	}
	return &DbError{Kind: kind, Message: msg + ": " + cause.Error(), Cause: cause}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
