package client

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgdial/pgdial/pkg/pgwire"
)

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "connection error", ConnectionError.String())
	assert.Equal(t, "protocol error", ProtocolError.String())
	assert.Equal(t, "query error", QueryError.String())
	assert.Equal(t, "timeout error", TimeoutError.String())
	assert.Equal(t, "other database error", OtherError.String())
}

func TestIsKind(t *testing.T) {
	err := newError(QueryError, "bad")
	assert.True(t, IsKind(err, QueryError))
	assert.False(t, IsKind(err, ConnectionError))
	assert.False(t, IsKind(errors.New("plain"), QueryError))
	assert.False(t, IsKind(nil, QueryError))

	wrapped := wrapError(ConnectionError, "outer", err)
	assert.True(t, IsKind(wrapped, ConnectionError))
}

func TestWrapErrorUpgradesTimeouts(t *testing.T) {
	err := wrapError(ConnectionError, "read", context.DeadlineExceeded)
	assert.True(t, IsKind(err, TimeoutError))

	err = wrapError(ProtocolError, "read", os.ErrDeadlineExceeded)
	assert.True(t, IsKind(err, TimeoutError))

	err = wrapError(ConnectionError, "read", errors.New("refused"))
	assert.True(t, IsKind(err, ConnectionError))
}

func TestDbErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := wrapError(ConnectionError, "dial", cause)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "dial")
	assert.Contains(t, err.Error(), "root cause")
}

func TestServerError(t *testing.T) {
	pgErr := &pgwire.PgError{Code: "42601", Message: "syntax error"}
	dbErr := wrapError(QueryError, "server error", pgErr)

	got, ok := dbErr.ServerError()
	require.True(t, ok)
	assert.Equal(t, "42601", got.Code)

	plain := newError(QueryError, "no cause")
	_, ok = plain.ServerError()
	assert.False(t, ok)
}
