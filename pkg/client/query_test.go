package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgdial/pgdial/pkg/pgmock"
)

func TestExecuteQuerySelect(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(sql string) pgmock.Response {
			return pgmock.Response{
				Columns: []string{"id", "name"},
				Rows: [][][]byte{
					{pgmock.Text("1"), pgmock.Text("ada")},
					{pgmock.Text("2"), nil}, // NULL name
				},
				Tag: "SELECT 2",
			}
		},
	})
	conn := dialTest(t, server, "alice", "")

	res, err := conn.ExecuteQuery(context.Background(), "SELECT id, name FROM users", nil)
	require.NoError(t, err)
	require.Equal(t, KindRows, res.Kind())
	require.Len(t, res.Rows(), 2)

	first, ok := res.FirstRow()
	require.True(t, ok)
	assert.Equal(t, Row{"id": "1", "name": "ada"}, first)

	// NULL decodes to the empty string in the text-only result model.
	assert.Equal(t, Row{"id": "2", "name": ""}, res.Rows()[1])
	assert.Equal(t, 2, res.RowCount())
}

func TestExecuteQueryEmptySelect(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			return pgmock.Response{Columns: []string{"id"}, Tag: "SELECT 0"}
		},
	})
	conn := dialTest(t, server, "alice", "")

	res, err := conn.ExecuteQuery(context.Background(), "SELECT id FROM users WHERE false", nil)
	require.NoError(t, err)

	// A SELECT that matches nothing is still a rows result, not empty.
	assert.Equal(t, KindRows, res.Kind())
	assert.Empty(t, res.Rows())
	assert.Equal(t, 0, res.RowCount())
}

func TestExecuteQueryCount(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			return pgmock.Response{Tag: "INSERT 0 3"}
		},
	})
	conn := dialTest(t, server, "alice", "")

	res, err := conn.ExecuteQuery(context.Background(),
		"INSERT INTO t VALUES (1), (2), (3)", nil)
	require.NoError(t, err)
	assert.Equal(t, KindCount, res.Kind())
	assert.Equal(t, 3, res.Count())
	assert.Equal(t, 3, res.RowCount())
}

func TestExecuteQueryEmpty(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			return pgmock.Response{Tag: "CREATE TABLE"}
		},
	})
	conn := dialTest(t, server, "alice", "")

	res, err := conn.ExecuteQuery(context.Background(), "CREATE TABLE t (id int)", nil)
	require.NoError(t, err)
	assert.Equal(t, KindEmpty, res.Kind())
}

func TestExecuteQueryInterpolation(t *testing.T) {
	var received atomic.Value
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(sql string) pgmock.Response {
			received.Store(sql)
			return pgmock.Response{Tag: "SELECT 0", Columns: []string{}}
		},
	})
	conn := dialTest(t, server, "alice", "")

	_, err := conn.ExecuteQuery(context.Background(),
		"SELECT * FROM users WHERE name = $1 AND city = $2",
		[]string{"O'Brien", "Dublin"})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT * FROM users WHERE name = 'O''Brien' AND city = 'Dublin'",
		received.Load())
}

func TestExecuteQueryMissingPlaceholder(t *testing.T) {
	var calls atomic.Int32
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			calls.Add(1)
			return pgmock.Response{Tag: "SELECT 0"}
		},
	})
	conn := dialTest(t, server, "alice", "")

	_, err := conn.ExecuteQuery(context.Background(),
		"SELECT * FROM users WHERE id = $1", []string{"1", "extra"})
	require.Error(t, err)
	assert.True(t, IsKind(err, QueryError))
	assert.ErrorContains(t, err, "$2")

	// Rejected before anything was sent; the connection stays usable.
	assert.Equal(t, int32(0), calls.Load())
	_, err = conn.ExecuteQuery(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
}

func TestExecuteQueryNulByteParam(t *testing.T) {
	var calls atomic.Int32
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			calls.Add(1)
			return pgmock.Response{Tag: "SELECT 0"}
		},
	})
	conn := dialTest(t, server, "alice", "")

	for _, run := range []func() error{
		func() error {
			_, err := conn.ExecuteQuery(context.Background(),
				"SELECT $1", []string{"evil\x00payload"})
			return err
		},
		func() error {
			_, err := conn.ExecuteQueryExtended(context.Background(),
				"SELECT $1", []string{"evil\x00payload"})
			return err
		},
	} {
		err := run()
		require.Error(t, err)
		assert.True(t, IsKind(err, QueryError))
		assert.ErrorContains(t, err, "NUL")
	}
	assert.Equal(t, int32(0), calls.Load())
	assert.True(t, conn.Ready())
}

func TestExecuteQueryExtended(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnExtended: func(sql string, params []string) pgmock.Response {
			// Runs on the server goroutine; assert, don't FailNow.
			assert.Equal(t, "INSERT INTO t VALUES ($1, $2)", sql)
			assert.Equal(t, []string{"7", "seven"}, params)
			return pgmock.Response{Tag: "INSERT 0 1"}
		},
	})
	conn := dialTest(t, server, "alice", "")

	res, err := conn.ExecuteQueryExtended(context.Background(),
		"INSERT INTO t VALUES ($1, $2)", []string{"7", "seven"})
	require.NoError(t, err)
	assert.Equal(t, KindCount, res.Kind())
	assert.Equal(t, 1, res.Count())
}

func TestExecuteQueryExtendedRows(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnExtended: func(_ string, params []string) pgmock.Response {
			return pgmock.Response{
				Columns: []string{"echo"},
				Rows:    [][][]byte{{pgmock.Text(params[0])}},
				Tag:     "SELECT 1",
			}
		},
	})
	conn := dialTest(t, server, "alice", "")

	res, err := conn.ExecuteQueryExtended(context.Background(),
		"SELECT $1 AS echo", []string{"hello"})
	require.NoError(t, err)

	row, ok := res.FirstRow()
	require.True(t, ok)
	assert.Equal(t, "hello", row["echo"])
}

func TestExecuteQueryServerError(t *testing.T) {
	fail := &pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     "42P01",
		Message:  `relation "missing" does not exist`,
	}
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(sql string) pgmock.Response {
			if sql == "SELECT * FROM missing" {
				return pgmock.Response{Error: fail}
			}
			return pgmock.Response{Tag: "SELECT 0", Columns: []string{}}
		},
	})
	conn := dialTest(t, server, "alice", "")

	_, err := conn.ExecuteQuery(context.Background(), "SELECT * FROM missing", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, QueryError))

	var dbErr *DbError
	require.ErrorAs(t, err, &dbErr)
	pgErr, ok := dbErr.ServerError()
	require.True(t, ok)
	assert.Equal(t, "42P01", pgErr.Code)

	// The cycle ended with ReadyForQuery; the same connection keeps working.
	res, err := conn.ExecuteQuery(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, KindRows, res.Kind())
	assert.Equal(t, 1, server.ConnCount())
}

func TestExecuteQueryTimeout(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			time.Sleep(500 * time.Millisecond)
			return pgmock.Response{Tag: "SELECT 0"}
		},
	})

	cfg := testConfig(server, "alice", "").WithQueryTimeout(50 * time.Millisecond)
	conn, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ExecuteQuery(context.Background(), "SELECT pg_sleep(10)", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, TimeoutError))

	// A timed-out exchange leaves the protocol state unknown.
	assert.False(t, conn.Ready())
}

func TestExecuteQueryDuplicateColumns(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			return pgmock.Response{
				Columns: []string{"v", "v"},
				Rows:    [][][]byte{{pgmock.Text("first"), pgmock.Text("second")}},
				Tag:     "SELECT 1",
			}
		},
	})
	conn := dialTest(t, server, "alice", "")

	res, err := conn.ExecuteQuery(context.Background(), "SELECT 1 AS v, 2 AS v", nil)
	require.NoError(t, err)

	row, ok := res.FirstRow()
	require.True(t, ok)
	assert.Equal(t, "second", row["v"])
}

func TestExecuteQueryRowWiderThanDescription(t *testing.T) {
	server := pgmock.NewServer(t, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			return pgmock.Response{
				Columns: []string{"a"},
				Rows:    [][][]byte{{pgmock.Text("1"), pgmock.Text("2")}},
				Tag:     "SELECT 1",
			}
		},
	})
	conn := dialTest(t, server, "alice", "")

	_, err := conn.ExecuteQuery(context.Background(), "SELECT broken", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ProtocolError))
	assert.False(t, conn.Ready())
}

func TestInterpolate(t *testing.T) {
	t.Run("in order", func(t *testing.T) {
		out, err := interpolate("a=$1 b=$2", []string{"x", "y"})
		require.NoError(t, err)
		assert.Equal(t, "a='x' b='y'", out)
	})

	t.Run("quote doubling", func(t *testing.T) {
		out, err := interpolate("$1", []string{"it's"})
		require.NoError(t, err)
		assert.Equal(t, "'it''s'", out)
	})

	t.Run("no params", func(t *testing.T) {
		out, err := interpolate("SELECT 1", nil)
		require.NoError(t, err)
		assert.Equal(t, "SELECT 1", out)
	})

	t.Run("missing placeholder", func(t *testing.T) {
		_, err := interpolate("SELECT $1", []string{"a", "b"})
		require.Error(t, err)
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindRows, classify("SELECT 1", nil, 0, false).Kind())
	assert.Equal(t, KindRows, classify("  select 1", nil, 0, false).Kind())
	assert.NotNil(t, classify("SELECT 1", nil, 0, false).Rows())
	assert.Equal(t, KindCount, classify("DELETE FROM t", nil, 4, true).Kind())
	assert.Equal(t, KindEmpty, classify("BEGIN", nil, 0, false).Kind())
}
