package client

import (
	"context"
	"testing"

	"github.com/pgdial/pgdial/pkg/pgmock"
)

func benchConn(b *testing.B, cfg pgmock.Config) *Conn {
	b.Helper()
	server := pgmock.NewServer(b, cfg)
	conn, err := Dial(context.Background(), testConfig(server, "bench", "pw"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = conn.Close() })
	return conn
}

// BenchmarkSimpleQuery measures round-trip latency of a one-row SELECT over
// the simple query protocol against an in-process server, so the number is
// dominated by encode/decode cost rather than database work.
func BenchmarkSimpleQuery(b *testing.B) {
	conn := benchConn(b, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnQuery: func(string) pgmock.Response {
			return pgmock.Response{
				Columns: []string{"n"},
				Rows:    [][][]byte{{pgmock.Text("1")}},
				Tag:     "SELECT 1",
			}
		},
	})
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		if _, err := conn.ExecuteQuery(ctx, "SELECT 1 AS n", nil); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkExtendedQuery measures the Parse/Bind/Execute/Sync batch with one
// bound parameter.
func BenchmarkExtendedQuery(b *testing.B) {
	conn := benchConn(b, pgmock.Config{
		Auth: pgmock.AuthTrust,
		OnExtended: func(string, []string) pgmock.Response {
			return pgmock.Response{Tag: "INSERT 0 1"}
		},
	})
	ctx := context.Background()
	params := []string{"42"}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := conn.ExecuteQueryExtended(ctx, "INSERT INTO t VALUES ($1)", params); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkInterpolate isolates the client-side placeholder substitution
// used by the simple protocol.
func BenchmarkInterpolate(b *testing.B) {
	sql := "SELECT * FROM users WHERE name = $1 AND city = $2 AND note = $3"
	params := []string{"O'Brien", "Dublin", "a moderately long value to copy"}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := interpolate(sql, params); err != nil {
			b.Fatal(err)
		}
	}
}
