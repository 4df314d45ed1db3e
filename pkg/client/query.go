package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgdial/pgdial/pkg/pgwire"
)

// ExecuteQuery runs sql over the simple query protocol. Parameters are
// interpolated client-side: each $1, $2, ... placeholder is replaced with
// the corresponding value single-quoted, with embedded single quotes
// doubled. The server streams RowDescription/DataRow/CommandComplete and
// the call returns once ReadyForQuery arrives.
func (c *Conn) ExecuteQuery(ctx context.Context, sql string, params []string) (QueryResult, error) {
	if err := validateParams(params); err != nil {
		return QueryResult{}, err
	}
	interpolated, err := interpolate(sql, params)
	if err != nil {
		return QueryResult{}, err
	}
	return c.run(ctx, sql, "simple", func() error {
		return c.codec.WriteMessage(pgwire.MsgClientQuery, pgwire.QueryPayload(interpolated))
	})
}

// ExecuteQueryExtended runs sql over the extended query protocol:
// Parse/Bind/Execute/Sync pipelined in one write, parameters bound
// server-side in text format against the unnamed statement and portal.
// The response stream is read exactly as for the simple protocol.
func (c *Conn) ExecuteQueryExtended(ctx context.Context, sql string, params []string) (QueryResult, error) {
	if err := validateParams(params); err != nil {
		return QueryResult{}, err
	}
	return c.run(ctx, sql, "extended", func() error {
		return c.codec.WriteBatch(
			pgwire.TaggedMessage{Type: pgwire.MsgClientParse, Body: pgwire.ParsePayload("", sql)},
			pgwire.TaggedMessage{Type: pgwire.MsgClientBind, Body: pgwire.BindPayload("", "", params)},
			pgwire.TaggedMessage{Type: pgwire.MsgClientExecute, Body: pgwire.ExecutePayload("", 0)},
			pgwire.TaggedMessage{Type: pgwire.MsgClientSync, Body: nil},
		)
	})
}

// run sends one request via send and reads the response stream to
// ReadyForQuery. Exactly one request/response cycle per call; the Conn is
// exclusively owned for its duration.
func (c *Conn) run(ctx context.Context, sql, queryType string, send func() error) (QueryResult, error) {
	if !c.Ready() {
		return QueryResult{}, newError(ConnectionError, "connection is not ready for queries")
	}
	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}
	restore, err := c.applyDeadline(ctx)
	if err != nil {
		return QueryResult{}, err
	}
	defer restore()

	start := time.Now()
	result, err := c.exchange(sql, send)
	c.cfg.Metrics.RecordQuery(c.cfg.Database, queryType, time.Since(start).Seconds(), err == nil)
	if err != nil {
		return QueryResult{}, err
	}
	return result, nil
}

func (c *Conn) exchange(sql string, send func() error) (QueryResult, error) {
	if err := send(); err != nil {
		// Failed sends leave the protocol state unknown.
		c.ready = false
		return QueryResult{}, wrapError(ConnectionError, "send query", err)
	}

	var (
		columns  []string
		rows     []Row
		count    int
		hasCount bool
		srvErr   *pgwire.PgError
	)

	for {
		msg, err := c.codec.ReadMessage()
		if err != nil {
			c.ready = false
			return QueryResult{}, wrapError(ProtocolError, "read query response", err)
		}

		switch msg.Type {
		case pgwire.MsgServerRowDescription:
			columns, err = pgwire.ParseRowDescription(msg.Body)
			if err != nil {
				c.ready = false
				return QueryResult{}, wrapError(ProtocolError, "row description", err)
			}

		case pgwire.MsgServerDataRow:
			values, err := pgwire.ParseDataRow(msg.Body)
			if err != nil {
				c.ready = false
				return QueryResult{}, wrapError(ProtocolError, "data row", err)
			}
			if len(values) > len(columns) {
				c.ready = false
				return QueryResult{}, newError(ProtocolError,
					fmt.Sprintf("data row has %d columns, row description has %d", len(values), len(columns)))
			}
			row := make(Row, len(values))
			for i, v := range values {
				row[columns[i]] = v
			}
			rows = append(rows, row)

		case pgwire.MsgServerCommandComplete:
			if _, n, ok := pgwire.ParseCommandComplete(msg.Body); ok {
				count = n
				hasCount = true
			}

		case pgwire.MsgServerErrorResponse:
			// The server still finishes the cycle with ReadyForQuery, so
			// keep draining; the connection stays usable afterward.
			srvErr = pgwire.ParseErrorResponse(msg.Body)

		case pgwire.MsgServerReadyForQuery:
			c.txStatus = pgwire.ParseReadyForQuery(msg.Body)
			if srvErr != nil {
				return QueryResult{}, wrapError(QueryError, "server error", srvErr)
			}
			return classify(sql, rows, count, hasCount), nil

		case pgwire.MsgServerParameterStatus:
			// SET and configuration reloads report the new effective value.
			if name, value, err := pgwire.ParseParameterStatus(msg.Body); err == nil {
				c.serverParams.Set(name, value)
			}

		default:
			// ParseComplete, BindComplete, NoticeResponse and anything
			// else: read and discarded.
		}
	}
}

// classify maps a drained response stream to a QueryResult. SQL starting
// with SELECT (trimmed, case-insensitive) yields Rows even when empty;
// otherwise a captured count yields Count, else Empty.
func classify(sql string, rows []Row, count int, hasCount bool) QueryResult {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT") {
		if rows == nil {
			rows = []Row{}
		}
		return RowsResult(rows)
	}
	if hasCount {
		return CountResult(count)
	}
	return EmptyResult()
}

// validateParams rejects parameters containing NUL bytes before any bytes
// are sent. A NUL inside interpolated SQL or a bound text value would
// terminate a C string early on the server side.
func validateParams(params []string) error {
	for i, p := range params {
		if strings.ContainsRune(p, 0) {
			return newError(QueryError, fmt.Sprintf("parameter %d contains a NUL byte", i+1))
		}
	}
	return nil
}

// interpolate substitutes $1, $2, ... with quoted literal values,
// replacing the first occurrence of each placeholder in order. A
// placeholder absent from the SQL is an error.
func interpolate(sql string, params []string) (string, error) {
	for i, p := range params {
		placeholder := fmt.Sprintf("$%d", i+1)
		idx := strings.Index(sql, placeholder)
		if idx < 0 {
			return "", newError(QueryError, fmt.Sprintf("missing parameter %s in query", placeholder))
		}
		sql = sql[:idx] + quoteLiteral(p) + sql[idx+len(placeholder):]
	}
	return sql, nil
}
