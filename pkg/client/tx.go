package client

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// BatchQuery is one statement in a BatchExecute call.
type BatchQuery struct {
	SQL    string
	Params []string
}

// BatchExecute runs each query in order over the simple protocol and
// returns Count with the summed row counts. The first failure aborts the
// batch and is returned; earlier statements are not rolled back. Callers
// wanting atomicity wrap the batch in BeginTx/Commit.
func (c *Conn) BatchExecute(ctx context.Context, queries []BatchQuery) (QueryResult, error) {
	total := 0
	for _, q := range queries {
		res, err := c.ExecuteQuery(ctx, q.SQL, q.Params)
		if err != nil {
			return QueryResult{}, err
		}
		total += res.RowCount()
	}
	return CountResult(total), nil
}

// BeginTx starts a transaction.
func (c *Conn) BeginTx(ctx context.Context) error {
	_, err := c.ExecuteQuery(ctx, "BEGIN", nil)
	return err
}

// Commit commits the current transaction.
func (c *Conn) Commit(ctx context.Context) error {
	_, err := c.ExecuteQuery(ctx, "COMMIT", nil)
	return err
}

// Rollback rolls back the current transaction.
func (c *Conn) Rollback(ctx context.Context) error {
	_, err := c.ExecuteQuery(ctx, "ROLLBACK", nil)
	return err
}

// Prepare creates a named server-side prepared statement via PREPARE and
// returns its generated name for use with ExecutePrepared. The statement
// lives for the lifetime of this connection.
func (c *Conn) Prepare(ctx context.Context, sql string) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", wrapError(OtherError, "generate statement name", err)
	}
	name := "stmt_" + suffix
	if _, err := c.ExecuteQuery(ctx, "PREPARE "+name+" AS "+sql, nil); err != nil {
		return "", err
	}
	return name, nil
}

// ExecutePrepared runs a statement created by Prepare, quoting each
// parameter as a text literal in the EXECUTE argument list.
func (c *Conn) ExecutePrepared(ctx context.Context, name string, params []string) (QueryResult, error) {
	if err := validateParams(params); err != nil {
		return QueryResult{}, err
	}
	sql := "EXECUTE " + name
	if len(params) > 0 {
		quoted := make([]string, len(params))
		for i, p := range params {
			quoted[i] = quoteLiteral(p)
		}
		sql += fmt.Sprintf(" (%s)", strings.Join(quoted, ", "))
	}
	return c.ExecuteQuery(ctx, sql, nil)
}

func randomSuffix() (string, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
