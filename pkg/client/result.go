package client

import (
	"fmt"
	"strconv"
)

// Row is one result row: column name to text value. Values are always the
// server's text representation; NULL decodes to the empty string. When a
// query yields duplicate column names the last one wins.
type Row map[string]string

// Get returns the value for a column and whether the column exists.
func (r Row) Get(name string) (string, bool) {
	v, ok := r[name]
	return v, ok
}

// Int parses a column as an int.
func (r Row) Int(name string) (int, error) {
	v, ok := r[name]
	if !ok {
		return 0, newError(QueryError, "missing column "+name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, wrapError(QueryError, "column "+name, err)
	}
	return n, nil
}

// Int64 parses a column as an int64.
func (r Row) Int64(name string) (int64, error) {
	v, ok := r[name]
	if !ok {
		return 0, newError(QueryError, "missing column "+name)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, wrapError(QueryError, "column "+name, err)
	}
	return n, nil
}

// Float64 parses a column as a float64.
func (r Row) Float64(name string) (float64, error) {
	v, ok := r[name]
	if !ok {
		return 0, newError(QueryError, "missing column "+name)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, wrapError(QueryError, "column "+name, err)
	}
	return f, nil
}

// Bool parses a column as a bool. The server sends booleans as "t"/"f" in
// text mode; "true"/"false" are accepted too.
func (r Row) Bool(name string) (bool, error) {
	v, ok := r[name]
	if !ok {
		return false, newError(QueryError, "missing column "+name)
	}
	switch v {
	case "t", "true", "TRUE":
		return true, nil
	case "f", "false", "FALSE":
		return false, nil
	}
	return false, newError(QueryError, fmt.Sprintf("column %s: not a boolean: %q", name, v))
}

// ResultKind discriminates QueryResult variants.
type ResultKind int

const (
	// KindRows is a result with zero or more rows. A SELECT always
	// produces KindRows, even when it matches nothing.
	KindRows ResultKind = iota
	// KindCount is an affected-row count from a non-SELECT statement.
	KindCount
	// KindEmpty is a statement that produced neither rows nor a count.
	KindEmpty
	// KindError is a failed execution captured as a value, used where
	// results are stored rather than returned (Client.LastResult).
	KindError
)

// QueryResult is the decoded outcome of one query execution.
type QueryResult struct {
	kind  ResultKind
	rows  []Row
	count int
	err   *DbError
}

// RowsResult creates a KindRows result.
func RowsResult(rows []Row) QueryResult {
	return QueryResult{kind: KindRows, rows: rows}
}

// CountResult creates a KindCount result.
func CountResult(n int) QueryResult {
	return QueryResult{kind: KindCount, count: n}
}

// EmptyResult creates a KindEmpty result.
func EmptyResult() QueryResult {
	return QueryResult{kind: KindEmpty}
}

// ErrorResult creates a KindError result.
func ErrorResult(err *DbError) QueryResult {
	return QueryResult{kind: KindError, err: err}
}

// Kind returns the variant of this result.
func (q QueryResult) Kind() ResultKind {
	return q.kind
}

// Rows returns the rows for a KindRows result, nil otherwise.
func (q QueryResult) Rows() []Row {
	return q.rows
}

// Count returns the affected-row count for a KindCount result.
func (q QueryResult) Count() int {
	return q.count
}

// Err returns the captured error for a KindError result, nil otherwise.
func (q QueryResult) Err() error {
	if q.err == nil {
		return nil
	}
	return q.err
}

// RowCount returns the number of rows for KindRows, the count for
// KindCount, and zero otherwise.
func (q QueryResult) RowCount() int {
	switch q.kind {
	case KindRows:
		return len(q.rows)
	case KindCount:
		return q.count
	default:
		return 0
	}
}

// FirstRow returns the first row of a KindRows result.
func (q QueryResult) FirstRow() (Row, bool) {
	if q.kind == KindRows && len(q.rows) > 0 {
		return q.rows[0], true
	}
	return nil, false
}
