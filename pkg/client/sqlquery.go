package client

import "context"

// Query is a small builder pairing SQL text with its parameters.
type Query struct {
	sql    string
	params []string
}

// NewQuery creates a Query for the given SQL text.
func NewQuery(sql string) *Query {
	return &Query{sql: sql}
}

// Bind appends parameter values for $1, $2, ... placeholders.
func (q *Query) Bind(values ...string) *Query {
	q.params = append(q.params, values...)
	return q
}

// Execute runs the query on conn over the simple protocol.
func (q *Query) Execute(ctx context.Context, conn *Conn) (QueryResult, error) {
	return conn.ExecuteQuery(ctx, q.sql, q.params)
}

// FetchAll runs the query and returns all rows. Non-row results yield an
// empty slice.
func (q *Query) FetchAll(ctx context.Context, conn *Conn) ([]Row, error) {
	res, err := q.Execute(ctx, conn)
	if err != nil {
		return nil, err
	}
	if res.Kind() != KindRows {
		return []Row{}, nil
	}
	return res.Rows(), nil
}

// FetchOne runs the query and returns the first row, or a QueryError when
// the result has no rows.
func (q *Query) FetchOne(ctx context.Context, conn *Conn) (Row, error) {
	res, err := q.Execute(ctx, conn)
	if err != nil {
		return nil, err
	}
	row, ok := res.FirstRow()
	if !ok {
		return nil, newError(QueryError, "query returned no rows")
	}
	return row, nil
}
