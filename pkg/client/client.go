package client

import "context"

// Client owns a Config and a lazily established connection: the first
// Execute dials and performs the handshake, later calls reuse the same
// connection. The most recent result is retained on the Client.
//
// For concurrent workloads use pool.Pool instead; a Client serializes all
// queries on one connection.
type Client struct {
	cfg        Config
	conn       *Conn
	lastResult *QueryResult
}

// NewClient creates a Client from cfg without connecting.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Conn returns the live connection, dialing on first use.
func (c *Client) Conn(ctx context.Context) (*Conn, error) {
	if c.conn == nil || !c.conn.Ready() {
		conn, err := Dial(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}
	return c.conn, nil
}

// Execute runs sql with params over the simple protocol, connecting first
// if needed. Failures are also captured into LastResult as a KindError.
func (c *Client) Execute(ctx context.Context, sql string, params []string) (QueryResult, error) {
	conn, err := c.Conn(ctx)
	if err != nil {
		return c.capture(QueryResult{}, err)
	}
	res, err := conn.ExecuteQuery(ctx, sql, params)
	return c.capture(res, err)
}

// LastResult returns the result of the most recent Execute, if any.
func (c *Client) LastResult() (QueryResult, bool) {
	if c.lastResult == nil {
		return QueryResult{}, false
	}
	return *c.lastResult, true
}

// Close shuts down the connection if one was established.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	return conn.Close()
}

func (c *Client) capture(res QueryResult, err error) (QueryResult, error) {
	if err != nil {
		if dbErr, ok := err.(*DbError); ok {
			res = ErrorResult(dbErr)
		} else {
			res = ErrorResult(wrapError(OtherError, "execute", err))
		}
	}
	c.lastResult = &res
	return res, err
}
