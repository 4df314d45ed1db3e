// Package pool provides a bounded pool of authenticated connections,
// amortizing handshake cost across queries. A weighted semaphore caps the
// total of idle plus checked-out connections at the configured size;
// checkouts block when the pool is at capacity.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pgdial/pgdial/pkg/client"
)

// ErrClosed is returned by Get after the pool has been closed.
var ErrClosed = errors.New("pool is closed")

// ConnectFunc establishes one new authenticated connection. The default
// uses client.Dial with the pool's config; tests and custom transports
// substitute their own.
type ConnectFunc func(ctx context.Context) (*client.Conn, error)

// Pool is a bounded multiset of idle connections plus a counting semaphore.
// Idle connections are handed out most-recently-returned first and are not
// health-checked on checkout: a connection the server closed while idle is
// only discovered by the next query, which fails with a ConnectionError.
type Pool struct {
	cfg     client.Config
	maxSize int
	connect ConnectFunc
	sem     *semaphore.Weighted
	log     *slog.Logger

	mu     sync.Mutex
	idle   []*client.Conn
	inUse  int
	closed bool
}

// New creates a Pool that dials cfg's address on demand. maxSize must be
// at least 1.
func New(cfg client.Config, maxSize int) (*Pool, error) {
	return NewWithConnect(cfg, maxSize, func(ctx context.Context) (*client.Conn, error) {
		return client.Dial(ctx, cfg)
	})
}

// NewWithConnect creates a Pool using a caller-supplied ConnectFunc.
func NewWithConnect(cfg client.Config, maxSize int, connect ConnectFunc) (*Pool, error) {
	if maxSize < 1 {
		return nil, &client.DbError{Kind: client.OtherError, Message: "pool size must be at least 1"}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{
		cfg:     cfg,
		maxSize: maxSize,
		connect: connect,
		sem:     semaphore.NewWeighted(int64(maxSize)),
		log:     logger.With(slog.String("database", cfg.Database)),
	}, nil
}

// Get checks a connection out of the pool. It blocks while the pool is at
// capacity until a checkout is released or ctx is done. An idle connection
// is reused when present; otherwise a full handshake is performed while
// the permit is held.
func (p *Pool) Get(ctx context.Context) (*PooledConn, error) {
	start := time.Now()
	conn, err := p.acquire(ctx)
	p.cfg.Metrics.RecordPoolAcquire(p.cfg.Database, time.Since(start).Seconds(), err == nil)
	if err != nil {
		return nil, err
	}
	return &PooledConn{pool: p, conn: conn}, nil
}

func (p *Pool) acquire(ctx context.Context) (*client.Conn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, &client.DbError{Kind: client.OtherError, Message: "acquire pool permit: " + err.Error(), Cause: err}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse++
		p.publishStats()
		p.mu.Unlock()
		return conn, nil
	}
	p.inUse++
	p.publishStats()
	p.mu.Unlock()

	conn, err := p.connect(ctx)
	if err != nil {
		p.mu.Lock()
		p.inUse--
		p.publishStats()
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, err
	}
	p.log.Debug("pool opened new connection")
	return conn, nil
}

// release returns a connection to the idle set, or closes it when keep is
// false, the pool is full, or the pool is closed. The permit is released
// unconditionally.
func (p *Pool) release(conn *client.Conn, keep bool) {
	p.mu.Lock()
	p.inUse--
	if keep && !p.closed && len(p.idle) < p.maxSize {
		p.idle = append(p.idle, conn)
		conn = nil
	}
	p.publishStats()
	p.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			p.log.Debug("closing discarded connection", slog.Any("error", err))
		}
	}
	p.sem.Release(1)
}

// Stats returns the current idle and checked-out connection counts.
func (p *Pool) Stats() (idle, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), p.inUse
}

// Close closes all idle connections and fails future Gets. Checked-out
// connections are closed as they are released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.publishStats()
	p.mu.Unlock()

	for _, conn := range idle {
		_ = conn.Close()
	}
}

// publishStats pushes gauge updates; callers hold p.mu.
func (p *Pool) publishStats() {
	p.cfg.Metrics.UpdatePoolStats(p.cfg.Database, len(p.idle), p.inUse)
}

// PooledConn is a checkout: exclusive ownership of one connection plus one
// pool permit. Both go back to the pool on Release. Close is an alias for
// Release so a checkout can sit behind a defer like any other resource;
// releasing twice is a no-op.
type PooledConn struct {
	pool     *Pool
	conn     *client.Conn
	released bool
	destroy  bool
}

// Conn returns the underlying connection. It returns nil after release.
func (pc *PooledConn) Conn() *client.Conn {
	if pc.released {
		return nil
	}
	return pc.conn
}

// ExecuteQuery runs a simple-protocol query on the checked-out connection.
func (pc *PooledConn) ExecuteQuery(ctx context.Context, sql string, params []string) (client.QueryResult, error) {
	if pc.released {
		return client.QueryResult{}, &client.DbError{Kind: client.OtherError, Message: "connection already released to pool"}
	}
	return pc.conn.ExecuteQuery(ctx, sql, params)
}

// ExecuteQueryExtended runs an extended-protocol query on the checked-out
// connection.
func (pc *PooledConn) ExecuteQueryExtended(ctx context.Context, sql string, params []string) (client.QueryResult, error) {
	if pc.released {
		return client.QueryResult{}, &client.DbError{Kind: client.OtherError, Message: "connection already released to pool"}
	}
	return pc.conn.ExecuteQueryExtended(ctx, sql, params)
}

// MarkForDestroy makes the eventual Release close the connection instead of
// pooling it. Use it when the connection was abandoned mid-exchange and its
// protocol state is indeterminate.
func (pc *PooledConn) MarkForDestroy() {
	pc.destroy = true
}

// Release returns the connection and its permit to the pool. Connections
// marked for destroy, or no longer ready, are closed instead of pooled.
func (pc *PooledConn) Release() {
	if pc.released {
		return
	}
	pc.released = true
	keep := !pc.destroy && pc.conn.Ready()
	pc.pool.release(pc.conn, keep)
}

// ReleaseAndDestroy closes the connection and releases the permit.
func (pc *PooledConn) ReleaseAndDestroy() {
	pc.MarkForDestroy()
	pc.Release()
}

// Close releases the checkout. It implements io.Closer and never fails.
func (pc *PooledConn) Close() error {
	pc.Release()
	return nil
}
