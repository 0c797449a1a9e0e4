// Package pgpool implements the connection pool (§4.7): ConnectorPool
// hands out ready Connectors to callers and takes them back, reusing idle
// connections LIFO and bounding both pool size and waiter queueing.
// Grounded on the teacher's pgxpool.Pool, which wraps the same
// github.com/jackc/puddle/v2 generic resource pool this package uses as
// its underlying engine; conn_pool.go's hand-rolled mutex/slice pool
// supplied the higher-level Allocate/Release/min-size semantics layered
// on top of it.
package pgpool

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/srhinds/gopq/config"
	"github.com/srhinds/gopq/gopqlog"
	"github.com/srhinds/gopq/pgconn"
	"github.com/srhinds/gopq/pgtype"
)

// ConnectorPool bounds a set of Connectors to one (host, database, user)
// triple, per the connection string it was built from.
type ConnectorPool struct {
	cfg      *config.Config
	registry *pgtype.Registry
	logger   gopqlog.Logger

	pool *puddle.Pool[*pgconn.Connector]

	mu      sync.Mutex
	closed  bool
	minWarm bool
}

// New builds a ConnectorPool for cfg. It does not open any connections
// until the first Allocate (or the background min-size warmup, started
// by WarmUp).
func New(cfg *config.Config, registry *pgtype.Registry, logger gopqlog.Logger) (*ConnectorPool, error) {
	if cfg.MinPoolSize > cfg.MaxPoolSize {
		return nil, config.ErrInvalidConfiguration
	}
	if logger == nil {
		logger = gopqlog.Discard
	}

	p := &ConnectorPool{cfg: cfg, registry: registry, logger: logger}

	constructor := func(ctx context.Context) (*pgconn.Connector, error) {
		conn := pgconn.NewConnector(cfg, registry, logger)
		if err := conn.Open(ctx); err != nil {
			return nil, err
		}
		return conn, nil
	}
	destructor := func(conn *pgconn.Connector) {
		_ = conn.Close(context.Background())
	}

	puddlePool, err := puddle.NewPool(&puddle.Config[*pgconn.Connector]{
		Constructor: constructor,
		Destructor:  destructor,
		MaxSize:     int32(cfg.MaxPoolSize),
	})
	if err != nil {
		return nil, err
	}
	p.pool = puddlePool
	return p, nil
}

// WarmUp eagerly opens connections up to MinPoolSize in the background,
// per §4.7's "min pool size is reached eagerly" invariant. It returns
// immediately; failures are logged, not returned, since the caller's
// first real Allocate will retry anyway.
func (p *ConnectorPool) WarmUp(ctx context.Context) {
	p.mu.Lock()
	if p.minWarm || p.cfg.MinPoolSize == 0 {
		p.mu.Unlock()
		return
	}
	p.minWarm = true
	p.mu.Unlock()

	go func() {
		for i := 0; i < p.cfg.MinPoolSize; i++ {
			res, err := p.pool.CreateResource(ctx)
			if err != nil {
				p.logger.Warn("pool warmup failed", "error", err)
				return
			}
			res.Release()
		}
	}()
}

// Allocate acquires a Connector, preferring LIFO reuse of an idle one,
// bounded by timeout (seconds; 0 = the connector's own Timeout default).
// Returns ErrPoolExhausted if MaxPoolSize is already allocated and no
// waiter slot frees up before the deadline (§4.7).
func (p *ConnectorPool) Allocate(ctx context.Context, timeoutSeconds int) (*Connector, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	seconds := timeoutSeconds
	if seconds <= 0 {
		seconds = p.cfg.Timeout
	}
	var cancel context.CancelFunc
	if seconds > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
		defer cancel()
	}

	res, err := p.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrPoolExhausted
		}
		return nil, err
	}

	conn := res.Value()
	if conn.State() == pgconn.StateBroken {
		res.Destroy()
		return p.Allocate(ctx, timeoutSeconds)
	}

	return &Connector{conn: conn, res: res, pool: p}, nil
}

// release returns a Connector's underlying resource to puddle: reset and
// returned to the idle list on success, destroyed (closing the socket)
// if Reset fails or the connector is Broken.
func (p *ConnectorPool) release(c *Connector) {
	if c.conn.State() == pgconn.StateBroken {
		c.res.Destroy()
		return
	}
	if err := c.conn.Reset(context.Background()); err != nil {
		c.res.Destroy()
		return
	}
	c.res.Release()
}

// Close shuts down the pool, closing every idle and acquired Connector
// once it's returned. New Allocate calls fail with ErrPoolClosed.
func (p *ConnectorPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.pool.Close()
}

// Stat is a point-in-time snapshot of the pool's bookkeeping, wrapping
// puddle.Stat (SPEC_FULL.md §4.9).
type Stat struct {
	TotalConnectors    int32
	AcquiredConnectors int32
	IdleConnectors     int32
	MaxConnectors      int32
	EmptyAcquireCount  int64
	AcquireCount       int64
	AcquireDuration    time.Duration
}

func (p *ConnectorPool) Stat() Stat {
	s := p.pool.Stat()
	return Stat{
		TotalConnectors:    s.TotalResources(),
		AcquiredConnectors: s.AcquiredResources(),
		IdleConnectors:     s.IdleResources(),
		MaxConnectors:      s.MaxResources(),
		EmptyAcquireCount:  s.EmptyAcquireCount(),
		AcquireCount:       s.AcquireCount(),
		AcquireDuration:    s.AcquireDuration(),
	}
}

// Connector is a borrowed handle into the pool: the embedded
// *pgconn.Connector plus the bookkeeping Release needs to hand the
// underlying resource back to puddle.
type Connector struct {
	conn *pgconn.Connector
	res  *puddle.Resource[*pgconn.Connector]
	pool *ConnectorPool
}

// Unwrap returns the underlying Connector for direct use (Execute,
// QuerySimple, Prepare, ...).
func (c *Connector) Unwrap() *pgconn.Connector { return c.conn }

// Release returns the Connector to its pool (§4.7: "hand-off directly to
// waiters" is puddle's job once Release/Destroy runs).
func (c *Connector) Release() {
	c.pool.release(c)
}
