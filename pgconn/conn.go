// Package pgconn implements the Connector protocol engine (§4.4): it
// owns one TCP connection, drives the extended-query pipeline, and
// exposes a DataReader (Rows) over the results. Grounded on the
// teacher's conn.go (the pgx v1-era hand-rolled state machine) and
// pgconn/pgconn.go (startup handshake, cancellation, parameter status
// tracking).
package pgconn

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/srhinds/gopq/command"
	"github.com/srhinds/gopq/config"
	"github.com/srhinds/gopq/gopqlog"
	"github.com/srhinds/gopq/internal/bufio"
	"github.com/srhinds/gopq/pgconn/stmtcache"
	"github.com/srhinds/gopq/pgproto"
	"github.com/srhinds/gopq/pgtype"
)

// ConnectorState is the Connector's lifecycle state (§3, §4.4).
type ConnectorState int

const (
	StateClosed ConnectorState = iota
	StateConnecting
	StateReady
	StateExecuting
	StateFetching
	StateBroken
)

func (s ConnectorState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateFetching:
		return "fetching"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// TransactionStatus mirrors the byte ReadyForQuery carries (§3).
type TransactionStatus byte

const (
	TxIdle                TransactionStatus = 'I'
	TxInTransaction       TransactionStatus = 'T'
	TxInFailedTransaction TransactionStatus = 'E'
)

// NoticeListener receives NoticeResponse messages dispatched during
// execution without interrupting the flow (§4.4, §4.9).
type NoticeListener func(*Notice)

// Connector exclusively owns one socket, one ReadBuffer, one
// WriteBuffer, and the protocol state machine driving them (§3).
type Connector struct {
	mu sync.Mutex

	cfg      *config.Config
	conn     net.Conn
	rb       *bufio.ReadBuffer
	wb       *bufio.WriteBuffer
	registry *pgtype.Registry
	logger   gopqlog.Logger

	state             ConnectorState
	backendProcessID  int32
	backendSecretKey  int32
	parameterStatuses map[string]string
	txStatus          TransactionStatus

	stmtCache *stmtcache.Cache
	stmtSeq   int

	noticeListeners []NoticeListener

	busy bool // per-connector single-caller discipline (§5)
}

// NewConnector constructs a Connector in the Closed state; Open must be
// called before use. A non-nil registry overrides the default type
// handler set (§4.5); nil uses pgtype.NewRegistry().
func NewConnector(cfg *config.Config, registry *pgtype.Registry, logger gopqlog.Logger) *Connector {
	if registry == nil {
		registry = pgtype.NewRegistry()
	}
	if logger == nil {
		logger = gopqlog.Discard
	}
	c := &Connector{
		cfg:               cfg,
		registry:          registry,
		logger:            logger,
		state:             StateClosed,
		parameterStatuses: make(map[string]string),
	}
	if cfg != nil {
		c.stmtCache = stmtcache.New(stmtCacheCapacity)
	}
	return c
}

const stmtCacheCapacity = 256

func (c *Connector) State() ConnectorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connector) BackendProcessID() int32 { return c.backendProcessID }

func (c *Connector) TransactionStatus() TransactionStatus { return c.txStatus }

func (c *Connector) ParameterStatus(key string) string { return c.parameterStatuses[key] }

// OnNotice registers a callback invoked for every NoticeResponse (§4.9:
// "a registered callback list", not a single listener).
func (c *Connector) OnNotice(fn NoticeListener) {
	c.noticeListeners = append(c.noticeListeners, fn)
}

func (c *Connector) dispatchNotice(n *Notice) {
	for _, fn := range c.noticeListeners {
		fn(n)
	}
}

// acquireSingleCaller enforces §5's per-connector discipline: a
// Connector serves at most one caller at a time.
func (c *Connector) acquireSingleCaller() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrConnectorBusy
	}
	c.busy = true
	return nil
}

func (c *Connector) releaseSingleCaller() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

func (c *Connector) setState(s ConnectorState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// breakConnector transitions to Broken and closes the socket. Reachable
// from any non-Closed state on I/O or protocol error (§4.4).
func (c *Connector) breakConnector(cause error) error {
	c.mu.Lock()
	c.state = StateBroken
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.logger.Error("connector broken", "cause", cause)
	return cause
}

// Close performs an orderly Terminate and closes the socket (§3: terminal
// Closed state reached by orderly Terminate).
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateClosed {
		return nil
	}

	if state != StateBroken && c.wb != nil {
		if err := (pgproto.Terminate{}).Encode(c.wb); err == nil {
			_ = c.flush()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.state = StateClosed
	return nil
}

// deadlineFromSeconds converts a §6 "seconds; 0 = infinite" timeout into
// a context.Context, honoring an already-set deadline on parent.
func deadlineFromSeconds(parent context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, time.Duration(seconds)*time.Second)
}
