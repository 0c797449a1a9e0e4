package pgpool

import (
	"sync"

	"github.com/srhinds/gopq/config"
	"github.com/srhinds/gopq/gopqlog"
	"github.com/srhinds/gopq/pgtype"
)

// Manager is a process-wide, concurrency-safe map from connection string
// to ConnectorPool, so repeated calls with the same connection string
// share one pool instead of each opening their own sockets (§4.7).
type Manager struct {
	mu     sync.Mutex
	pools  map[string]*ConnectorPool
	logger gopqlog.Logger
}

func NewManager(logger gopqlog.Logger) *Manager {
	if logger == nil {
		logger = gopqlog.Discard
	}
	return &Manager{pools: make(map[string]*ConnectorPool), logger: logger}
}

// Get returns the existing pool for connString, or parses connString and
// creates one.
func (m *Manager) Get(connString string) (*ConnectorPool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[connString]; ok {
		return p, nil
	}

	cfg, err := config.Parse(connString)
	if err != nil {
		return nil, err
	}

	p, err := New(cfg, pgtype.NewRegistry(), m.logger)
	if err != nil {
		return nil, err
	}
	m.pools[connString] = p
	return p, nil
}

// Clear closes and forgets every pool the manager has created, e.g. at
// process shutdown.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, p := range m.pools {
		p.Close()
		delete(m.pools, k)
	}
}
