package pgpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srhinds/gopq/config"
)

func TestNewRejectsMinGreaterThanMax(t *testing.T) {
	cfg := &config.Config{MinPoolSize: 10, MaxPoolSize: 5}
	_, err := New(cfg, nil, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfiguration)
}

func TestManagerGetSharesPoolPerConnectionString(t *testing.T) {
	m := NewManager(nil)
	defer m.Clear()

	connString := "host=localhost;port=5432;minpoolsize=0;maxpoolsize=3"
	p1, err := m.Get(connString)
	require.NoError(t, err)
	p2, err := m.Get(connString)
	require.NoError(t, err)
	require.Same(t, p1, p2)
}

func TestManagerGetRejectsInvalidPoolSizing(t *testing.T) {
	m := NewManager(nil)
	defer m.Clear()

	_, err := m.Get("minpoolsize=50;maxpoolsize=5")
	require.ErrorIs(t, err, config.ErrInvalidConfiguration)
}
