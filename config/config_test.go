package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	c, err := Parse("Host=db.internal;Port=5433;Database=app;Username=svc;Password=s3cr3t;MaxPoolSize=20;MinPoolSize=2")
	require.NoError(t, err)
	require.Equal(t, "db.internal", c.Host)
	require.Equal(t, uint16(5433), c.Port)
	require.Equal(t, "app", c.Database)
	require.Equal(t, "svc", c.User)
	require.Equal(t, 20, c.MaxPoolSize)
	require.Equal(t, 2, c.MinPoolSize)
}

func TestParseIsCaseInsensitive(t *testing.T) {
	c, err := Parse("HOST=x;PORT=1;DATABASE=d")
	require.NoError(t, err)
	require.Equal(t, "x", c.Host)
	require.Equal(t, uint16(1), c.Port)
}

func TestMinPoolSizeExceedsMaxPoolSizeRejected(t *testing.T) {
	_, err := Parse("MinPoolSize=10;MaxPoolSize=5")
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestMinPoolSizeExceedsPoolSizeLimitRejected(t *testing.T) {
	_, err := Parse("MinPoolSize=2000;MaxPoolSize=2000")
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestUnknownKeyForwardedAsStartupParameter(t *testing.T) {
	c, err := Parse("Host=x;Some_GUC=value")
	require.NoError(t, err)
	require.Equal(t, "value", c.StartupParameters["Some_GUC"])
}

func TestStartupMapIncludesForwardedKeys(t *testing.T) {
	c, err := Parse("Username=u;Database=d;SearchPath=pg_temp;ApplicationName=gopq-test")
	require.NoError(t, err)
	m := c.StartupMap()
	require.Equal(t, "u", m["user"])
	require.Equal(t, "d", m["database"])
	require.Equal(t, "pg_temp", m["search_path"])
	require.Equal(t, "gopq-test", m["application_name"])
}
