// Package config parses the gopq connection-string syntax (§6): a
// case-insensitive "key=value;..." string carrying the TCP endpoint,
// startup parameters, and pool sizing for one connection string value.
// Grounded on pgconn/config.go's ParseConfig, adapted from libpq-style
// "key=value key=value" DSNs to the semicolon-delimited ADO.NET-style
// syntax spec.md §6 specifies.
package config

import (
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// PoolSizeLimit is the hard upper bound MinPoolSize may not exceed (§6).
// MaxPoolSize is not checked against it.
const PoolSizeLimit = 1024

// ErrInvalidConfiguration is returned when MinPoolSize > MaxPoolSize.
var ErrInvalidConfiguration = xerrors.New("config: MinPoolSize must not exceed MaxPoolSize")

// ErrOutOfRange is returned when MinPoolSize exceeds PoolSizeLimit.
var ErrOutOfRange = xerrors.New("config: MinPoolSize exceeds PoolSizeLimit")

// Config is the parsed, validated form of a connection string.
type Config struct {
	Host            string
	Port            uint16
	Database        string
	User            string
	Password        string
	MinPoolSize     int
	MaxPoolSize     int
	Timeout         int // seconds; 0 = infinite
	CommandTimeout  int // seconds; 0 = infinite
	Pooling         bool
	SearchPath      string
	ApplicationName string
	NoResetOnClose  bool
	Encoding        string

	// StartupParameters carries every key Parse does not recognize, under
	// its original spelling, so it is still forwarded verbatim during the
	// startup handshake (SearchPath and ApplicationName have their own
	// fields and are added by StartupMap).
	StartupParameters map[string]string

	// ConnectionString is the original, normalized input; it is the
	// PoolManager's map key (§4.8) and must be stable for identical
	// logical configurations.
	ConnectionString string
}

var knownKeys = map[string]bool{
	"host": true, "port": true, "database": true, "username": true,
	"password": true, "minpoolsize": true, "maxpoolsize": true,
	"timeout": true, "commandtimeout": true, "pooling": true,
	"searchpath": true, "applicationname": true, "noresetonclose": true,
	"encoding": true,
}

// Parse builds a Config from a "key=value;key=value;..." string.
// Keys are matched case-insensitively. Defaults: Port=5432, MaxPoolSize=
// 100, MinPoolSize=0, Timeout=15s, CommandTimeout=30s, Pooling=true,
// Encoding="UTF8".
func Parse(connString string) (*Config, error) {
	c := &Config{
		Port:              5432,
		MaxPoolSize:       100,
		MinPoolSize:       0,
		Timeout:           15,
		CommandTimeout:    30,
		Pooling:           true,
		Encoding:          "UTF8",
		StartupParameters: make(map[string]string),
		ConnectionString:  connString,
	}

	for _, pair := range strings.Split(connString, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, xerrors.Errorf("config: malformed key=value pair %q", pair)
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		value := strings.TrimSpace(kv[1])

		var err error
		switch key {
		case "host":
			c.Host = value
		case "port":
			var p uint64
			p, err = strconv.ParseUint(value, 10, 16)
			c.Port = uint16(p)
		case "database":
			c.Database = value
		case "username":
			c.User = value
		case "password":
			c.Password = value
		case "minpoolsize":
			c.MinPoolSize, err = strconv.Atoi(value)
		case "maxpoolsize":
			c.MaxPoolSize, err = strconv.Atoi(value)
		case "timeout":
			c.Timeout, err = strconv.Atoi(value)
		case "commandtimeout":
			c.CommandTimeout, err = strconv.Atoi(value)
		case "pooling":
			c.Pooling, err = strconv.ParseBool(value)
		case "searchpath":
			c.SearchPath = value
		case "applicationname":
			c.ApplicationName = value
		case "noresetonclose":
			c.NoResetOnClose, err = strconv.ParseBool(value)
		case "encoding":
			c.Encoding = value
		default:
			// Forwarded verbatim as a startup parameter (§6: "forwarded as
			// startup parameters").
			c.StartupParameters[kv[0]] = value
			continue
		}
		if err != nil {
			return nil, xerrors.Errorf("config: invalid value for %s: %w", key, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate re-checks the pool-sizing invariants (§6, §8 boundary
// behaviors). Called by Parse; pgpool.New separately rejects a
// hand-built Config whose MinPoolSize exceeds its MaxPoolSize.
func (c *Config) Validate() error {
	if c.MinPoolSize > PoolSizeLimit {
		return ErrOutOfRange
	}
	if c.MinPoolSize > c.MaxPoolSize {
		return ErrInvalidConfiguration
	}
	return nil
}

// StartupMap assembles the full set of startup parameters (user,
// database, search_path, application_name, plus any forwarded keys) for
// the StartupMessage frontend message.
func (c *Config) StartupMap() map[string]string {
	out := map[string]string{"user": c.User}
	if c.Database != "" {
		out["database"] = c.Database
	}
	if c.SearchPath != "" {
		out["search_path"] = c.SearchPath
	}
	if c.ApplicationName != "" {
		out["application_name"] = c.ApplicationName
	}
	for k, v := range c.StartupParameters {
		out[k] = v
	}
	return out
}
