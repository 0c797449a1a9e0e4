package pgconn

import (
	"context"

	"github.com/srhinds/gopq/command"
)

// Reset returns the connector to a pristine session state before it goes
// back into a pool's idle list: DISCARD ALL drops every prepared
// statement, temp table, and session setting a prior borrower may have
// left behind (§4.7). NoResetOnClose opts a pool out of this, trading
// correctness for the cost of a round trip on every Release.
func (c *Connector) Reset(ctx context.Context) error {
	if c.cfg != nil && c.cfg.NoResetOnClose {
		return nil
	}
	if c.State() != StateReady {
		return nil
	}

	cmd := &command.Command{Statements: []command.Statement{{SQL: "DISCARD ALL"}}}
	rows, err := c.Execute(ctx, cmd, nil)
	if err != nil {
		return err
	}
	if err := rows.Close(ctx); err != nil {
		return err
	}

	if c.stmtCache != nil {
		c.stmtCache.InvalidateAll()
		// DISCARD ALL already dropped every prepared statement server-side;
		// just drain the evicted list so it doesn't grow across resets.
		c.stmtCache.TakeEvicted()
	}
	return nil
}
