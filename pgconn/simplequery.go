package pgconn

import (
	"context"

	"github.com/srhinds/gopq/command"
	"github.com/srhinds/gopq/pgproto"
)

// QuerySimple runs sql over the simple-query protocol ('Q'), bypassing
// Parse/Bind/Describe entirely (SPEC_FULL.md §4.9). It exists for SQL the
// extended-query pipeline cannot express as a single parameterized
// statement: multiple ';'-separated statements in one round trip, or
// commands like LISTEN/VACUUM that reject a prepared form. Every column
// comes back as text; there is no parameter binding.
func (c *Connector) QuerySimple(ctx context.Context, sql string) (*Rows, error) {
	if err := c.acquireSingleCaller(); err != nil {
		return nil, err
	}

	c.setState(StateExecuting)

	msg := &pgproto.Query{SQL: sql}
	if err := msg.Encode(c.wb); err != nil {
		c.releaseSingleCaller()
		return nil, c.breakConnector(err)
	}
	if err := c.flush(); err != nil {
		c.releaseSingleCaller()
		return nil, c.breakConnector(err)
	}

	c.setState(StateFetching)

	cmd := &command.Command{Statements: []command.Statement{{SQL: sql}}}
	rows, err := newSimpleRows(c, cmd)
	if err != nil && IsFatal(err) {
		c.releaseSingleCaller()
		return nil, err
	}
	if err != nil {
		c.releaseSingleCaller()
		return rows, err
	}
	return rows, nil
}

// newSimpleRows wraps the same Rows cursor the extended-query path uses;
// the simple-query protocol can emit multiple CommandComplete/
// RowDescription cycles (one per ';'-separated statement) before its
// final ReadyForQuery, which Rows.NextResult already knows how to walk.
// gopq does not know in advance how many statements the server split sql
// into, so cmd.Statements grows lazily as RowDescription/CommandComplete
// messages arrive for indices past the one Statement it was seeded with.
func newSimpleRows(conn *Connector, cmd *command.Command) (*Rows, error) {
	r := &Rows{conn: conn, cmd: cmd, growable: true}
	if _, err := r.NextResult(context.Background()); err != nil {
		return r, err
	}
	return r, nil
}
