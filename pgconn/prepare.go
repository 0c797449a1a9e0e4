package pgconn

import (
	"context"
	"strconv"

	"github.com/srhinds/gopq/command"
	"github.com/srhinds/gopq/pgconn/stmtcache"
	"github.com/srhinds/gopq/pgproto"
)

// Prepare explicitly parses stmt's SQL under a fresh server-side name and
// caches it, ahead of any Execute call (§4.4). Callers that only ever
// call Execute get the same caching behavior implicitly; Prepare exists
// for callers that want to pay the Parse cost once, up front, outside a
// hot path.
func (c *Connector) Prepare(ctx context.Context, stmt *command.Statement) error {
	if err := stmt.Validate(); err != nil {
		return err
	}
	if err := c.acquireSingleCaller(); err != nil {
		return err
	}
	defer c.releaseSingleCaller()

	c.setState(StateExecuting)

	if c.stmtCache != nil {
		if entry := c.stmtCache.Get(stmt.SQL); entry != nil {
			stmt.PreparedStatementName = entry.StatementName
			stmt.IsPrepared = true
			c.setState(StateReady)
			return nil
		}
	}

	c.stmtSeq++
	name := "gopq_s" + strconv.Itoa(c.stmtSeq)

	parse := &pgproto.Parse{StatementName: name, SQL: stmt.SQL}
	if err := parse.Encode(c.wb); err != nil {
		return c.breakConnector(err)
	}
	describe := &pgproto.Describe{Target: pgproto.DescribeStatement, Name: name}
	if err := describe.Encode(c.wb); err != nil {
		return c.breakConnector(err)
	}
	if err := (pgproto.Sync{}).Encode(c.wb); err != nil {
		return c.breakConnector(err)
	}
	if err := c.flush(); err != nil {
		return c.breakConnector(err)
	}

	var paramOIDs, resultOIDs []uint32
	for {
		hdr, err := pgproto.ReadMessageHeader(c.rb)
		if err != nil {
			return c.breakConnector(err)
		}
		switch hdr.Type {
		case '1': // ParseComplete
		case 't': // ParameterDescription
			pd, err := pgproto.DecodeParameterDescription(c.rb)
			if err != nil {
				return c.breakConnector(err)
			}
			paramOIDs = pd.ParameterOIDs
		case 'T': // RowDescription
			rd, err := pgproto.DecodeRowDescription(c.rb)
			if err != nil {
				return c.breakConnector(err)
			}
			resultOIDs = make([]uint32, len(rd.Fields))
			for i, f := range rd.Fields {
				resultOIDs[i] = f.DataTypeOID
			}
		case 'n': // NoData
		case 'E':
			f, err := pgproto.DecodeErrorResponse(c.rb)
			if err != nil {
				return c.breakConnector(err)
			}
			_ = c.drainSyncAfterError()
			return newPgError(f)
		case 'Z':
			status, err := pgproto.DecodeReadyForQuery(c.rb)
			if err != nil {
				return c.breakConnector(err)
			}
			c.txStatus = TransactionStatus(status)
			c.setState(StateReady)
			stmt.PreparedStatementName = name
			stmt.IsPrepared = true
			if c.stmtCache != nil {
				c.stmtCache.Put(&stmtcache.Entry{SQL: stmt.SQL, StatementName: name, ParameterOIDs: paramOIDs, ResultOIDs: resultOIDs})
				if err := c.closeEvictedNamedStatements(); err != nil {
					return c.breakConnector(err)
				}
			}
			return nil
		default:
			if err := c.rb.Skip(int(hdr.BodyLen)); err != nil {
				return c.breakConnector(err)
			}
		}
	}
}

func (c *Connector) drainSyncAfterError() error {
	for {
		hdr, err := pgproto.ReadMessageHeader(c.rb)
		if err != nil {
			return c.breakConnector(err)
		}
		if hdr.Type == 'Z' {
			status, err := pgproto.DecodeReadyForQuery(c.rb)
			if err != nil {
				return c.breakConnector(err)
			}
			c.txStatus = TransactionStatus(status)
			c.setState(StateReady)
			return nil
		}
		if err := c.rb.Skip(int(hdr.BodyLen)); err != nil {
			return c.breakConnector(err)
		}
	}
}

// Unprepare closes a previously prepared statement's server-side name
// and invalidates it in the cache.
func (c *Connector) Unprepare(ctx context.Context, stmt *command.Statement) error {
	if !stmt.IsPrepared {
		return nil
	}
	if err := c.acquireSingleCaller(); err != nil {
		return err
	}
	defer c.releaseSingleCaller()

	if err := c.closeStatementOnWire(stmt.PreparedStatementName); err != nil {
		return err
	}

	if c.stmtCache != nil {
		c.stmtCache.Invalidate(stmt.SQL)
	}
	stmt.IsPrepared = false
	stmt.PreparedStatementName = ""
	return nil
}

// closeEvictedNamedStatements round-trips a Close(S)+Sync for every
// prepared statement the LRU cache has bumped out since the last call,
// e.g. when a fresh Prepare call fills the cache past capacity.
func (c *Connector) closeEvictedNamedStatements() error {
	for _, e := range c.stmtCache.TakeEvicted() {
		if err := c.closeStatementOnWire(e.StatementName); err != nil {
			return err
		}
	}
	return nil
}

// closeStatementOnWire sends Close(S, name)+Sync and drains to
// ReadyForQuery, the minimal round trip to free a server-side prepared
// statement outside of an Execute pipeline.
func (c *Connector) closeStatementOnWire(name string) error {
	closeMsg := &pgproto.Close{Target: pgproto.DescribeStatement, Name: name}
	if err := closeMsg.Encode(c.wb); err != nil {
		return c.breakConnector(err)
	}
	if err := (pgproto.Sync{}).Encode(c.wb); err != nil {
		return c.breakConnector(err)
	}
	if err := c.flush(); err != nil {
		return c.breakConnector(err)
	}

	for {
		hdr, err := pgproto.ReadMessageHeader(c.rb)
		if err != nil {
			return c.breakConnector(err)
		}
		if hdr.Type == 'Z' {
			status, err := pgproto.DecodeReadyForQuery(c.rb)
			if err != nil {
				return c.breakConnector(err)
			}
			c.txStatus = TransactionStatus(status)
			c.setState(StateReady)
			return nil
		}
		if err := c.rb.Skip(int(hdr.BodyLen)); err != nil {
			return c.breakConnector(err)
		}
	}
}
