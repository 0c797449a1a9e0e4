package pgconn

import (
	"context"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/command"
	"github.com/srhinds/gopq/pgconn/stmtcache"
	"github.com/srhinds/gopq/pgproto"
	"github.com/srhinds/gopq/pgtype"
)

// flushMargin is the SpaceLeft threshold below which Execute flushes the
// WriteBuffer mid-pipeline rather than waiting for Sync, so a long
// multi-statement command (e.g. the 1000-statement scenario in §8) never
// has to fit the whole pipeline in one buffer load.
const flushMargin = 256

// Execute drives cmd through the extended-query pipeline (§4.4): Parse,
// Describe, Bind, Execute per statement, one Sync for the whole Command,
// then returns a Rows cursor over the results. onClose, if non-nil, runs
// when the returned Rows is closed (e.g. a pool releasing the connector
// back to its idle list). A statement's result columns are decoded as
// binary only once a prior execution has told the cache their types
// (see encodeBind); the first execution of any SQL text is always
// decoded as text.
func (c *Connector) Execute(ctx context.Context, cmd *command.Command, onClose func()) (*Rows, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := c.acquireSingleCaller(); err != nil {
		return nil, err
	}

	c.setState(StateExecuting)

	timeout := cmd.CommandTimeout
	if timeout == 0 && c.cfg != nil {
		timeout = c.cfg.CommandTimeout
	}
	ctx, cancel := deadlineFromSeconds(ctx, timeout)
	defer cancel()
	_ = ctx // ctx governs Open/auth; mid-pipeline cancellation goes through CancelRequest (cancel.go), not ctx.

	maxRows := int32(0)
	if cmd.Behavior&command.BehaviorSingleRow != 0 {
		maxRows = 1
	}

	for i := range cmd.Statements {
		if err := c.sendStatement(&cmd.Statements[i], cmd.Behavior, maxRows); err != nil {
			c.releaseSingleCaller()
			return nil, c.breakConnector(err)
		}
	}

	if err := (pgproto.Sync{}).Encode(c.wb); err != nil {
		c.releaseSingleCaller()
		return nil, c.breakConnector(err)
	}
	if err := c.flush(); err != nil {
		c.releaseSingleCaller()
		return nil, c.breakConnector(err)
	}

	c.setState(StateFetching)

	rows, err := newRows(c, cmd, onClose)
	if err != nil && IsFatal(err) {
		c.releaseSingleCaller()
		return nil, err
	}
	if err != nil {
		// A PgError already drained the pipeline to ReadyForQuery (§7);
		// the connector is Ready again, just release this caller's hold.
		c.releaseSingleCaller()
		return rows, err
	}
	return rows, nil
}

// sendStatement encodes one statement's slice of the pipeline. A
// statement whose SQL is already in the prepared-statement cache skips
// Parse and reuses the server-side name; otherwise it is parsed unnamed
// unless caching is enabled, in which case it is parsed under a fresh
// name so later Executes of the same SQL can hit the cache (§4.9).
func (c *Connector) sendStatement(stmt *command.Statement, behavior command.Behavior, maxRows int32) error {
	statementName := ""
	skipParse := false
	var resultOIDs []uint32

	if c.stmtCache != nil {
		if entry := c.stmtCache.Get(stmt.SQL); entry != nil {
			statementName = entry.StatementName
			skipParse = true
			resultOIDs = entry.ResultOIDs
		} else {
			c.stmtSeq++
			statementName = "gopq_s" + strconv.Itoa(c.stmtSeq)
		}
	}
	stmt.PreparedStatementName = statementName
	stmt.IsPrepared = statementName != ""

	if err := c.ensureFlushSpace(); err != nil {
		return err
	}
	if !skipParse {
		parse := &pgproto.Parse{StatementName: statementName, SQL: stmt.SQL}
		if err := parse.Encode(c.wb); err != nil {
			return err
		}
	}

	if err := c.ensureFlushSpace(); err != nil {
		return err
	}
	describe := &pgproto.Describe{Target: pgproto.DescribeStatement, Name: statementName}
	if err := describe.Encode(c.wb); err != nil {
		return err
	}

	if behavior&command.BehaviorSchemaOnly != 0 {
		if statementName != "" && !skipParse && c.stmtCache != nil {
			c.stmtCache.Put(&stmtcache.Entry{SQL: stmt.SQL, StatementName: statementName})
			if err := c.closeEvictedStatements(); err != nil {
				return err
			}
		}
		return nil
	}

	if err := c.ensureFlushSpace(); err != nil {
		return err
	}
	if err := c.encodeBind(stmt, statementName, resultOIDs); err != nil {
		return err
	}

	if err := c.ensureFlushSpace(); err != nil {
		return err
	}
	execute := &pgproto.Execute{Portal: "", MaxRows: maxRows}
	if err := execute.Encode(c.wb); err != nil {
		return err
	}

	if statementName != "" && !skipParse && c.stmtCache != nil {
		c.stmtCache.Put(&stmtcache.Entry{SQL: stmt.SQL, StatementName: statementName})
		if err := c.closeEvictedStatements(); err != nil {
			return err
		}
	}
	return nil
}

// closeEvictedStatements emits Close(S) for every prepared statement the
// LRU cache has bumped out since the last call, so the server-side
// resource isn't held onto forever (§4.9).
func (c *Connector) closeEvictedStatements() error {
	for _, e := range c.stmtCache.TakeEvicted() {
		closeMsg := &pgproto.Close{Target: pgproto.DescribeStatement, Name: e.StatementName}
		if err := closeMsg.Encode(c.wb); err != nil {
			return err
		}
	}
	return nil
}

// encodeBind writes the Bind message for stmt: binary format whenever the
// parameter's type handler supports it, text otherwise (§4.5). Result
// column formats follow the same rule, but only once resultOIDs is
// known (i.e. a previous execution of this prepared statement already
// ran its Describe response through the cache) — a statement's
// column types are not known until after this Bind is pipelined ahead
// of reading that response, so a first execution requests text for
// every column rather than guessing. Whatever is requested here is
// recorded on stmt.ResultFormats, since the statement-level
// RowDescription captured earlier always reports format 0 regardless
// of what Bind asks for, and cannot be used to pick a decode format.
func (c *Connector) encodeBind(stmt *command.Statement, statementName string, resultOIDs []uint32) error {
	n := len(stmt.Parameters)
	formats := make([]int16, n)
	lengths := make([]int, n)
	handlers := make([]pgtype.Handler, n)
	valueFormats := make([]pgtype.Format, n)

	for i, p := range stmt.Parameters {
		if p.Value == nil {
			continue
		}
		oid := p.OID
		var handler pgtype.Handler
		if oid == 0 {
			oid, handler = c.registry.OIDFor(p.Value)
		} else {
			handler = c.registry.Lookup(oid)
		}
		stmt.Parameters[i].OID = oid

		format := pgtype.FormatText
		if handler.Format().SupportsBinary() {
			format = pgtype.FormatBinary
		}
		length, err := handler.ValidateAndGetLength(p.Value, format)
		if err != nil {
			return xerrors.Errorf("%w: %v", ErrInvalidCast, err)
		}

		formats[i] = wireFormat(format)
		lengths[i] = length
		handlers[i] = handler
		valueFormats[i] = format
	}

	if err := c.wb.WriteByte('B'); err != nil {
		return err
	}
	lenAt, err := c.wb.ReserveInt32()
	if err != nil {
		return err
	}
	if err := c.wb.WriteNullTerminatedString(""); err != nil {
		return err
	}
	if err := c.wb.WriteNullTerminatedString(statementName); err != nil {
		return err
	}

	if err := c.wb.WriteInt16(int16(n)); err != nil {
		return err
	}
	for _, fc := range formats {
		if err := c.wb.WriteInt16(fc); err != nil {
			return err
		}
	}

	if err := c.wb.WriteInt16(int16(n)); err != nil {
		return err
	}
	for i, p := range stmt.Parameters {
		if p.Value == nil {
			if err := c.wb.WriteInt32(-1); err != nil {
				return err
			}
			continue
		}
		if err := c.wb.WriteInt32(int32(lengths[i])); err != nil {
			return err
		}
		if err := handlers[i].Write(p.Value, valueFormats[i], c.wb); err != nil {
			return err
		}
	}

	resultFormats := c.resultFormatsFor(resultOIDs)
	if err := c.wb.WriteInt16(int16(len(resultFormats))); err != nil {
		return err
	}
	for _, fc := range resultFormats {
		if err := c.wb.WriteInt16(fc); err != nil {
			return err
		}
	}
	stmt.ResultFormats = resultFormats

	c.wb.PatchInt32(lenAt, int32(c.wb.End-lenAt))
	return nil
}

// resultFormatsFor decides the result-format-code list a Bind should
// request: per-column binary-or-text once the column types are known,
// or a single text code (the protocol's "applies to every column" form)
// when they aren't yet.
func (c *Connector) resultFormatsFor(resultOIDs []uint32) []int16 {
	if len(resultOIDs) == 0 {
		return []int16{pgproto.TextFormat}
	}
	formats := make([]int16, len(resultOIDs))
	for i, oid := range resultOIDs {
		if c.registry.Lookup(oid).Format().SupportsBinary() {
			formats[i] = pgproto.BinaryFormat
		} else {
			formats[i] = pgproto.TextFormat
		}
	}
	return formats
}

func wireFormat(f pgtype.Format) int16 {
	if f == pgtype.FormatBinary {
		return pgproto.BinaryFormat
	}
	return pgproto.TextFormat
}

// ensureFlushSpace flushes the WriteBuffer when it is close to full, so
// encoding a long pipeline never waits on space that only a
// Sync-triggered flush would otherwise free.
func (c *Connector) ensureFlushSpace() error {
	if c.wb.SpaceLeft() > flushMargin {
		return nil
	}
	return c.flush()
}
