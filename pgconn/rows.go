package pgconn

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/command"
	"github.com/srhinds/gopq/internal/bufio"
	"github.com/srhinds/gopq/pgproto"
	"github.com/srhinds/gopq/pgtype"
)

// pipelineEvent classifies the next meaningful backend message Rows'
// internal cursor advanced past.
type pipelineEvent int

const (
	evResultOpened pipelineEvent = iota
	evDataRow
	evStatementDone
	evDone
	evError
)

// Rows is a forward-only DataReader cursor (§4.6) over the result sets
// produced by one Connector.Execute pipeline. It pulls rows through the
// connector's ReadBuffer lazily: no statement's rows are buffered ahead
// of the caller asking for them.
type Rows struct {
	conn *Connector
	cmd  *command.Command

	idx           int  // index of the next statement advance() has not yet closed out
	resultStmtIdx int  // index of the statement whose result is currently open
	inResult      bool // a RowDescription is open and Read() may yield rows
	done          bool // ReadyForQuery consumed; pipeline fully drained
	closed        bool

	// growable is set by the simple-query path (QuerySimple), where the
	// server may split sql into more statements than cmd was seeded with;
	// advance() appends a blank Statement on demand instead of indexing
	// out of range.
	growable bool

	currentValues [][]byte

	err     error
	onClose func()
}

// newRows builds a Rows positioned BeforeFirstResult and immediately
// seeks the first result (or the pipeline's end, if no statement
// produces rows), mirroring an implicit initial NextResult call.
func newRows(conn *Connector, cmd *command.Command, onClose func()) (*Rows, error) {
	r := &Rows{conn: conn, cmd: cmd, onClose: onClose}
	if _, err := r.NextResult(context.Background()); err != nil {
		return r, err
	}
	return r, nil
}

// advance reads and routes exactly one backend message, per §4.4's
// dispatch table, and reports what happened.
func (r *Rows) advance() (pipelineEvent, error) {
	for {
		hdr, err := pgproto.ReadMessageHeader(r.conn.rb)
		if err != nil {
			return evError, r.conn.breakConnector(err)
		}
		r.growStatements()

		switch hdr.Type {
		case '1', '2', '3': // ParseComplete, BindComplete, CloseComplete
			continue

		case 't': // ParameterDescription
			pd, err := pgproto.DecodeParameterDescription(r.conn.rb)
			if err != nil {
				return evError, r.conn.breakConnector(err)
			}
			r.attachParameterOIDs(pd)
			continue

		case 'T': // RowDescription
			rd, err := pgproto.DecodeRowDescription(r.conn.rb)
			if err != nil {
				return evError, r.conn.breakConnector(err)
			}
			r.cmd.Statements[r.idx].RowDescription = rd
			r.resultStmtIdx = r.idx
			r.learnResultOIDs(rd)
			return evResultOpened, nil

		case 'n': // NoData
			r.cmd.Statements[r.idx].RowDescription = nil
			continue

		case 'D': // DataRow
			dr, err := pgproto.DecodeDataRow(r.conn.rb)
			if err != nil {
				return evError, r.conn.breakConnector(err)
			}
			r.currentValues = dr.Values
			return evDataRow, nil

		case 'C': // CommandComplete
			cc, err := pgproto.DecodeCommandComplete(r.conn.rb, hdr.BodyLen)
			if err != nil {
				return evError, r.conn.breakConnector(err)
			}
			applyCommandTag(&r.cmd.Statements[r.idx], cc.Tag)
			r.idx++
			return evStatementDone, nil

		case 'I': // EmptyQueryResponse
			r.cmd.Statements[r.idx].Type = command.Other
			r.cmd.Statements[r.idx].Rows = 0
			r.idx++
			return evStatementDone, nil

		case 'N': // NoticeResponse
			f, err := pgproto.DecodeNoticeResponse(r.conn.rb)
			if err != nil {
				return evError, r.conn.breakConnector(err)
			}
			r.conn.dispatchNotice(newNotice(f))
			continue

		case 'E': // ErrorResponse
			f, err := pgproto.DecodeErrorResponse(r.conn.rb)
			if err != nil {
				return evError, r.conn.breakConnector(err)
			}
			if err := r.drainToReadyForQuery(); err != nil {
				return evError, err
			}
			return evError, newPgError(f)

		case 'Z': // ReadyForQuery
			status, err := pgproto.DecodeReadyForQuery(r.conn.rb)
			if err != nil {
				return evError, r.conn.breakConnector(err)
			}
			r.conn.txStatus = TransactionStatus(status)
			r.conn.setState(StateReady)
			return evDone, nil

		default:
			if err := r.conn.rb.Skip(int(hdr.BodyLen)); err != nil {
				return evError, r.conn.breakConnector(err)
			}
			continue
		}
	}
}

// drainToReadyForQuery is used after an ErrorResponse: per Sync
// semantics the server skips any remaining statements in the pipeline,
// so §7 requires draining to ReadyForQuery before raising the error,
// leaving the connector Ready rather than Broken.
func (r *Rows) drainToReadyForQuery() error {
	for {
		hdr, err := pgproto.ReadMessageHeader(r.conn.rb)
		if err != nil {
			return r.conn.breakConnector(err)
		}
		if hdr.Type == 'Z' {
			status, err := pgproto.DecodeReadyForQuery(r.conn.rb)
			if err != nil {
				return r.conn.breakConnector(err)
			}
			r.conn.txStatus = TransactionStatus(status)
			r.conn.setState(StateReady)
			return nil
		}
		if err := r.conn.rb.Skip(int(hdr.BodyLen)); err != nil {
			return r.conn.breakConnector(err)
		}
	}
}

// growStatements appends a blank Statement when the simple-query path's
// cmd has fewer entries than the server is reporting results for.
func (r *Rows) growStatements() {
	if !r.growable {
		return
	}
	for r.idx >= len(r.cmd.Statements) {
		r.cmd.Statements = append(r.cmd.Statements, command.Statement{SQL: ""})
	}
}

// learnResultOIDs records the current statement's column types on its
// cache entry the first time they're seen, so the next Bind of the same
// SQL (sendStatement's cache-hit path) can request binary for any
// column whose handler supports it, instead of text uniformly.
func (r *Rows) learnResultOIDs(rd *pgproto.RowDescription) {
	if r.conn.stmtCache == nil || r.idx >= len(r.cmd.Statements) {
		return
	}
	stmt := &r.cmd.Statements[r.idx]
	if stmt.PreparedStatementName == "" {
		return
	}
	entry := r.conn.stmtCache.Get(stmt.SQL)
	if entry == nil || len(entry.ResultOIDs) > 0 {
		return
	}
	oids := make([]uint32, len(rd.Fields))
	for i, f := range rd.Fields {
		oids[i] = f.DataTypeOID
	}
	entry.ResultOIDs = oids
}

func (r *Rows) attachParameterOIDs(pd *pgproto.ParameterDescription) {
	if r.idx >= len(r.cmd.Statements) {
		return
	}
	stmt := &r.cmd.Statements[r.idx]
	for i := range stmt.Parameters {
		if i < len(pd.ParameterOIDs) && stmt.Parameters[i].OID == 0 {
			stmt.Parameters[i].OID = pd.ParameterOIDs[i]
		}
	}
}

// Read materializes the next row of the current result, or closes it and
// returns false on CommandComplete/EmptyQueryResponse (§4.6).
func (r *Rows) Read(ctx context.Context) (bool, error) {
	if r.closed || r.done || !r.inResult {
		return false, nil
	}

	ev, err := r.advance()
	if err != nil {
		r.err = err
		return false, err
	}

	switch ev {
	case evDataRow:
		return true, nil
	case evStatementDone:
		r.inResult = false
		return false, nil
	default:
		return false, xerrors.Errorf("%w: unexpected pipeline event %d during Read", ErrProtocolError, ev)
	}
}

// NextResult advances past any unread rows of the current result, then
// positions at the next statement's RowDescription, or returns false if
// the pipeline's ReadyForQuery has been consumed (§4.6).
func (r *Rows) NextResult(ctx context.Context) (bool, error) {
	if r.closed || r.done {
		return false, r.err
	}

	for r.inResult {
		ev, err := r.advance()
		if err != nil {
			r.err = err
			return false, err
		}
		if ev == evStatementDone {
			r.inResult = false
		}
		// evDataRow: discard and keep draining.
	}

	for {
		ev, err := r.advance()
		if err != nil {
			r.err = err
			return false, err
		}
		switch ev {
		case evResultOpened:
			r.inResult = true
			return true, nil
		case evStatementDone:
			continue
		case evDone:
			r.done = true
			return false, nil
		}
	}
}

// CurrentStatement returns the Statement whose result is open, i.e. the
// one Read()'s rows and GetXxx columns belong to.
func (r *Rows) CurrentStatement() *command.Statement {
	return &r.cmd.Statements[r.resultStmtIdx]
}

// GetValue decodes column ordinal of the current row using its type
// handler, returning nil for SQL NULL.
func (r *Rows) GetValue(ordinal int) (any, error) {
	stmt := r.CurrentStatement()
	if stmt.RowDescription == nil || ordinal >= len(stmt.RowDescription.Fields) {
		return nil, xerrors.Errorf("%w: column ordinal %d out of range", ErrInvalidCast, ordinal)
	}
	if ordinal >= len(r.currentValues) || r.currentValues[ordinal] == nil {
		return nil, nil
	}

	field := stmt.RowDescription.Fields[ordinal]
	handler := r.conn.registry.Lookup(field.DataTypeOID)
	format := resultFormatFor(stmt.ResultFormats, ordinal)

	raw := r.currentValues[ordinal]
	rb := bufio.NewReadBufferFromBytes(raw, nil)
	return handler.Read(rb, len(raw), format)
}

// resultFormatFor looks up the wire format actually requested in Bind
// for column ordinal. field.Format on a statement-level RowDescription
// is always 0 (text) — it predates Bind's format negotiation — so it
// must never be used to pick a decode format (§4.4 step 1). A single
// entry in formats applies to every column, per the protocol's own
// "one result-format code means apply to all" rule; an empty formats
// (the simple-query path, which never runs Bind at all) means text.
func resultFormatFor(formats []int16, ordinal int) pgtype.Format {
	switch {
	case len(formats) == 1:
		ordinal = 0
	case ordinal >= len(formats):
		return pgtype.FormatText
	}
	if formats[ordinal] == pgproto.BinaryFormat {
		return pgtype.FormatBinary
	}
	return pgtype.FormatText
}

// GetInt32 type-asserts the decoded value of column ordinal as int32.
func (r *Rows) GetInt32(ordinal int) (int32, error) {
	v, err := r.GetValue(ordinal)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int32)
	if !ok {
		return 0, xerrors.Errorf("%w: column %d is not int32", ErrInvalidCast, ordinal)
	}
	return n, nil
}

// GetString type-asserts the decoded value of column ordinal as string.
func (r *Rows) GetString(ordinal int) (string, error) {
	v, err := r.GetValue(ordinal)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", xerrors.Errorf("%w: column %d is not string", ErrInvalidCast, ordinal)
	}
	return s, nil
}

func (r *Rows) Close(ctx context.Context) error {
	if r.closed {
		return nil
	}
	for !r.done && r.err == nil {
		if _, err := r.NextResult(ctx); err != nil {
			break
		}
	}
	r.closed = true

	r.conn.releaseSingleCaller()
	if r.onClose != nil {
		r.onClose()
	}
	return r.err
}

// applyCommandTag parses a CommandComplete tag ("SELECT 42", "INSERT 0
// 1", "UPDATE 3", ...) into StatementType/Rows/OID (§4.3 glossary).
func applyCommandTag(stmt *command.Statement, tag string) {
	var verb string
	var nums []int64
	cursor := 0
	for cursor < len(tag) && tag[cursor] != ' ' {
		cursor++
	}
	verb = tag[:cursor]
	for cursor < len(tag) {
		for cursor < len(tag) && tag[cursor] == ' ' {
			cursor++
		}
		start := cursor
		for cursor < len(tag) && tag[cursor] >= '0' && tag[cursor] <= '9' {
			cursor++
		}
		if cursor > start {
			var n int64
			for _, ch := range tag[start:cursor] {
				n = n*10 + int64(ch-'0')
			}
			nums = append(nums, n)
		} else if cursor < len(tag) {
			cursor++
		}
	}

	switch verb {
	case "SELECT", "SHOW":
		stmt.Type = command.Select
		if len(nums) > 0 {
			stmt.Rows = nums[len(nums)-1]
		}
	case "INSERT":
		stmt.Type = command.Insert
		if len(nums) == 2 {
			stmt.OID = uint32(nums[0])
			stmt.Rows = nums[1]
		} else if len(nums) == 1 {
			stmt.Rows = nums[0]
		}
	case "UPDATE":
		stmt.Type = command.Update
		if len(nums) > 0 {
			stmt.Rows = nums[len(nums)-1]
		}
	case "DELETE":
		stmt.Type = command.Delete
		if len(nums) > 0 {
			stmt.Rows = nums[len(nums)-1]
		}
	default:
		stmt.Type = command.Other
		if len(nums) > 0 {
			stmt.Rows = nums[len(nums)-1]
		}
	}
}
