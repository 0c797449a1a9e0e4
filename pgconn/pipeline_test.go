package pgconn

import (
	"context"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srhinds/gopq/command"
	"github.com/srhinds/gopq/config"
	"github.com/srhinds/gopq/internal/bufio"
	"github.com/srhinds/gopq/pgconn/stmtcache"
	"github.com/srhinds/gopq/pgproto"
	"github.com/srhinds/gopq/pgtype"
)

// newPipeConnector wires a Connector directly onto one end of an in-
// process net.Pipe, skipping Open/the startup handshake, and returns the
// other end's ReadBuffer/WriteBuffer for a test to play the backend role
// with. Grounded on jeroenrinzema-psql-wire's in-process wire harness.
func newPipeConnector(t *testing.T) (*Connector, *bufio.ReadBuffer, *bufio.WriteBuffer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	c := NewConnector(&config.Config{Timeout: 5, CommandTimeout: 5}, nil, nil)
	c.conn = clientConn
	c.rb = bufio.NewReadBuffer(clientConn, 8192, nil)
	c.wb = bufio.NewWriteBuffer(clientConn, 8192, nil)
	c.parameterStatuses = map[string]string{}
	c.setState(StateReady)

	serverRb := bufio.NewReadBuffer(serverConn, 8192, nil)
	serverWb := bufio.NewWriteBuffer(serverConn, 8192, nil)

	t.Cleanup(func() { _ = clientConn.Close(); _ = serverConn.Close() })
	return c, serverRb, serverWb
}

func sendAll(t *testing.T, wb *bufio.WriteBuffer) {
	t.Helper()
	for {
		ok, err := wb.Send()
		require.NoError(t, err)
		if ok {
			return
		}
	}
}

// expectHeader reads one message's header, asserts its type, and
// discards its body so the next ReadMessageHeader call starts aligned on
// the following message.
func expectHeader(t *testing.T, rb *bufio.ReadBuffer, wantType byte) pgproto.MessageHeader {
	t.Helper()
	hdr, err := pgproto.ReadMessageHeader(rb)
	require.NoError(t, err)
	require.Equal(t, wantType, hdr.Type)
	require.NoError(t, rb.Skip(int(hdr.BodyLen)))
	return hdr
}

// readBind reads one Bind message field by field, returning its
// parameter and result format-code lists, so a test can assert exactly
// what encodeBind put on the wire instead of trusting a blind Skip.
func readBind(t *testing.T, rb *bufio.ReadBuffer) (paramFormats, resultFormats []int16) {
	t.Helper()
	hdr, err := pgproto.ReadMessageHeader(rb)
	require.NoError(t, err)
	require.Equal(t, byte('B'), hdr.Type)

	_, err = rb.ReadNullTerminatedString() // portal
	require.NoError(t, err)
	_, err = rb.ReadNullTerminatedString() // statement name
	require.NoError(t, err)

	nParamFormats, err := rb.ReadInt16()
	require.NoError(t, err)
	paramFormats = make([]int16, nParamFormats)
	for i := range paramFormats {
		paramFormats[i], err = rb.ReadInt16()
		require.NoError(t, err)
	}

	nParams, err := rb.ReadInt16()
	require.NoError(t, err)
	for i := 0; i < int(nParams); i++ {
		length, err := rb.ReadInt32()
		require.NoError(t, err)
		if length >= 0 {
			require.NoError(t, rb.Skip(int(length)))
		}
	}

	nResultFormats, err := rb.ReadInt16()
	require.NoError(t, err)
	resultFormats = make([]int16, nResultFormats)
	for i := range resultFormats {
		resultFormats[i], err = rb.ReadInt16()
		require.NoError(t, err)
	}
	return paramFormats, resultFormats
}

func binaryInt32Bytes(n int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}

// TestExecuteSingleLiteralSelect covers §8 scenario 1: one statement, no
// parameters, one row back.
func TestExecuteSingleLiteralSelect(t *testing.T) {
	conn, serverRb, serverWb := newPipeConnector(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		expectHeader(t, serverRb, 'P') // Parse
		expectHeader(t, serverRb, 'D') // Describe
		expectHeader(t, serverRb, 'B') // Bind
		expectHeader(t, serverRb, 'E') // Execute
		expectHeader(t, serverRb, 'S') // Sync

		writeHeaderOnly(t, serverWb, '1') // ParseComplete
		writeParameterDescription(t, serverWb, nil)
		writeRowDescription(t, serverWb, "n", 23, pgproto.TextFormat)
		writeHeaderOnly(t, serverWb, '2') // BindComplete
		writeDataRow(t, serverWb, []byte("42"))
		writeCommandComplete(t, serverWb, "SELECT 1")
		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	cmd := &command.Command{Statements: []command.Statement{{SQL: "SELECT 42 AS n"}}}
	rows, err := conn.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)

	ok, err := rows.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	n, err := rows.GetInt32(0)
	require.NoError(t, err)
	require.Equal(t, int32(42), n)

	ok, err = rows.Read(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, rows.Close(context.Background()))
	require.Equal(t, int64(1), cmd.Statements[0].Rows)
	require.Equal(t, command.Select, cmd.Statements[0].Type)

	<-done
}

// TestExecuteTwoStatementPipeline covers §8 scenario 3: two statements in
// one pipeline, each with its own result.
func TestExecuteTwoStatementPipeline(t *testing.T) {
	conn, serverRb, serverWb := newPipeConnector(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2; i++ {
			// The second, identical SQL hits the statement cache the first
			// one just populated, so only the first is sent a Parse.
			if i == 0 {
				expectHeader(t, serverRb, 'P')
			}
			expectHeader(t, serverRb, 'D')
			expectHeader(t, serverRb, 'B')
			expectHeader(t, serverRb, 'E')
		}
		expectHeader(t, serverRb, 'S')

		for i := 0; i < 2; i++ {
			if i == 0 {
				writeHeaderOnly(t, serverWb, '1')
			}
			writeParameterDescription(t, serverWb, nil)
			writeRowDescription(t, serverWb, "n", 23, pgproto.TextFormat)
			writeHeaderOnly(t, serverWb, '2')
			writeDataRow(t, serverWb, []byte("1"))
			writeCommandComplete(t, serverWb, "SELECT 1")
		}
		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	cmd := &command.Command{Statements: []command.Statement{
		{SQL: "SELECT 1"},
		{SQL: "SELECT 1"},
	}}
	rows, err := conn.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)

	ok, err := rows.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = rows.Read(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	more, err := rows.NextResult(context.Background())
	require.NoError(t, err)
	require.True(t, more)

	ok, err = rows.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, rows.Close(context.Background()))
	<-done
}

// TestExecuteUpgradesResultFormatOnCacheHit covers §4.4 step 1 / §4.5: a
// statement's column types aren't known until after Bind is pipelined,
// so its first execution must request text for every result column
// (never blindly request binary); once the cache has learned the
// column's OID from that first Describe response, a later execution of
// the same SQL upgrades to binary for any column whose handler supports
// it, and GetInt32 must decode whichever format was actually requested
// rather than trusting the stale statement-level RowDescription bits.
func TestExecuteUpgradesResultFormatOnCacheHit(t *testing.T) {
	conn, serverRb, serverWb := newPipeConnector(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		expectHeader(t, serverRb, 'P')
		expectHeader(t, serverRb, 'D')
		_, resultFormats := readBind(t, serverRb)
		require.Equal(t, []int16{pgproto.TextFormat}, resultFormats)
		expectHeader(t, serverRb, 'E')
		expectHeader(t, serverRb, 'S')

		writeHeaderOnly(t, serverWb, '1')
		writeParameterDescription(t, serverWb, nil)
		writeRowDescription(t, serverWb, "n", pgtype.OIDInt4, pgproto.TextFormat)
		writeHeaderOnly(t, serverWb, '2')
		writeDataRow(t, serverWb, []byte("42"))
		writeCommandComplete(t, serverWb, "SELECT 1")
		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	cmd := &command.Command{Statements: []command.Statement{{SQL: "SELECT n FROM t"}}}
	rows, err := conn.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	ok, err := rows.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	n, err := rows.GetInt32(0)
	require.NoError(t, err)
	require.Equal(t, int32(42), n)
	require.NoError(t, rows.Close(context.Background()))
	<-done

	done2 := make(chan struct{})
	go func() {
		defer close(done2)
		expectHeader(t, serverRb, 'D') // cache hit: no Parse
		_, resultFormats := readBind(t, serverRb)
		require.Equal(t, []int16{pgproto.BinaryFormat}, resultFormats)
		expectHeader(t, serverRb, 'E')
		expectHeader(t, serverRb, 'S')

		writeHeaderOnly(t, serverWb, '1')
		writeParameterDescription(t, serverWb, nil)
		writeRowDescription(t, serverWb, "n", pgtype.OIDInt4, pgproto.BinaryFormat)
		writeHeaderOnly(t, serverWb, '2')
		writeDataRow(t, serverWb, binaryInt32Bytes(43))
		writeCommandComplete(t, serverWb, "SELECT 1")
		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	cmd2 := &command.Command{Statements: []command.Statement{{SQL: "SELECT n FROM t"}}}
	rows2, err := conn.Execute(context.Background(), cmd2, nil)
	require.NoError(t, err)
	ok, err = rows2.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	n, err = rows2.GetInt32(0)
	require.NoError(t, err)
	require.Equal(t, int32(43), n)
	require.NoError(t, rows2.Close(context.Background()))
	<-done2
}

// TestExecuteOutputParameterRejected covers §8 scenario 5: the core
// rejects a non-Input parameter before any bytes go on the wire.
func TestExecuteOutputParameterRejected(t *testing.T) {
	conn, _, _ := newPipeConnector(t)

	cmd := &command.Command{Statements: []command.Statement{{
		SQL:        "CALL proc($1)",
		Parameters: []command.Parameter{{Value: 1, Direction: command.Output}},
	}}}

	_, err := conn.Execute(context.Background(), cmd, nil)
	require.ErrorIs(t, err, command.ErrOutputParameterNotSupported)
}

// TestExecuteErrorResponseLeavesConnectorReady covers §7: a PgError
// drains to ReadyForQuery and leaves the connector usable.
func TestExecuteErrorResponseLeavesConnectorReady(t *testing.T) {
	conn, serverRb, serverWb := newPipeConnector(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		expectHeader(t, serverRb, 'P')
		expectHeader(t, serverRb, 'D')
		expectHeader(t, serverRb, 'B')
		expectHeader(t, serverRb, 'E')
		expectHeader(t, serverRb, 'S')

		writeErrorResponse(t, serverWb, "ERROR", "42601", "syntax error")
		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	cmd := &command.Command{Statements: []command.Statement{{SQL: "BOGUS SQL"}}}
	_, err := conn.Execute(context.Background(), cmd, nil)
	require.Error(t, err)
	require.False(t, IsFatal(err))
	require.Equal(t, StateReady, conn.State())

	<-done
}

// TestQuerySimpleMultiStatement covers the simple-query path splitting one
// SQL string into more result cycles than Rows was seeded with (§4.9).
func TestQuerySimpleMultiStatement(t *testing.T) {
	conn, serverRb, serverWb := newPipeConnector(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		expectHeader(t, serverRb, 'Q') // Query

		writeRowDescription(t, serverWb, "n", 23, pgproto.TextFormat)
		writeDataRow(t, serverWb, []byte("1"))
		writeCommandComplete(t, serverWb, "SELECT 1")

		writeRowDescription(t, serverWb, "n", 23, pgproto.TextFormat)
		writeDataRow(t, serverWb, []byte("2"))
		writeCommandComplete(t, serverWb, "SELECT 1")

		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	rows, err := conn.QuerySimple(context.Background(), "SELECT 1; SELECT 2")
	require.NoError(t, err)

	ok, err := rows.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	n, err := rows.GetInt32(0)
	require.NoError(t, err)
	require.Equal(t, int32(1), n)

	ok, err = rows.Read(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	more, err := rows.NextResult(context.Background())
	require.NoError(t, err)
	require.True(t, more)

	ok, err = rows.Read(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	n, err = rows.GetInt32(0)
	require.NoError(t, err)
	require.Equal(t, int32(2), n)

	require.NoError(t, rows.Close(context.Background()))
	<-done
}

// TestExecuteEvictsLRUPreparedStatement covers §4.9's prepared-statement
// cache: once it's at capacity, preparing one more statement emits a
// Close(S) for the bumped entry in the same pipeline, not a leaked
// server-side statement.
func TestExecuteEvictsLRUPreparedStatement(t *testing.T) {
	conn, serverRb, serverWb := newPipeConnector(t)
	conn.stmtCache = stmtcache.New(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// First statement: Parse, Describe, Bind, Execute, Sync.
		expectHeader(t, serverRb, 'P')
		expectHeader(t, serverRb, 'D')
		expectHeader(t, serverRb, 'B')
		expectHeader(t, serverRb, 'E')
		expectHeader(t, serverRb, 'S')
		writeHeaderOnly(t, serverWb, '1')
		writeParameterDescription(t, serverWb, nil)
		writeRowDescription(t, serverWb, "n", 23, pgproto.TextFormat)
		writeHeaderOnly(t, serverWb, '2')
		writeDataRow(t, serverWb, []byte("1"))
		writeCommandComplete(t, serverWb, "SELECT 1")
		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	cmd := &command.Command{Statements: []command.Statement{{SQL: "SELECT 1"}}}
	rows, err := conn.Execute(context.Background(), cmd, nil)
	require.NoError(t, err)
	_, _ = rows.Read(context.Background())
	require.NoError(t, rows.Close(context.Background()))
	<-done
	require.Equal(t, 1, conn.stmtCache.Len())

	done2 := make(chan struct{})
	go func() {
		defer close(done2)
		// Second, different statement: Parse, Describe, Bind, Execute, the
		// evicted first statement's Close, then Sync.
		expectHeader(t, serverRb, 'P')
		expectHeader(t, serverRb, 'D')
		expectHeader(t, serverRb, 'B')
		expectHeader(t, serverRb, 'E')
		expectHeader(t, serverRb, 'C') // Close of the evicted statement
		expectHeader(t, serverRb, 'S')
		writeHeaderOnly(t, serverWb, '1')
		writeParameterDescription(t, serverWb, nil)
		writeRowDescription(t, serverWb, "n", 23, pgproto.TextFormat)
		writeHeaderOnly(t, serverWb, '2')
		writeHeaderOnly(t, serverWb, '3') // CloseComplete
		writeDataRow(t, serverWb, []byte("2"))
		writeCommandComplete(t, serverWb, "SELECT 1")
		writeReadyForQuery(t, serverWb, 'I')
		sendAll(t, serverWb)
	}()

	cmd2 := &command.Command{Statements: []command.Statement{{SQL: "SELECT 2"}}}
	rows2, err := conn.Execute(context.Background(), cmd2, nil)
	require.NoError(t, err)
	_, _ = rows2.Read(context.Background())
	require.NoError(t, rows2.Close(context.Background()))
	<-done2
	require.Equal(t, 1, conn.stmtCache.Len())
}

func writeHeaderOnly(t *testing.T, wb *bufio.WriteBuffer, msgType byte) {
	t.Helper()
	require.NoError(t, wb.WriteByte(msgType))
	require.NoError(t, wb.WriteInt32(4))
}

func writeParameterDescription(t *testing.T, wb *bufio.WriteBuffer, oids []uint32) {
	t.Helper()
	require.NoError(t, wb.WriteByte('t'))
	lenAt, err := wb.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, wb.WriteInt16(int16(len(oids))))
	for _, oid := range oids {
		require.NoError(t, wb.WriteUInt32(oid))
	}
	wb.PatchInt32(lenAt, int32(wb.End-lenAt))
}

func writeRowDescription(t *testing.T, wb *bufio.WriteBuffer, name string, oid uint32, format int16) {
	t.Helper()
	require.NoError(t, wb.WriteByte('T'))
	lenAt, err := wb.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, wb.WriteInt16(1))
	require.NoError(t, wb.WriteNullTerminatedString(name))
	require.NoError(t, wb.WriteUInt32(0))
	require.NoError(t, wb.WriteUInt16(0))
	require.NoError(t, wb.WriteUInt32(oid))
	require.NoError(t, wb.WriteInt16(-1))
	require.NoError(t, wb.WriteUInt32(0))
	require.NoError(t, wb.WriteInt16(format))
	wb.PatchInt32(lenAt, int32(wb.End-lenAt))
}

func writeDataRow(t *testing.T, wb *bufio.WriteBuffer, values ...[]byte) {
	t.Helper()
	require.NoError(t, wb.WriteByte('D'))
	lenAt, err := wb.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, wb.WriteInt16(int16(len(values))))
	for _, v := range values {
		if v == nil {
			require.NoError(t, wb.WriteInt32(-1))
			continue
		}
		require.NoError(t, wb.WriteInt32(int32(len(v))))
		require.NoError(t, wb.WriteBytes(v))
	}
	wb.PatchInt32(lenAt, int32(wb.End-lenAt))
}

func writeCommandComplete(t *testing.T, wb *bufio.WriteBuffer, tag string) {
	t.Helper()
	require.NoError(t, wb.WriteByte('C'))
	lenAt, err := wb.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, wb.WriteNullTerminatedString(tag))
	wb.PatchInt32(lenAt, int32(wb.End-lenAt))
}

func writeReadyForQuery(t *testing.T, wb *bufio.WriteBuffer, status byte) {
	t.Helper()
	require.NoError(t, wb.WriteByte('Z'))
	lenAt, err := wb.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, wb.WriteByte(status))
	wb.PatchInt32(lenAt, int32(wb.End-lenAt))
}

func writeErrorResponse(t *testing.T, wb *bufio.WriteBuffer, severity, code, message string) {
	t.Helper()
	require.NoError(t, wb.WriteByte('E'))
	lenAt, err := wb.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, wb.WriteByte('S'))
	require.NoError(t, wb.WriteNullTerminatedString(severity))
	require.NoError(t, wb.WriteByte('C'))
	require.NoError(t, wb.WriteNullTerminatedString(code))
	require.NoError(t, wb.WriteByte('M'))
	require.NoError(t, wb.WriteNullTerminatedString(message))
	require.NoError(t, wb.WriteByte(0))
	wb.PatchInt32(lenAt, int32(wb.End-lenAt))
}
