package pgproto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srhinds/gopq/internal/bufio"
)

func TestParseEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriteBuffer(&buf, 256, nil)

	msg := &Parse{StatementName: "", SQL: "select $1", ParameterOIDs: []uint32{23}}
	require.NoError(t, msg.Encode(w))
	ok, err := w.Send()
	require.NoError(t, err)
	require.True(t, ok)

	r := bufio.NewReadBuffer(&buf, 256, nil)
	hdr, err := ReadMessageHeader(r)
	require.NoError(t, err)
	require.Equal(t, byte('P'), hdr.Type)

	name, err := r.ReadNullTerminatedString()
	require.NoError(t, err)
	require.Equal(t, "", name)

	sql, err := r.ReadNullTerminatedString()
	require.NoError(t, err)
	require.Equal(t, "select $1", sql)

	n, err := r.ReadInt16()
	require.NoError(t, err)
	require.Equal(t, int16(1), n)

	oid, err := r.ReadUInt32()
	require.NoError(t, err)
	require.Equal(t, uint32(23), oid)
}

func TestCommandCompleteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriteBuffer(&buf, 64, nil)
	require.NoError(t, w.WriteByte(msgCommandComplete))
	lenAt, err := w.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, w.WriteNullTerminatedString("SELECT 1"))
	w.PatchInt32(lenAt, int32(w.End-lenAt))
	ok, err := w.Send()
	require.NoError(t, err)
	require.True(t, ok)

	r := bufio.NewReadBuffer(&buf, 64, nil)
	hdr, err := ReadMessageHeader(r)
	require.NoError(t, err)
	require.Equal(t, byte('C'), hdr.Type)

	cc, err := DecodeCommandComplete(r, hdr.BodyLen)
	require.NoError(t, err)
	require.Equal(t, "SELECT 1", cc.Tag)
}

func TestRowDescriptionAndDataRowRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriteBuffer(&buf, 256, nil)

	require.NoError(t, w.WriteByte(msgRowDescription))
	lenAt, err := w.ReserveInt32()
	require.NoError(t, err)
	require.NoError(t, w.WriteInt16(1))
	require.NoError(t, w.WriteNullTerminatedString("?column?"))
	require.NoError(t, w.WriteUInt32(0))
	require.NoError(t, w.WriteInt16(0))
	require.NoError(t, w.WriteUInt32(23))
	require.NoError(t, w.WriteInt16(4))
	require.NoError(t, w.WriteUInt32(0xFFFFFFFF))
	require.NoError(t, w.WriteInt16(TextFormat))
	w.PatchInt32(lenAt, int32(w.End-lenAt))
	ok, err := w.Send()
	require.NoError(t, err)
	require.True(t, ok)

	r := bufio.NewReadBuffer(&buf, 256, nil)
	hdr, err := ReadMessageHeader(r)
	require.NoError(t, err)
	require.Equal(t, byte('T'), hdr.Type)

	rd, err := DecodeRowDescription(r)
	require.NoError(t, err)
	require.Len(t, rd.Fields, 1)
	require.Equal(t, uint32(23), rd.Fields[0].DataTypeOID)
}
