package bufio

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadBufferPrimitivesRoundTrip(t *testing.T) {
	var wb bytes.Buffer
	w := NewWriteBuffer(&wb, 64, nil)

	require.NoError(t, w.WriteByte(0xAB))
	require.NoError(t, w.WriteInt16(-1234))
	require.NoError(t, w.WriteInt32(-123456789))
	require.NoError(t, w.WriteInt64(-9223372036854775000))
	require.NoError(t, w.WriteSingle(float32(3.25)))
	require.NoError(t, w.WriteDouble(math.Pi))
	ok, err := w.Send()
	require.NoError(t, err)
	require.True(t, ok)

	r := NewReadBuffer(&wb, 64, nil)
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), b)

	i16, err := r.ReadInt16()
	require.NoError(t, err)
	require.Equal(t, int16(-1234), i16)

	i32, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-123456789), i32)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	require.Equal(t, int64(-9223372036854775000), i64)

	f32, err := r.ReadSingle()
	require.NoError(t, err)
	require.Equal(t, float32(3.25), f32)

	f64, err := r.ReadDouble()
	require.NoError(t, err)
	require.Equal(t, math.Pi, f64)
}

func TestReadBufferInvariant(t *testing.T) {
	src := bytes.Repeat([]byte{1, 2, 3, 4}, 20)
	r := NewReadBuffer(bytes.NewReader(src), 16, nil)

	for i := 0; i < 20; i++ {
		_, err := r.ReadInt32()
		require.NoError(t, err)
		require.GreaterOrEqual(t, r.ReadPosition, 0)
		require.LessOrEqual(t, r.FilledBytes, r.Size())
		require.LessOrEqual(t, r.ReadPosition, r.FilledBytes)
	}
}

func TestEnsureOrAllocateTempOversized(t *testing.T) {
	src := bytes.Repeat([]byte{0x42}, 100)
	r := NewReadBuffer(bytes.NewReader(src), 16, nil)

	out, err := r.EnsureOrAllocateTemp(100)
	require.NoError(t, err)
	require.Len(t, out, 100)
	require.Equal(t, 0, r.ReadPosition)
	require.Equal(t, 0, r.FilledBytes)
}

func TestReadNullTerminatedString(t *testing.T) {
	src := append([]byte("hello"), 0, 'x')
	r := NewReadBuffer(bytes.NewReader(src), 8, nil)
	s, err := r.ReadNullTerminatedString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestSkip(t *testing.T) {
	src := append(bytes.Repeat([]byte{0}, 10), 0xFF)
	r := NewReadBuffer(bytes.NewReader(src), 4, nil)
	require.NoError(t, r.Skip(10))
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), b)
}
