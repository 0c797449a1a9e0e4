package bufio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type wouldBlockErr struct{}

func (wouldBlockErr) Error() string   { return "would block" }
func (wouldBlockErr) Temporary() bool { return true }

type flakyWriter struct {
	failUntil int
	attempts  int
	written   []byte
}

func (w *flakyWriter) Write(p []byte) (int, error) {
	w.attempts++
	if w.attempts <= w.failUntil {
		return 0, wouldBlockErr{}
	}
	w.written = append(w.written, p...)
	return len(p), nil
}

func TestWriteBufferInvariant(t *testing.T) {
	w := NewWriteBuffer(&flakyWriter{}, 32, nil)
	require.NoError(t, w.WriteInt32(1))
	require.GreaterOrEqual(t, w.Start, 0)
	require.LessOrEqual(t, w.Start, w.End)
	require.LessOrEqual(t, w.End, w.Size())
}

func TestWriteBufferSendResumesAfterWouldBlock(t *testing.T) {
	fw := &flakyWriter{failUntil: 1}
	w := NewWriteBuffer(fw, 32, nil)
	require.NoError(t, w.WriteInt32(0x01020304))

	ok, err := w.Send()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, w.Start)

	ok, err = w.Send()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, fw.written)
	require.Equal(t, 0, w.Start)
	require.Equal(t, 0, w.End)
}

func TestWriteBufferSpaceLeftGating(t *testing.T) {
	w := NewWriteBuffer(&flakyWriter{}, 4, nil)
	require.NoError(t, w.WriteInt32(1))
	require.Equal(t, 0, w.SpaceLeft())
	require.Error(t, w.WriteByte(0))
}
