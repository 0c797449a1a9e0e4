package bufio

import (
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/xerrors"
)

// WriteBuffer is a fixed-capacity outbound byte buffer over a socket.
// Encoders append at End; Start tracks the first unsent byte so that a
// would-block Send can resume a partial write without re-copying bytes
// (§9: the Start/End variant is adopted over the single-End one).
type WriteBuffer struct {
	conn net_writer

	buf        []byte
	Start      int
	End        int
	UsableSize int

	encoder *encoding.Encoder
}

// net_writer is the minimal surface WriteBuffer needs from a socket; a
// plain net.Conn satisfies it. Named distinctly to keep this file free of
// a net import it does not otherwise need.
type net_writer interface {
	Write(p []byte) (int, error)
}

func NewWriteBuffer(conn io.Writer, size int, enc encoding.Encoding) *WriteBuffer {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &WriteBuffer{
		conn:       conn,
		buf:        make([]byte, size),
		UsableSize: size,
		encoder:    enc.NewEncoder(),
	}
}

func (b *WriteBuffer) Size() int      { return len(b.buf) }
func (b *WriteBuffer) SpaceLeft() int { return b.UsableSize - b.End }

func (b *WriteBuffer) ReduceUsableSize(n int) { b.UsableSize = len(b.buf) - n }
func (b *WriteBuffer) RestoreUsableSize()     { b.UsableSize = len(b.buf) }

// Clear resets the buffer to empty without sending pending bytes.
func (b *WriteBuffer) Clear() { b.Start = 0; b.End = 0 }

func (b *WriteBuffer) ensureSpace(n int) error {
	if b.SpaceLeft() >= n {
		return nil
	}
	return xerrors.Errorf("writebuf: need %d bytes, only %d available (flush first)", n, b.SpaceLeft())
}

func (b *WriteBuffer) WriteByte(v byte) error {
	if err := b.ensureSpace(1); err != nil {
		return err
	}
	b.buf[b.End] = v
	b.End++
	return nil
}

func (b *WriteBuffer) WriteInt16(v int16) error { return b.WriteUInt16(uint16(v)) }

func (b *WriteBuffer) WriteUInt16(v uint16) error {
	if err := b.ensureSpace(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b.buf[b.End:], v)
	b.End += 2
	return nil
}

func (b *WriteBuffer) WriteInt32(v int32) error { return b.WriteUInt32(uint32(v)) }

func (b *WriteBuffer) WriteUInt32(v uint32) error {
	if err := b.ensureSpace(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b.buf[b.End:], v)
	b.End += 4
	return nil
}

func (b *WriteBuffer) WriteInt64(v int64) error {
	if err := b.ensureSpace(8); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b.buf[b.End:], uint64(v))
	b.End += 8
	return nil
}

func (b *WriteBuffer) WriteSingle(v float32) error {
	return b.WriteUInt32(math.Float32bits(v))
}

func (b *WriteBuffer) WriteDouble(v float64) error {
	return b.WriteInt64(int64(math.Float64bits(v)))
}

// WriteBytes copies raw bytes verbatim (no text transcoding).
func (b *WriteBuffer) WriteBytes(p []byte) error {
	if err := b.ensureSpace(len(p)); err != nil {
		return err
	}
	b.End += copy(b.buf[b.End:], p)
	return nil
}

// WriteString encodes s with the buffer's configured text encoding.
func (b *WriteBuffer) WriteString(s string) error {
	out, err := b.encoder.String(s)
	if err != nil {
		return xerrors.Errorf("writebuf: encode string: %w", err)
	}
	return b.WriteBytes([]byte(out))
}

// WriteNullTerminatedString writes s followed by a single 0 byte.
func (b *WriteBuffer) WriteNullTerminatedString(s string) error {
	if err := b.WriteString(s); err != nil {
		return err
	}
	return b.WriteByte(0)
}

// ReserveInt32 writes a 0 placeholder and returns its offset so the
// caller can backfill it (message-length headers) once the body is
// known.
func (b *WriteBuffer) ReserveInt32() (int, error) {
	pos := b.End
	if err := b.WriteInt32(0); err != nil {
		return 0, err
	}
	return pos, nil
}

// PatchInt32 backfills a length placeholder returned by ReserveInt32.
func (b *WriteBuffer) PatchInt32(at int, v int32) {
	binary.BigEndian.PutUint32(b.buf[at:], uint32(v))
}

// Send flushes [Start, End) to the socket. If the socket reports a
// would-block condition, Send returns (false, nil) having advanced Start
// to the first unsent byte; the next Send resumes from there. A full
// send zeros Start/End and returns (true, nil).
func (b *WriteBuffer) Send() (bool, error) {
	for b.Start < b.End {
		n, err := b.conn.Write(b.buf[b.Start:b.End])
		if n > 0 {
			b.Start += n
		}
		if err != nil {
			if isWouldBlock(err) {
				return false, nil
			}
			return false, xerrors.Errorf("writebuf: write failed: %w", err)
		}
	}
	b.Start = 0
	b.End = 0
	return true, nil
}

func isWouldBlock(err error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}
