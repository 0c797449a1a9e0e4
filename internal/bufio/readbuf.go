package bufio

import (
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/xerrors"
)

// ReadBuffer is a fixed-capacity inbound byte buffer over a socket. It
// tracks two logical regions: [0, ReadPosition) already consumed by a
// decoder, and [ReadPosition, FilledBytes) available for decode. Bytes
// beyond FilledBytes have not yet been pulled from the underlying stream.
//
// UsableSize is normally equal to Size, but is temporarily reduced during
// bulk COPY decoding so a caller can reserve room at the tail of the
// buffer for the next message's framing header without reallocating.
type ReadBuffer struct {
	conn io.Reader

	buf         []byte
	ReadPosition int
	FilledBytes  int
	UsableSize   int

	decoder *incrementalDecoder
}

// NewReadBuffer allocates a ReadBuffer of the given physical size reading
// from conn. The client text encoding defaults to UTF-8; pass a non-nil
// enc to override it (§6, Encoding connection-string key).
func NewReadBuffer(conn io.Reader, size int, enc encoding.Encoding) *ReadBuffer {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &ReadBuffer{
		conn:       conn,
		buf:        make([]byte, size),
		UsableSize: size,
		decoder:    newIncrementalDecoder(enc),
	}
}

// NewReadBufferFromBytes wraps an already-complete in-memory column value
// (e.g. one DataRow field) as a ReadBuffer, so a pgtype.Handler can decode
// it with the exact same Read* methods used for the wire itself. Reading
// past the end of b is a protocol error, not a short read to retry.
func NewReadBufferFromBytes(b []byte, enc encoding.Encoding) *ReadBuffer {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &ReadBuffer{
		conn:        eofReader{},
		buf:         b,
		FilledBytes: len(b),
		UsableSize:  len(b),
		decoder:     newIncrementalDecoder(enc),
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// Size is the buffer's physical capacity.
func (b *ReadBuffer) Size() int { return len(b.buf) }

// ReadBytesLeft is the number of already-fetched, not-yet-consumed bytes.
func (b *ReadBuffer) ReadBytesLeft() int { return b.FilledBytes - b.ReadPosition }

// ReduceUsableSize temporarily shrinks UsableSize, e.g. to leave room for
// a COPY message's framing header while streaming row data in place.
func (b *ReadBuffer) ReduceUsableSize(n int) { b.UsableSize = len(b.buf) - n }

// RestoreUsableSize returns UsableSize to the buffer's full physical Size.
func (b *ReadBuffer) RestoreUsableSize() { b.UsableSize = len(b.buf) }

// Ensure guarantees at least n bytes are available for decoding starting
// at ReadPosition, pulling from the underlying stream as needed. It
// returns ErrMessageTooLarge when n > Size; use EnsureOrAllocateTemp for
// such lengths instead.
func (b *ReadBuffer) Ensure(n int) error {
	if n > len(b.buf) {
		return ErrMessageTooLarge
	}

	if b.ReadBytesLeft() >= n {
		return nil
	}

	if n+b.ReadPosition > b.UsableSize {
		b.compact()
	}

	for b.ReadBytesLeft() < n {
		read, err := b.conn.Read(b.buf[b.FilledBytes:b.UsableSize])
		if read == 0 && err == nil {
			err = io.ErrNoProgress
		}
		if err != nil {
			if err == io.EOF {
				return ErrUnexpectedEOF
			}
			return xerrors.Errorf("bufio: read failed: %w", err)
		}
		b.FilledBytes += read
	}

	return nil
}

// compact moves [ReadPosition, FilledBytes) down to [0, ·).
func (b *ReadBuffer) compact() {
	if b.ReadPosition == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.ReadPosition:b.FilledBytes])
	b.ReadPosition = 0
	b.FilledBytes = n
}

// EnsureOrAllocateTemp guarantees n bytes are available for decode. If n
// exceeds the buffer's physical Size, it allocates a larger temporary
// buffer, copies the residual unread bytes into it, fills the remainder
// from the stream, and returns it; the caller decodes from the returned
// slice and then discards it — this ReadBuffer's own storage is emptied
// in that case (ReadPosition == FilledBytes == 0 on return).
func (b *ReadBuffer) EnsureOrAllocateTemp(n int) ([]byte, error) {
	if n <= len(b.buf) {
		if err := b.Ensure(n); err != nil {
			return nil, err
		}
		out := b.buf[b.ReadPosition : b.ReadPosition+n]
		b.ReadPosition += n
		return out, nil
	}

	tmp := make([]byte, n)
	copied := copy(tmp, b.buf[b.ReadPosition:b.FilledBytes])
	b.ReadPosition = 0
	b.FilledBytes = 0

	for copied < n {
		read, err := b.conn.Read(tmp[copied:])
		if read == 0 && err == nil {
			err = io.ErrNoProgress
		}
		if err != nil {
			if err == io.EOF {
				return nil, ErrUnexpectedEOF
			}
			return nil, xerrors.Errorf("bufio: read failed: %w", err)
		}
		copied += read
	}

	return tmp, nil
}

// Skip discards the next k bytes, reading from the stream as needed.
func (b *ReadBuffer) Skip(k int) error {
	for k > 0 {
		chunk := k
		if chunk > len(b.buf) {
			chunk = len(b.buf)
		}
		if err := b.Ensure(chunk); err != nil {
			return err
		}
		b.ReadPosition += chunk
		k -= chunk
	}
	return nil
}

func (b *ReadBuffer) take(n int) []byte {
	p := b.buf[b.ReadPosition : b.ReadPosition+n]
	b.ReadPosition += n
	return p
}

func (b *ReadBuffer) ReadByte() (byte, error) {
	if err := b.Ensure(1); err != nil {
		return 0, err
	}
	return b.take(1)[0], nil
}

func (b *ReadBuffer) ReadInt16() (int16, error) {
	v, err := b.ReadUInt16()
	return int16(v), err
}

func (b *ReadBuffer) ReadUInt16() (uint16, error) {
	if err := b.Ensure(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b.take(2)), nil
}

func (b *ReadBuffer) ReadInt32() (int32, error) {
	v, err := b.ReadUInt32()
	return int32(v), err
}

func (b *ReadBuffer) ReadUInt32() (uint32, error) {
	if err := b.Ensure(4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b.take(4)), nil
}

func (b *ReadBuffer) ReadInt64() (int64, error) {
	if err := b.Ensure(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b.take(8))), nil
}

func (b *ReadBuffer) ReadSingle() (float32, error) {
	v, err := b.ReadUInt32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (b *ReadBuffer) ReadDouble() (float64, error) {
	v, err := b.ReadInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

// ReadString decodes byteLen raw bytes using the buffer's configured text
// encoding.
func (b *ReadBuffer) ReadString(byteLen int) (string, error) {
	raw, err := b.EnsureOrAllocateTemp(byteLen)
	if err != nil {
		return "", err
	}
	return b.decoder.decodeAll(raw)
}

// ReadNullTerminatedString scans to the first 0 byte, which must already
// be present in the stream within the buffer's physical Size, and
// advances past it.
func (b *ReadBuffer) ReadNullTerminatedString() (string, error) {
	start := b.ReadPosition
	for {
		for i := start; i < b.FilledBytes; i++ {
			if b.buf[i] == 0 {
				s, err := b.decoder.decodeAll(b.buf[b.ReadPosition:i])
				b.ReadPosition = i + 1
				return s, err
			}
		}
		start = b.FilledBytes
		if b.FilledBytes == len(b.buf) {
			b.compact()
			start = b.FilledBytes
		}
		if err := b.Ensure(b.FilledBytes - b.ReadPosition + 1); err != nil {
			return "", err
		}
	}
}

// ReadAllBytes copies up to len(output) bytes into output, looping
// through the underlying stream beyond the buffer's own capacity.
// readOnce causes it to return after a single underlying Read once any
// buffered bytes are exhausted, leaving the copy partial.
func (b *ReadBuffer) ReadAllBytes(output []byte, readOnce bool) (int, error) {
	total := 0
	for total < len(output) {
		if b.ReadBytesLeft() > 0 {
			n := copy(output[total:], b.buf[b.ReadPosition:b.FilledBytes])
			b.ReadPosition += n
			total += n
			continue
		}

		n, err := b.conn.Read(output[total:])
		if err != nil {
			if err == io.EOF {
				return total, ErrUnexpectedEOF
			}
			return total, xerrors.Errorf("bufio: read failed: %w", err)
		}
		total += n
		if readOnce {
			return total, nil
		}
	}
	return total, nil
}

// ReadAllChars streams up to byteCount raw bytes through the buffer's
// incremental text decoder, producing at most charCount runes worth of
// decoded text. Partial multibyte sequences at a chunk boundary are
// carried across calls by the underlying incrementalDecoder.
func (b *ReadBuffer) ReadAllChars(byteCount, charCount int) (string, int, error) {
	var out []rune
	remaining := byteCount
	chunk := make([]byte, 0, 4096)

	for remaining > 0 && len(out) < charCount {
		n := remaining
		if n > cap(chunk) {
			n = cap(chunk)
		}
		if left := charCount - len(out); n > left {
			n = left
		}
		chunk = chunk[:n]
		read, err := b.ReadAllBytes(chunk, true)
		if err != nil {
			return string(out), byteCount - remaining, err
		}
		remaining -= read

		decoded, err := b.decoder.decodeIncremental(chunk[:read], remaining == 0)
		if err != nil {
			return string(out), byteCount - remaining, err
		}
		out = append(out, []rune(decoded)...)
	}

	return string(out), byteCount - remaining, nil
}
