package pgproto

import (
	"github.com/srhinds/gopq/internal/bufio"
)

// Parse corresponds to the 'P' frontend message: prepared-statement name
// (empty for unnamed), SQL text, and the caller-supplied parameter OIDs
// (0 entries means "let the server infer every parameter's type").
type Parse struct {
	StatementName string
	SQL           string
	ParameterOIDs []uint32
}

func (m *Parse) Encode(w *bufio.WriteBuffer) error {
	if err := w.WriteByte(msgParse); err != nil {
		return err
	}
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.StatementName); err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.SQL); err != nil {
		return err
	}
	if err := w.WriteInt16(int16(len(m.ParameterOIDs))); err != nil {
		return err
	}
	for _, oid := range m.ParameterOIDs {
		if err := w.WriteUInt32(oid); err != nil {
			return err
		}
	}
	patchLength(w, lenAt)
	return nil
}

// Bind corresponds to the 'B' frontend message. Parameters carries the
// already-encoded wire bytes for each input parameter; a nil entry
// encodes as SQL NULL (length -1).
type Bind struct {
	DestinationPortal    string
	StatementName        string
	ParameterFormatCodes []int16
	Parameters           [][]byte
	ResultFormatCodes    []int16
}

func (m *Bind) Encode(w *bufio.WriteBuffer) error {
	if err := w.WriteByte(msgBind); err != nil {
		return err
	}
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.DestinationPortal); err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.StatementName); err != nil {
		return err
	}

	if err := w.WriteInt16(int16(len(m.ParameterFormatCodes))); err != nil {
		return err
	}
	for _, fc := range m.ParameterFormatCodes {
		if err := w.WriteInt16(fc); err != nil {
			return err
		}
	}

	if err := w.WriteInt16(int16(len(m.Parameters))); err != nil {
		return err
	}
	for _, p := range m.Parameters {
		if p == nil {
			if err := w.WriteInt32(-1); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteInt32(int32(len(p))); err != nil {
			return err
		}
		if err := w.WriteBytes(p); err != nil {
			return err
		}
	}

	if err := w.WriteInt16(int16(len(m.ResultFormatCodes))); err != nil {
		return err
	}
	for _, fc := range m.ResultFormatCodes {
		if err := w.WriteInt16(fc); err != nil {
			return err
		}
	}

	patchLength(w, lenAt)
	return nil
}

// DescribeTarget distinguishes a prepared statement from a portal in the
// Describe and Close messages.
type DescribeTarget byte

const (
	DescribeStatement DescribeTarget = 'S'
	DescribePortal     DescribeTarget = 'P'
)

type Describe struct {
	Target DescribeTarget
	Name   string
}

func (m *Describe) Encode(w *bufio.WriteBuffer) error {
	if err := w.WriteByte(msgDescribe); err != nil {
		return err
	}
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteByte(byte(m.Target)); err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.Name); err != nil {
		return err
	}
	patchLength(w, lenAt)
	return nil
}

type Close struct {
	Target DescribeTarget
	Name   string
}

func (m *Close) Encode(w *bufio.WriteBuffer) error {
	if err := w.WriteByte(msgClose); err != nil {
		return err
	}
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteByte(byte(m.Target)); err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.Name); err != nil {
		return err
	}
	patchLength(w, lenAt)
	return nil
}

// Execute corresponds to the 'E' frontend message. MaxRows is honored and
// passed through verbatim (§9 open question: the spec resolves the
// source's commented-out assignment by always encoding it).
type Execute struct {
	Portal  string
	MaxRows int32
}

func (m *Execute) Encode(w *bufio.WriteBuffer) error {
	if err := w.WriteByte(msgExecute); err != nil {
		return err
	}
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.Portal); err != nil {
		return err
	}
	if err := w.WriteInt32(m.MaxRows); err != nil {
		return err
	}
	patchLength(w, lenAt)
	return nil
}

type Sync struct{}

func (Sync) Encode(w *bufio.WriteBuffer) error { return encodeHeaderOnly(w, msgSync) }

type Flush struct{}

func (Flush) Encode(w *bufio.WriteBuffer) error { return encodeHeaderOnly(w, msgFlush) }

type Terminate struct{}

func (Terminate) Encode(w *bufio.WriteBuffer) error { return encodeHeaderOnly(w, msgTerminate) }

// Query corresponds to the 'Q' simple-query message: a single SQL string
// that may contain multiple ';'-separated statements, outside the
// extended-query pipeline entirely (SPEC_FULL §4.9 QuerySimple).
type Query struct {
	SQL string
}

func (m *Query) Encode(w *bufio.WriteBuffer) error {
	if err := w.WriteByte(msgQuery); err != nil {
		return err
	}
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.SQL); err != nil {
		return err
	}
	patchLength(w, lenAt)
	return nil
}

// StartupMessage has no type byte and a non-standard header: Int32
// length, Int32 protocol version, then C-string key/value pairs,
// terminated by a trailing 0 byte.
type StartupMessage struct {
	Parameters map[string]string
}

func (m *StartupMessage) Encode(w *bufio.WriteBuffer) error {
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteInt32(ProtocolVersionNumber); err != nil {
		return err
	}
	for k, v := range m.Parameters {
		if err := w.WriteNullTerminatedString(k); err != nil {
			return err
		}
		if err := w.WriteNullTerminatedString(v); err != nil {
			return err
		}
	}
	if err := w.WriteByte(0); err != nil {
		return err
	}
	patchLength(w, lenAt)
	return nil
}

// PasswordMessage corresponds to the 'p' frontend message. In response to
// an MD5 or SCRAM challenge, Password carries the already-computed
// response value rather than the cleartext password.
type PasswordMessage struct {
	Password string
}

func (m *PasswordMessage) Encode(w *bufio.WriteBuffer) error {
	if err := w.WriteByte(msgPassword); err != nil {
		return err
	}
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteNullTerminatedString(m.Password); err != nil {
		return err
	}
	patchLength(w, lenAt)
	return nil
}

// CancelRequest is sent on the secondary cancellation connection and has
// a fixed, non-standard header like StartupMessage (no type byte).
type CancelRequest struct {
	ProcessID int32
	SecretKey int32
}

const cancelRequestCode int32 = 80877102

func (m *CancelRequest) Encode(w *bufio.WriteBuffer) error {
	lenAt, err := w.ReserveInt32()
	if err != nil {
		return err
	}
	if err := w.WriteInt32(cancelRequestCode); err != nil {
		return err
	}
	if err := w.WriteInt32(m.ProcessID); err != nil {
		return err
	}
	if err := w.WriteInt32(m.SecretKey); err != nil {
		return err
	}
	patchLength(w, lenAt)
	return nil
}

func encodeHeaderOnly(w *bufio.WriteBuffer, t byte) error {
	if err := w.WriteByte(t); err != nil {
		return err
	}
	if err := w.WriteInt32(4); err != nil {
		return err
	}
	return nil
}

// patchLength backfills the length header reserved at lenAt with the
// number of bytes written since (including the length field itself).
func patchLength(w *bufio.WriteBuffer, lenAt int) {
	w.PatchInt32(lenAt, int32(w.End-lenAt))
}
