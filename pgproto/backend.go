package pgproto

import (
	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/internal/bufio"
)

// MessageHeader is a decoded backend message header: the ASCII type byte
// and the body length (excluding the type byte, including the length
// field itself per the protocol, already subtracted down to just the
// body here for caller convenience).
type MessageHeader struct {
	Type   byte
	BodyLen int32
}

// ReadMessageHeader reads the 5-byte backend message header: one type
// byte, then a 32-bit big-endian length including the length field.
func ReadMessageHeader(r *bufio.ReadBuffer) (MessageHeader, error) {
	t, err := r.ReadByte()
	if err != nil {
		return MessageHeader{}, err
	}
	length, err := r.ReadInt32()
	if err != nil {
		return MessageHeader{}, err
	}
	if length < 4 {
		return MessageHeader{}, xerrors.Errorf("pgproto: invalid message length %d for type %q", length, t)
	}
	return MessageHeader{Type: t, BodyLen: length - 4}, nil
}

// FieldDescription describes one RowDescription column.
type FieldDescription struct {
	Name                 string
	TableOID             uint32
	TableAttributeNumber uint16
	DataTypeOID          uint32
	DataTypeSize         int16
	TypeModifier         uint32
	Format               int16
}

type RowDescription struct {
	Fields []FieldDescription
}

func DecodeRowDescription(r *bufio.ReadBuffer) (*RowDescription, error) {
	n, err := r.ReadInt16()
	if err != nil {
		return nil, err
	}
	fields := make([]FieldDescription, n)
	for i := range fields {
		name, err := r.ReadNullTerminatedString()
		if err != nil {
			return nil, err
		}
		tableOID, err := r.ReadUInt32()
		if err != nil {
			return nil, err
		}
		attNum, err := r.ReadUInt16()
		if err != nil {
			return nil, err
		}
		typeOID, err := r.ReadUInt32()
		if err != nil {
			return nil, err
		}
		typLen, err := r.ReadInt16()
		if err != nil {
			return nil, err
		}
		typMod, err := r.ReadUInt32()
		if err != nil {
			return nil, err
		}
		format, err := r.ReadInt16()
		if err != nil {
			return nil, err
		}
		fields[i] = FieldDescription{name, tableOID, attNum, typeOID, typLen, typMod, format}
	}
	return &RowDescription{Fields: fields}, nil
}

// DataRow's column values. A nil entry is SQL NULL.
type DataRow struct {
	Values [][]byte
}

func DecodeDataRow(r *bufio.ReadBuffer) (*DataRow, error) {
	n, err := r.ReadInt16()
	if err != nil {
		return nil, err
	}
	values := make([][]byte, n)
	for i := range values {
		length, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		if length == -1 {
			continue
		}
		v, err := r.EnsureOrAllocateTemp(int(length))
		if err != nil {
			return nil, err
		}
		values[i] = append([]byte(nil), v...)
	}
	return &DataRow{Values: values}, nil
}

// CommandComplete carries the command tag, e.g. "INSERT 0 1", "SELECT 42".
type CommandComplete struct {
	Tag string
}

func DecodeCommandComplete(r *bufio.ReadBuffer, bodyLen int32) (*CommandComplete, error) {
	s, err := r.ReadString(int(bodyLen))
	if err != nil {
		return nil, err
	}
	// drop the trailing NUL the tag is terminated with on the wire
	if len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return &CommandComplete{Tag: s}, nil
}

type ParameterStatus struct {
	Name, Value string
}

func DecodeParameterStatus(r *bufio.ReadBuffer) (*ParameterStatus, error) {
	name, err := r.ReadNullTerminatedString()
	if err != nil {
		return nil, err
	}
	value, err := r.ReadNullTerminatedString()
	if err != nil {
		return nil, err
	}
	return &ParameterStatus{name, value}, nil
}

type BackendKeyData struct {
	ProcessID int32
	SecretKey int32
}

func DecodeBackendKeyData(r *bufio.ReadBuffer) (*BackendKeyData, error) {
	pid, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	secret, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	return &BackendKeyData{pid, secret}, nil
}

// TransactionStatus is the byte following 'Z' in ReadyForQuery.
type TransactionStatus byte

const (
	TxIdle             TransactionStatus = 'I'
	TxInTransaction    TransactionStatus = 'T'
	TxInFailedTransaction TransactionStatus = 'E'
)

func DecodeReadyForQuery(r *bufio.ReadBuffer) (TransactionStatus, error) {
	b, err := r.ReadByte()
	return TransactionStatus(b), err
}

type ParameterDescription struct {
	ParameterOIDs []uint32
}

func DecodeParameterDescription(r *bufio.ReadBuffer) (*ParameterDescription, error) {
	n, err := r.ReadInt16()
	if err != nil {
		return nil, err
	}
	oids := make([]uint32, n)
	for i := range oids {
		oids[i], err = r.ReadUInt32()
		if err != nil {
			return nil, err
		}
	}
	return &ParameterDescription{oids}, nil
}

// AuthenticationRequest carries the Int32 sub-type and, for MD5, the
// 4-byte salt that follows it.
type AuthenticationRequest struct {
	Type int32
	Salt [4]byte
}

func DecodeAuthenticationRequest(r *bufio.ReadBuffer) (*AuthenticationRequest, error) {
	t, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	req := &AuthenticationRequest{Type: t}
	if t == AuthMD5Password {
		for i := range req.Salt {
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			req.Salt[i] = b
		}
	}
	return req, nil
}

// ErrorOrNoticeFields holds 17 ErrorResponse/NoticeResponse fields
// (§4.3/§4.4/§7), decoded from a sequence of {byte fieldCode, C-string
// value} pairs terminated by a 0 byte. The 'V' field (non-localized
// severity) is not kept.
type ErrorOrNoticeFields struct {
	Severity         string
	Code             string
	Message          string
	Detail           string
	Hint             string
	Position         string
	InternalPosition string
	InternalQuery    string
	Where            string
	SchemaName       string
	TableName        string
	ColumnName       string
	DataTypeName     string
	ConstraintName   string
	File             string
	Line             string
	Routine          string
}

func decodeErrorOrNoticeFields(r *bufio.ReadBuffer) (*ErrorOrNoticeFields, error) {
	f := &ErrorOrNoticeFields{}
	for {
		code, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if code == 0 {
			return f, nil
		}
		value, err := r.ReadNullTerminatedString()
		if err != nil {
			return nil, err
		}
		switch code {
		case 'S':
			f.Severity = value
		case 'C':
			f.Code = value
		case 'M':
			f.Message = value
		case 'D':
			f.Detail = value
		case 'H':
			f.Hint = value
		case 'P':
			f.Position = value
		case 'p':
			f.InternalPosition = value
		case 'q':
			f.InternalQuery = value
		case 'W':
			f.Where = value
		case 's':
			f.SchemaName = value
		case 't':
			f.TableName = value
		case 'c':
			f.ColumnName = value
		case 'd':
			f.DataTypeName = value
		case 'n':
			f.ConstraintName = value
		case 'F':
			f.File = value
		case 'L':
			f.Line = value
		case 'R':
			f.Routine = value
		// 'V' (non-localized severity) and unknown codes are ignored.
		}
	}
}

func DecodeErrorResponse(r *bufio.ReadBuffer) (*ErrorOrNoticeFields, error) {
	return decodeErrorOrNoticeFields(r)
}

func DecodeNoticeResponse(r *bufio.ReadBuffer) (*ErrorOrNoticeFields, error) {
	return decodeErrorOrNoticeFields(r)
}
