// Package pgproto implements the byte layout of the PostgreSQL
// frontend/backend wire protocol, version 3 (protocol-version integer
// 196608 = 3.0). It is grounded on the wire message set of pgproto3, but
// encodes/decodes through internal/bufio's ReadBuffer/WriteBuffer rather
// than raw byte slices, since gopq's Connector drives I/O through those
// buffers directly.
package pgproto

const ProtocolVersionNumber int32 = 196608

// Frontend message type bytes.
const (
	msgBind        = 'B'
	msgClose       = 'C'
	msgDescribe    = 'D'
	msgExecute     = 'E'
	msgFlush       = 'H'
	msgParse       = 'P'
	msgPassword    = 'p'
	msgQuery       = 'Q'
	msgSync        = 'S'
	msgTerminate   = 'X'
	msgCopyData    = 'd'
	msgCopyDone    = 'c'
	msgCopyFail    = 'f'
)

// Backend message type bytes.
const (
	msgAuthentication      = 'R'
	msgBackendKeyData      = 'K'
	msgBindComplete        = '2'
	msgCloseComplete       = '3'
	msgCommandComplete     = 'C'
	msgCopyBothResponse    = 'W'
	msgCopyInResponse      = 'G'
	msgCopyOutResponse     = 'H'
	msgDataRow             = 'D'
	msgEmptyQueryResponse  = 'I'
	msgErrorResponse       = 'E'
	msgFunctionCallResp    = 'V'
	msgNoData              = 'n'
	msgNoticeResponse      = 'N'
	msgNotificationResp    = 'A'
	msgParameterDescript   = 't'
	msgParameterStatus     = 'S'
	msgParseComplete       = '1'
	msgPortalSuspended     = 's'
	msgReadyForQuery       = 'Z'
	msgRowDescription      = 'T'
)

// Authentication request sub-types carried in the Int32 immediately
// after the 'R' message's length header.
const (
	AuthOK                = 0
	AuthCleartextPassword = 3
	AuthMD5Password       = 5
	AuthSASL              = 10
	AuthSASLContinue      = 11
	AuthSASLFinal         = 12
)

// FormatCode values for Bind parameter/result format codes and
// RowDescription column formats.
const (
	TextFormat   int16 = 0
	BinaryFormat int16 = 1
)
