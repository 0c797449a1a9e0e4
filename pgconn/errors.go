package pgconn

import (
	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/pgproto"
)

// PgError is a PostgresException (§7): an ErrorResponse from the server,
// carrying the 17 fields pgproto.ErrorOrNoticeFields decodes (everything
// but 'V', the non-localized severity). SqlState is the primary discriminator;
// the connector remains usable after the Sync that follows it.
type PgError struct {
	Severity         string
	SqlState         string
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

func newPgError(f *pgproto.ErrorOrNoticeFields) *PgError {
	return &PgError{
		Severity: f.Severity, SqlState: f.Code, Message: f.Message, Detail: f.Detail,
		Hint: f.Hint, Position: f.Position, InternalPosition: f.InternalPosition,
		InternalQuery: f.InternalQuery, Where: f.Where, SchemaName: f.SchemaName,
		TableName: f.TableName, ColumnName: f.ColumnName, DataTypeName: f.DataTypeName,
		ConstraintName: f.ConstraintName, File: f.File, Line: f.Line, Routine: f.Routine,
	}
}

func (e *PgError) Error() string {
	return e.Severity + ": " + e.Message + " (SQLSTATE " + e.SqlState + ")"
}

// Class returns the first two characters of SqlState (e.g. "23" =
// integrity constraint violation), letting callers branch on a broad
// error category without a full SQLSTATE table.
func (e *PgError) Class() string {
	return sqlStateClass(e.SqlState)
}

// Notice is a NoticeResponse (§4.4): identical shape to PgError but
// dispatched to a listener rather than raised.
type Notice PgError

func newNotice(f *pgproto.ErrorOrNoticeFields) *Notice {
	return (*Notice)(newPgError(f))
}

// Sentinel error kinds (§7). Each is returned (possibly wrapped via
// xerrors.Errorf's %w) rather than panicking.
var (
	ErrProtocolError      = xerrors.New("pgconn: protocol error")
	ErrConnectionFailed   = xerrors.New("pgconn: connection failed")
	ErrUnexpectedEOF      = xerrors.New("pgconn: unexpected eof")
	ErrAuthenticationFail = xerrors.New("pgconn: authentication failed")
	ErrConnectorBusy      = xerrors.New("pgconn: connector is busy with another operation")
	ErrInvalidCast        = xerrors.New("pgconn: type handler cannot convert value")
	ErrCancelled          = xerrors.New("pgconn: operation cancelled")
	ErrReadPastEnd        = xerrors.New("pgconn: read past end of result set")
)

// IsFatal reports whether err, per §7's propagation rules, should leave
// the connector Broken rather than Ready. PgError (ErrorResponse) is not
// fatal — the connector drains to ReadyForQuery and stays usable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *PgError
	if xerrors.As(err, &pgErr) {
		return false
	}
	return true
}

// sqlStateClass returns the first two characters of a SQLSTATE, used by
// callers that want coarse-grained error classification (e.g.
// "23" = integrity constraint violation) without a full SQLSTATE table.
func sqlStateClass(sqlState string) string {
	if len(sqlState) < 2 {
		return sqlState
	}
	return sqlState[:2]
}
