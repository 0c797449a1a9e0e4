package command

import "golang.org/x/xerrors"

var (
	ErrEmptySQL                     = xerrors.New("command: statement SQL must not be empty")
	ErrOutputParameterNotSupported  = xerrors.New("command: only Input-direction parameters are supported by the core")
	ErrNoStatements                 = xerrors.New("command: a command must contain at least one statement")
)
