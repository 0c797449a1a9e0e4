package pgpool

import "golang.org/x/xerrors"

var (
	ErrPoolExhausted = xerrors.New("pgpool: timed out waiting for an available connector")
	ErrPoolClosed    = xerrors.New("pgpool: pool is closed")
)
