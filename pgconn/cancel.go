package pgconn

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/internal/bufio"
	"github.com/srhinds/gopq/pgproto"
)

// Cancel sends a CancelRequest on a brand new connection, per §4.4: the
// protocol only accepts cancellation over a secondary socket carrying the
// target's BackendKeyData, never over the connection being cancelled
// itself (that connection is busy running the statement).
func (c *Connector) Cancel(ctx context.Context) error {
	c.mu.Lock()
	pid, secret := c.backendProcessID, c.backendSecretKey
	cfg := c.cfg
	c.mu.Unlock()

	if pid == 0 {
		return xerrors.New("pgconn: connector has no BackendKeyData to cancel")
	}

	d := net.Dialer{}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return xerrors.Errorf("%w: dial %s for cancel: %v", ErrConnectionFailed, addr, err)
	}
	defer conn.Close()

	wb := bufio.NewWriteBuffer(conn, 64, nil)
	msg := &pgproto.CancelRequest{ProcessID: pid, SecretKey: secret}
	if err := msg.Encode(wb); err != nil {
		return err
	}
	for {
		ok, err := wb.Send()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}
