package pgconn

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/xerrors"

	"github.com/srhinds/gopq/gopqlog"
	"github.com/srhinds/gopq/internal/bufio"
	"github.com/srhinds/gopq/pgproto"
)

const bufferSize = 8192

// Open establishes TCP (no SSL negotiation is attempted), sends
// StartupMessage, and loops reading backend messages until the first
// ReadyForQuery (§4.4).
func (c *Connector) Open(ctx context.Context) error {
	c.setState(StateConnecting)

	d := net.Dialer{}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.setState(StateBroken)
		return xerrors.Errorf("%w: dial %s: %v", ErrConnectionFailed, addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	enc := c.textEncodingFor(c.cfg.Encoding)
	c.rb = bufio.NewReadBuffer(conn, bufferSize, enc)
	c.wb = bufio.NewWriteBuffer(conn, bufferSize, enc)
	c.mu.Unlock()

	if err := c.sendStartup(); err != nil {
		return c.breakConnector(err)
	}

	if err := c.startupLoop(); err != nil {
		return c.breakConnector(err)
	}

	c.mu.Lock()
	c.logger = gopqlog.WithConnector(c.logger, c.backendProcessID)
	c.mu.Unlock()

	c.setState(StateReady)
	c.logger.Debug("connector ready")
	return nil
}

// pgEncodingAliases maps the server_encoding/client_encoding names
// PostgreSQL uses (§6 External Interface) to the IANA/HTML5 names
// golang.org/x/text/encoding/htmlindex looks up by. Unlisted names fall
// back to UTF-8 passthrough with a warning rather than silently
// mistranscoding.
var pgEncodingAliases = map[string]string{
	"UTF8":    "utf-8",
	"LATIN1":  "iso-8859-1",
	"LATIN2":  "iso-8859-2",
	"LATIN9":  "iso-8859-15",
	"WIN1250": "windows-1250",
	"WIN1251": "windows-1251",
	"WIN1252": "windows-1252",
	"KOI8R":   "koi8-r",
	"KOI8U":   "koi8-u",
}

// textEncodingFor resolves a configured Encoding name to the decoder
// ReadBuffer/WriteBuffer transcode through, per §4.1's pluggable client
// encoding. nil (UTF-8 passthrough, bufio's own default) covers an empty
// name, SQL_ASCII (a strict ASCII subset of UTF-8), and anything
// unrecognized; UTF8 resolves through the alias table to x/text's UTF-8
// encoding.
func (c *Connector) textEncodingFor(name string) encoding.Encoding {
	if name == "" || name == "SQL_ASCII" {
		return nil
	}
	alias, ok := pgEncodingAliases[strings.ToUpper(name)]
	if !ok {
		c.logger.Warn("unrecognized client encoding, using UTF-8", "encoding", name)
		return nil
	}
	enc, err := htmlindex.Get(alias)
	if err != nil {
		c.logger.Warn("client encoding lookup failed, using UTF-8", "encoding", name, "error", err)
		return nil
	}
	return enc
}

func (c *Connector) sendStartup() error {
	msg := &pgproto.StartupMessage{Parameters: c.cfg.StartupMap()}
	if err := msg.Encode(c.wb); err != nil {
		return err
	}
	return c.flush()
}

func (c *Connector) flush() error {
	for {
		ok, err := c.wb.Send()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

func (c *Connector) startupLoop() error {
	for {
		hdr, err := pgproto.ReadMessageHeader(c.rb)
		if err != nil {
			return err
		}

		switch hdr.Type {
		case 'R':
			authReq, err := pgproto.DecodeAuthenticationRequest(c.rb)
			if err != nil {
				return err
			}
			if err := c.handleAuthentication(authReq); err != nil {
				return err
			}
		case 'S':
			ps, err := pgproto.DecodeParameterStatus(c.rb)
			if err != nil {
				return err
			}
			c.parameterStatuses[ps.Name] = ps.Value
		case 'K':
			bkd, err := pgproto.DecodeBackendKeyData(c.rb)
			if err != nil {
				return err
			}
			c.backendProcessID = bkd.ProcessID
			c.backendSecretKey = bkd.SecretKey
		case 'Z':
			status, err := pgproto.DecodeReadyForQuery(c.rb)
			if err != nil {
				return err
			}
			c.txStatus = TransactionStatus(status)
			return nil
		case 'E':
			f, err := pgproto.DecodeErrorResponse(c.rb)
			if err != nil {
				return err
			}
			return newPgError(f)
		default:
			if err := c.rb.Skip(int(hdr.BodyLen)); err != nil {
				return err
			}
		}
	}
}

func (c *Connector) handleAuthentication(req *pgproto.AuthenticationRequest) error {
	switch req.Type {
	case pgproto.AuthOK:
		return nil
	case pgproto.AuthCleartextPassword:
		return c.sendPassword(c.cfg.Password)
	case pgproto.AuthMD5Password:
		salt := string(req.Salt[:])
		digested := "md5" + hexMD5(hexMD5(c.cfg.Password+c.cfg.User)+salt)
		return c.sendPassword(digested)
	default:
		return xerrors.Errorf("%w: unsupported authentication type %d", ErrAuthenticationFail, req.Type)
	}
}

func (c *Connector) sendPassword(password string) error {
	msg := &pgproto.PasswordMessage{Password: password}
	if err := msg.Encode(c.wb); err != nil {
		return err
	}
	return c.flush()
}

func hexMD5(s string) string {
	hash := md5.New()
	io.WriteString(hash, s)
	return hex.EncodeToString(hash.Sum(nil))
}
