package pgclient

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/elefantsql/elefant/internal/pgconn"
	"github.com/elefantsql/elefant/internal/protocol"
	"github.com/elefantsql/elefant/internal/scram"
)

// Client drives one PostgreSQL connection through startup, simple query,
// and extended query, per spec.md §4.5. Not safe for concurrent use —
// the underlying pgconn.Conn isn't either.
type Client struct {
	conn  *pgconn.Conn
	stmts *statementCache

	// active is whichever ResultSets/Rows stream the last Query/Execute
	// call returned, if the caller hasn't read it to exhaustion yet —
	// drained on the next Query/Execute per spec.md §4.5's "must-drain
	// before reuse".
	active drainer

	// pendingCloses holds statement names evicted from the LRU since the
	// last Execute call; they're closed server-side on the next extended
	// query's round trip instead of opening a separate one just for that.
	pendingCloses []string

	stmtCounter int
}

// Connect performs the startup message and authentication handshake over
// an already-dialed net.Conn, then consumes ParameterStatus/BackendKeyData
// up to ReadyForQuery, per spec.md §4.5 "Startup and authentication".
func Connect(ctx context.Context, nc net.Conn, user, database, password string) (*Client, error) {
	conn := pgconn.New(nc)
	c := &Client{conn: conn, stmts: newStatementCache(defaultStatementCacheSize)}
	c.stmts.onEvict = func(name string) {
		c.pendingCloses = append(c.pendingCloses, name)
	}

	startup := protocol.StartupMessage{Parameters: []protocol.StartupParameter{
		{Name: "user", Value: user},
		{Name: "database", Value: database},
		{Name: "client_encoding", Value: "UTF8"},
	}}
	if err := pgconn.WriteFrontendMessage(conn, startup, protocol.EncodeStartup); err != nil {
		return nil, fmt.Errorf("pgclient: sending startup message: %w", err)
	}
	if err := conn.Flush(); err != nil {
		return nil, fmt.Errorf("pgclient: flushing startup message: %w", err)
	}

	if err := c.authenticate(ctx, user, password); err != nil {
		conn.Abandon()
		return nil, err
	}

	if err := c.awaitReadyForQuery(ctx); err != nil {
		conn.Abandon()
		return nil, err
	}
	return c, nil
}

// authenticate handles the single AuthenticationOk/MD5Password/SASL
// branch the server picks, per spec.md §4.5 step 2.
func (c *Client) authenticate(ctx context.Context, user, password string) error {
	msg, err := c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case protocol.AuthenticationOk:
		return nil
	case protocol.AuthenticationMD5Password:
		hash := computeMD5Password(user, password, m.Salt[:])
		if err := pgconn.WriteFrontendMessage(c.conn, protocol.PasswordMessage{Password: hash}, protocol.EncodePasswordMessage); err != nil {
			return err
		}
		if err := c.conn.Flush(); err != nil {
			return err
		}
		return c.expectAuthOk(ctx)
	case protocol.AuthenticationSASL:
		return c.runSCRAM(ctx, m.Mechanisms, user, password)
	case protocol.ErrorResponse:
		return newServerError(m.Fields)
	default:
		return &UnexpectedMessageError{Phase: "authentication", Got: msg}
	}
}

func (c *Client) expectAuthOk(ctx context.Context) error {
	msg, err := c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case protocol.AuthenticationOk:
		return nil
	case protocol.ErrorResponse:
		return newServerError(m.Fields)
	default:
		return &UnexpectedMessageError{Phase: "authentication", Got: msg}
	}
}

// runSCRAM drives scram.State across SASLInitialResponse / SASLContinue /
// SASLResponse / SASLFinal, per spec.md §4.3/§4.5.
func (c *Client) runSCRAM(ctx context.Context, mechanisms []string, user, password string) error {
	supported := false
	for _, m := range mechanisms {
		if m == scram.Mechanism {
			supported = true
			break
		}
	}
	if !supported {
		for _, m := range mechanisms {
			if m == scram.Mechanism+"-PLUS" {
				return scram.ErrChannelBindingUnsupported
			}
		}
		return fmt.Errorf("pgclient: server does not offer %s (offers %v)", scram.Mechanism, mechanisms)
	}

	state := scram.New(user, password)
	clientFirst, err := state.ClientFirst()
	if err != nil {
		return err
	}
	initial := protocol.SASLInitialResponse{Mechanism: scram.Mechanism, InitialData: clientFirst, HasInitialData: true}
	if err := pgconn.WriteFrontendMessage(c.conn, initial, protocol.EncodeSASLInitialResponse); err != nil {
		return err
	}
	if err := c.conn.Flush(); err != nil {
		return err
	}

	msg, err := c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return err
	}
	cont, ok := msg.(protocol.AuthenticationSASLContinue)
	if !ok {
		if errMsg, ok := msg.(protocol.ErrorResponse); ok {
			return newServerError(errMsg.Fields)
		}
		return &UnexpectedMessageError{Phase: "SCRAM server-first", Got: msg}
	}
	if err := state.Update(cont.Data); err != nil {
		return err
	}

	clientFinal, err := state.ClientFinal()
	if err != nil {
		return err
	}
	if err := pgconn.WriteFrontendMessage(c.conn, protocol.SASLResponse{Data: clientFinal}, protocol.EncodeSASLResponse); err != nil {
		return err
	}
	if err := c.conn.Flush(); err != nil {
		return err
	}

	msg, err = c.conn.ReadBackendMessage(ctx)
	if err != nil {
		return err
	}
	final, ok := msg.(protocol.AuthenticationSASLFinal)
	if !ok {
		if errMsg, ok := msg.(protocol.ErrorResponse); ok {
			return newServerError(errMsg.Fields)
		}
		return &UnexpectedMessageError{Phase: "SCRAM server-final", Got: msg}
	}
	if err := state.Finish(final.Outcome); err != nil {
		return err
	}

	return c.expectAuthOk(ctx)
}

// computeMD5Password computes "md5" + md5(md5(password+user)+salt), the
// same formula the teacher's internal/pool/pool.go relays for its own
// tenant-side MD5 auth.
func computeMD5Password(user, password string, salt []byte) string {
	h1 := md5.Sum([]byte(password + user))
	hex1 := hex.EncodeToString(h1[:])
	h2 := md5.Sum(append([]byte(hex1), salt...))
	return "md5" + hex.EncodeToString(h2[:])
}

// awaitReadyForQuery consumes ParameterStatus/BackendKeyData/NoticeResponse
// messages until ReadyForQuery, per spec.md §4.5 step 3.
func (c *Client) awaitReadyForQuery(ctx context.Context) error {
	for {
		msg, err := c.conn.ReadBackendMessage(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case protocol.ReadyForQuery:
			return nil
		case protocol.ParameterStatus, protocol.BackendKeyData, protocol.NoticeResponse:
			// pgconn.Conn.trackState already recorded ParameterStatus and
			// BackendKeyData; nothing further to do here.
			continue
		case protocol.ErrorResponse:
			return newServerError(m.Fields)
		default:
			return &UnexpectedMessageError{Phase: "startup", Got: msg}
		}
	}
}

// Close terminates the connection, sending a Terminate message first on a
// best-effort basis.
func (c *Client) Close() error {
	pgconn.WriteFrontendMessage(c.conn, protocol.Terminate{}, protocol.EncodeTerminate)
	c.conn.Flush()
	return c.conn.Close()
}

// BackendKey returns the process/secret key pair captured during startup,
// for building a CancelRequest on a second connection (spec.md §4.5
// "Cancellation and timeouts").
func (c *Client) BackendKey() (pgconn.BackendKeyData, bool) {
	return c.conn.BackendKey()
}

// ParameterStatus returns a GUC value reported during startup or a later
// ParameterStatus message.
func (c *Client) ParameterStatus(name string) (string, bool) {
	return c.conn.ParameterStatus(name)
}
