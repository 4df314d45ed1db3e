// Package client implements a PostgreSQL client on a from-scratch wire
// protocol codec: the startup/authentication handshake (trust, cleartext,
// MD5, SCRAM-SHA-256) and text-mode query execution over the simple and
// extended query sub-protocols.
package client

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"time"

	"github.com/pgdial/pgdial/pkg/params"
	"github.com/pgdial/pgdial/pkg/pgwire"
	"github.com/pgdial/pgdial/pkg/scram"
)

// handshakeState tracks progress through the startup exchange.
type handshakeState int

const (
	stateAwaitingAuthRequest handshakeState = iota
	stateAuthenticating
	stateAwaitingReady
	stateReady
	stateFailed
)

func (s handshakeState) String() string {
	switch s {
	case stateAwaitingAuthRequest:
		return "awaiting-auth-request"
	case stateAuthenticating:
		return "authenticating"
	case stateAwaitingReady:
		return "awaiting-ready"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Conn is a single authenticated connection. A Conn exclusively owns its
// stream; all protocol I/O is strictly sequential (send a request, read
// until ReadyForQuery), so a Conn must not be used from two goroutines at
// once. Pool checkout enforces that for pooled use.
type Conn struct {
	cfg    Config
	stream io.ReadWriteCloser
	codec  *pgwire.Codec
	log    *slog.Logger

	ready  bool
	closed bool

	// serverParams holds the last-reported value of each runtime parameter
	// the server announced over ParameterStatus messages.
	serverParams params.ParameterStatuses

	// txStatus is the last ReadyForQuery status byte: 'I', 'T', or 'E'.
	txStatus byte
}

// Dial opens a plain TCP connection to cfg's address and performs the
// startup handshake. For TLS or any other transport, establish the stream
// yourself and call Connect.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, wrapError(ConnectionError, "dial "+cfg.Addr(), err)
	}

	conn, err := Connect(ctx, nc, cfg)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return conn, nil
}

// Connect performs the startup handshake over a caller-supplied stream and
// returns a Conn that is valid for queries. On any error the stream is in
// an indeterminate protocol state and must be discarded by the caller;
// Connect does not close it.
func Connect(ctx context.Context, stream io.ReadWriteCloser, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn := &Conn{
		cfg:          cfg,
		stream:       stream,
		codec:        pgwire.NewCodec(stream),
		serverParams: params.New(),
		log: cfg.Logger.With(
			slog.String("host", cfg.Host),
			slog.String("database", cfg.Database),
			slog.String("user", cfg.Credentials.Username()),
		),
	}

	restore, err := conn.applyDeadline(ctx)
	if err != nil {
		return nil, err
	}
	defer restore()

	start := time.Now()
	if err := conn.handshake(); err != nil {
		cfg.Metrics.RecordConnect(cfg.Database, time.Since(start).Seconds(), false)
		return nil, err
	}
	cfg.Metrics.RecordConnect(cfg.Database, time.Since(start).Seconds(), true)

	conn.ready = true
	conn.log.Debug("connection ready", slog.Duration("handshake", time.Since(start)))
	return conn, nil
}

// handshake drives the startup state machine to Ready or Failed.
//
// All SCRAM state lives in the local conversation value and is discarded
// when this function returns, success or not; nothing handshake-scoped is
// retained on the Conn.
func (c *Conn) handshake() error {
	params := []pgwire.StartupParam{
		{Key: "application_name", Value: c.cfg.ApplicationName},
		{Key: "user", Value: c.cfg.Credentials.Username()},
		{Key: "database", Value: c.cfg.Database},
	}
	if err := c.codec.WriteStartup(pgwire.StartupPayload(params)); err != nil {
		return wrapError(ConnectionError, "send startup message", err)
	}

	state := stateAwaitingAuthRequest
	var conversation *scram.Conversation

	for {
		msg, err := c.codec.ReadMessage()
		if err != nil {
			return wrapError(ProtocolError, "read handshake message", err)
		}

		switch msg.Type {
		case pgwire.MsgServerAuth:
			req, err := pgwire.ParseAuthRequest(msg.Body)
			if err != nil {
				return wrapError(ProtocolError, "parse auth request", err)
			}

			switch req.Code {
			case pgwire.AuthOK:
				state = stateAwaitingReady

			case pgwire.AuthCleartextPassword:
				if err := c.codec.WriteMessage(pgwire.MsgClientPassword,
					pgwire.PasswordPayload(c.cfg.Credentials.Password())); err != nil {
					return wrapError(ConnectionError, "send password", err)
				}
				state = stateAwaitingAuthRequest

			case pgwire.AuthMD5Password:
				if len(req.Data) < 4 {
					return newError(ProtocolError, "md5 auth request missing salt")
				}
				digest := md5Password(c.cfg.Credentials, [4]byte(req.Data[:4]))
				if err := c.codec.WriteMessage(pgwire.MsgClientPassword,
					pgwire.PasswordPayload(digest)); err != nil {
					return wrapError(ConnectionError, "send md5 password", err)
				}
				state = stateAwaitingAuthRequest

			case pgwire.AuthSASL:
				mechs := pgwire.ParseSASLMechanisms(req.Data)
				if !slices.Contains(mechs, scram.Mechanism) {
					return newError(ProtocolError,
						fmt.Sprintf("server offered no supported SASL mechanism (got %v)", mechs))
				}
				conversation, err = scram.NewConversation(
					c.cfg.Credentials.Username(), c.cfg.Credentials.Password())
				if err != nil {
					return wrapError(OtherError, "initialize SCRAM", err)
				}
				if err := c.codec.WriteMessage(pgwire.MsgClientPassword,
					pgwire.SASLInitialResponsePayload(scram.Mechanism, conversation.ClientFirstMessage())); err != nil {
					return wrapError(ConnectionError, "send SASL initial response", err)
				}
				state = stateAuthenticating

			case pgwire.AuthSASLContinue:
				if conversation == nil {
					return newError(ProtocolError, "SASLContinue without SASL exchange in progress")
				}
				clientFinal, err := conversation.HandleServerFirst(string(req.Data))
				if err != nil {
					return wrapError(ProtocolError, "SCRAM server-first-message", err)
				}
				if err := c.codec.WriteMessage(pgwire.MsgClientPassword,
					pgwire.SASLResponsePayload(clientFinal)); err != nil {
					return wrapError(ConnectionError, "send SASL response", err)
				}
				state = stateAuthenticating

			case pgwire.AuthSASLFinal:
				if conversation == nil {
					return newError(ProtocolError, "SASLFinal without SASL exchange in progress")
				}
				if err := conversation.VerifyServerFinal(string(req.Data)); err != nil {
					// Signature mismatch is fatal: the server failed to
					// prove knowledge of the password verifier. No retry.
					return wrapError(ProtocolError, "SCRAM server-final-message", err)
				}
				state = stateAwaitingReady

			default:
				return newError(ProtocolError,
					fmt.Sprintf("unsupported auth method %d", req.Code))
			}

		case pgwire.MsgServerErrorResponse:
			state = stateFailed
			pgErr := pgwire.ParseErrorResponse(msg.Body)
			c.log.Warn("handshake rejected by server",
				slog.String("state", state.String()),
				slog.String("sqlstate", pgErr.Code),
				slog.String("message", pgErr.Message))
			return wrapError(ProtocolError, "server refused connection", pgErr)

		case pgwire.MsgServerReadyForQuery:
			c.txStatus = pgwire.ParseReadyForQuery(msg.Body)
			state = stateReady
			return nil

		case pgwire.MsgServerParameterStatus:
			if name, value, err := pgwire.ParseParameterStatus(msg.Body); err == nil {
				c.serverParams.Set(name, value)
			}

		case pgwire.MsgServerBackendKeyData, pgwire.MsgServerNoticeResponse:
			// Read and discarded while awaiting auth/ready.

		default:
			// Unrelated tags are tolerated during startup.
		}
	}
}

// md5Password computes "md5" + hex(md5(hex(md5(password + username)) + salt)).
func md5Password(creds Credentials, salt [4]byte) string {
	inner := fmt.Sprintf("%x", md5.Sum([]byte(creds.Password()+creds.Username())))
	outer := md5.New()
	outer.Write([]byte(inner))
	outer.Write(salt[:])
	return fmt.Sprintf("md5%x", outer.Sum(nil))
}

// Ready reports whether the handshake completed and the connection can run
// queries.
func (c *Conn) Ready() bool {
	return c.ready && !c.closed
}

// ServerParameter returns the last value the server reported for a runtime
// parameter such as params.ParamServerVersion or params.ParamTimeZone.
func (c *Conn) ServerParameter(name string) (string, bool) {
	return c.serverParams.Get(name)
}

// ServerVersion returns the server_version reported during startup, or ""
// for a connection that has not completed the handshake.
func (c *Conn) ServerVersion() string {
	return c.serverParams.ServerVersion()
}

// TxStatus returns the last transaction status byte reported by the server.
func (c *Conn) TxStatus() byte {
	return c.txStatus
}

// Config returns the configuration this connection was created with.
func (c *Conn) Config() Config {
	return c.cfg
}

// Close sends Terminate and shuts down the stream. Safe to call twice.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.ready = false
	// Best effort: the server closes the socket on Terminate anyway.
	_ = c.codec.WriteMessage(pgwire.MsgClientTerminate, nil)
	if err := c.stream.Close(); err != nil {
		return wrapError(ConnectionError, "close stream", err)
	}
	c.log.Debug("connection closed")
	return nil
}

// deadliner is the optional transport capability used to bind a context
// deadline to socket I/O. net.Conn and tls.Conn both implement it.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// applyDeadline binds ctx's deadline (if any) to the stream and returns a
// restore function clearing it. Streams without deadline support get a
// pre-flight ctx.Err check only.
func (c *Conn) applyDeadline(ctx context.Context) (restore func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(TimeoutError, "context done before I/O", err)
	}
	d, ok := c.stream.(deadliner)
	if !ok {
		return func() {}, nil
	}
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return func() {}, nil
	}
	if err := d.SetDeadline(deadline); err != nil {
		return nil, wrapError(ConnectionError, "set deadline", err)
	}
	return func() { _ = d.SetDeadline(time.Time{}) }, nil
}
