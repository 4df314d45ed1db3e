// Package pgmock implements a small in-process PostgreSQL server for
// tests: startup handling, credential verification for cleartext, MD5 and
// SCRAM-SHA-256, and canned query results.
//
// The server side of the wire protocol is deliberately spoken through
// jackc/pgproto3 rather than this repository's own codec, so tests check
// the hand-written client against an independent implementation instead of
// against itself.
package pgmock

import (
	"crypto/md5"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
)

// AuthMode selects how the mock server authenticates clients.
type AuthMode int

const (
	// AuthTrust accepts any client without a password exchange.
	AuthTrust AuthMode = iota
	// AuthCleartext requests the password in cleartext.
	AuthCleartext
	// AuthMD5 requests a salted MD5 digest.
	AuthMD5
	// AuthSCRAM runs a full SCRAM-SHA-256 exchange.
	AuthSCRAM
)

// Response is a canned reply to one query.
type Response struct {
	// Columns, when set, produce a RowDescription before the rows.
	Columns []string
	// Rows are per-column values; a nil cell is sent as SQL NULL.
	Rows [][][]byte
	// Tag is the CommandComplete tag, e.g. "SELECT 2" or "INSERT 0 3".
	Tag string
	// Error, when set, replaces the result with an ErrorResponse. The
	// cycle still finishes with ReadyForQuery.
	Error *pgproto3.ErrorResponse
}

// Text is a convenience for building Response rows.
func Text(s string) []byte {
	return []byte(s)
}

// Config controls a Server.
type Config struct {
	Username string
	Password string
	Auth     AuthMode

	// Iterations is the SCRAM iteration count; defaults to 4096.
	Iterations int

	// OnQuery serves simple-protocol queries.
	OnQuery func(sql string) Response

	// OnExtended serves extended-protocol queries with their bound
	// parameters. Defaults to OnQuery ignoring the parameters.
	OnExtended func(sql string, params []string) Response

	// RejectStartup, when set, is sent instead of any authentication
	// request, simulating a server that refuses the connection.
	RejectStartup *pgproto3.ErrorResponse
}

// Server is a mock PostgreSQL server listening on a loopback port. It
// serves any number of connections until closed.
type Server struct {
	cfg      Config
	listener net.Listener
	wg       sync.WaitGroup
	conns    atomic.Int32
	t        testing.TB
}

// NewServer starts a Server on 127.0.0.1:0 and registers cleanup with t.
func NewServer(t testing.TB, cfg Config) *Server {
	t.Helper()
	if cfg.Iterations == 0 {
		cfg.Iterations = 4096
	}
	if cfg.OnQuery == nil {
		cfg.OnQuery = func(string) Response {
			return Response{Tag: "SELECT 0", Columns: []string{}}
		}
	}
	if cfg.OnExtended == nil {
		cfg.OnExtended = func(sql string, _ []string) Response {
			return cfg.OnQuery(sql)
		}
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	s := &Server{cfg: cfg, listener: listener, t: t}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host and Port split the listen address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() uint16 {
	_, port, _ := net.SplitHostPort(s.Addr())
	var p uint16
	fmt.Sscanf(port, "%d", &p)
	return p
}

// ConnCount returns how many connections the server has accepted. Pool
// tests use it to assert that a released connection was reused rather
// than redialed.
func (s *Server) ConnCount() int {
	return int(s.conns.Load())
}

// Close stops the listener and waits for in-flight connections.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.conns.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			// Test failures surface on the client side as protocol
			// errors; the server just drops the connection.
			_ = s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) error {
	backend := pgproto3.NewBackend(conn, conn)

	startup, err := backend.ReceiveStartupMessage()
	if err != nil {
		return fmt.Errorf("receive startup: %w", err)
	}
	if _, ok := startup.(*pgproto3.StartupMessage); !ok {
		return fmt.Errorf("unexpected startup message %T", startup)
	}

	if s.cfg.RejectStartup != nil {
		backend.Send(s.cfg.RejectStartup)
		return backend.Flush()
	}

	if err := s.authenticate(backend); err != nil {
		backend.Send(&pgproto3.ErrorResponse{
			Severity: "FATAL",
			Code:     "28P01",
			Message:  err.Error(),
		})
		return backend.Flush()
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ParameterStatus{Name: "server_version", Value: "16.3 (pgmock)"})
	backend.Send(&pgproto3.BackendKeyData{ProcessID: 42, SecretKey: 1871})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return err
	}

	return s.queryLoop(backend)
}

func (s *Server) authenticate(backend *pgproto3.Backend) error {
	switch s.cfg.Auth {
	case AuthTrust:
		return nil

	case AuthCleartext:
		backend.Send(&pgproto3.AuthenticationCleartextPassword{})
		if err := backend.Flush(); err != nil {
			return err
		}
		backend.SetAuthType(pgproto3.AuthTypeCleartextPassword)
		msg, err := backend.Receive()
		if err != nil {
			return err
		}
		pw, ok := msg.(*pgproto3.PasswordMessage)
		if !ok {
			return fmt.Errorf("expected PasswordMessage, got %T", msg)
		}
		if pw.Password != s.cfg.Password {
			return fmt.Errorf("password authentication failed for user %q", s.cfg.Username)
		}
		return nil

	case AuthMD5:
		salt := [4]byte{0x7a, 0x1c, 0x5e, 0x03}
		backend.Send(&pgproto3.AuthenticationMD5Password{Salt: salt})
		if err := backend.Flush(); err != nil {
			return err
		}
		backend.SetAuthType(pgproto3.AuthTypeMD5Password)
		msg, err := backend.Receive()
		if err != nil {
			return err
		}
		pw, ok := msg.(*pgproto3.PasswordMessage)
		if !ok {
			return fmt.Errorf("expected PasswordMessage, got %T", msg)
		}
		if pw.Password != md5Digest(s.cfg.Username, s.cfg.Password, salt) {
			return fmt.Errorf("password authentication failed for user %q", s.cfg.Username)
		}
		return nil

	case AuthSCRAM:
		return s.authenticateSCRAM(backend)

	default:
		return fmt.Errorf("unknown auth mode %d", s.cfg.Auth)
	}
}

func (s *Server) authenticateSCRAM(backend *pgproto3.Backend) error {
	scram, err := newSCRAMServer(s.cfg.Password, s.cfg.Iterations)
	if err != nil {
		return err
	}

	backend.Send(&pgproto3.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256"}})
	if err := backend.Flush(); err != nil {
		return err
	}

	backend.SetAuthType(pgproto3.AuthTypeSASL)
	msg, err := backend.Receive()
	if err != nil {
		return err
	}
	initial, ok := msg.(*pgproto3.SASLInitialResponse)
	if !ok {
		return fmt.Errorf("expected SASLInitialResponse, got %T", msg)
	}
	if initial.AuthMechanism != "SCRAM-SHA-256" {
		return fmt.Errorf("unsupported SASL mechanism %q", initial.AuthMechanism)
	}

	serverFirst, err := scram.processClientFirstMessage(string(initial.Data))
	if err != nil {
		return err
	}
	backend.Send(&pgproto3.AuthenticationSASLContinue{Data: []byte(serverFirst)})
	if err := backend.Flush(); err != nil {
		return err
	}

	backend.SetAuthType(pgproto3.AuthTypeSASLContinue)
	msg, err = backend.Receive()
	if err != nil {
		return err
	}
	final, ok := msg.(*pgproto3.SASLResponse)
	if !ok {
		return fmt.Errorf("expected SASLResponse, got %T", msg)
	}

	serverFinal, err := scram.processClientFinalMessage(string(final.Data))
	if err != nil {
		return err
	}
	backend.Send(&pgproto3.AuthenticationSASLFinal{Data: []byte(serverFinal)})
	return backend.Flush()
}

func (s *Server) queryLoop(backend *pgproto3.Backend) error {
	var pendingSQL string
	var pendingParams []string

	for {
		msg, err := backend.Receive()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			s.sendResponse(backend, s.cfg.OnQuery(m.String))
			if err := backend.Flush(); err != nil {
				return err
			}

		case *pgproto3.Parse:
			pendingSQL = m.Query
			pendingParams = nil

		case *pgproto3.Bind:
			pendingParams = make([]string, len(m.Parameters))
			for i, p := range m.Parameters {
				pendingParams[i] = string(p)
			}

		case *pgproto3.Execute:
			// Response is emitted on Sync, matching server behavior of
			// replying to the whole pipeline at once.

		case *pgproto3.Sync:
			backend.Send(&pgproto3.ParseComplete{})
			backend.Send(&pgproto3.BindComplete{})
			s.sendResponse(backend, s.cfg.OnExtended(pendingSQL, pendingParams))
			if err := backend.Flush(); err != nil {
				return err
			}

		case *pgproto3.Terminate:
			return nil

		default:
			// Ignore anything else.
		}
	}
}

func (s *Server) sendResponse(backend *pgproto3.Backend, resp Response) {
	if resp.Error != nil {
		backend.Send(resp.Error)
		backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
		return
	}

	if resp.Columns != nil {
		fields := make([]pgproto3.FieldDescription, len(resp.Columns))
		for i, name := range resp.Columns {
			fields[i] = pgproto3.FieldDescription{
				Name:         []byte(name),
				DataTypeOID:  25, // text
				DataTypeSize: -1,
				TypeModifier: -1,
			}
		}
		backend.Send(&pgproto3.RowDescription{Fields: fields})
	}
	for _, row := range resp.Rows {
		backend.Send(&pgproto3.DataRow{Values: row})
	}
	tag := resp.Tag
	if tag == "" {
		tag = "SELECT 0"
	}
	backend.Send(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
}

// md5Digest computes the MD5 auth digest the client is expected to send.
func md5Digest(username, password string, salt [4]byte) string {
	inner := fmt.Sprintf("%x", md5.Sum([]byte(password+username)))
	outer := md5.New()
	outer.Write([]byte(inner))
	outer.Write(salt[:])
	return fmt.Sprintf("md5%x", outer.Sum(nil))
}
