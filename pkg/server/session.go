package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/protocol"
	"github.com/filedepot/filedepot/pkg/repository"
)

// session drives one client's lifecycle: Handshaking → Serving → Closed.
//
// The session owns its connection and its protocol.Reader exclusively.
// The registry is the only thing it shares with other sessions, and it
// never holds the registry lock across I/O.
type session struct {
	server *Server
	conn   net.Conn
	reader *protocol.Reader

	// name starts as the server-minted provisional name and is replaced
	// by whatever the client echoes in its NAME line. The protocol
	// trusts the echoed name; see the package documentation.
	name string

	// registered is set once the connect record exists, so teardown
	// knows whether there is anything to deregister.
	registered bool

	// closeOnce guarantees teardown runs at most once per session, on
	// every exit path.
	closeOnce sync.Once
}

func newSession(srv *Server, conn net.Conn, provisionalName string) *session {
	return &session{
		server: srv,
		conn:   conn,
		reader: protocol.NewReader(conn),
		name:   provisionalName,
	}
}

// serve runs the session to completion. Errors terminate only this
// session; they never reach the accept loop or other sessions.
func (s *session) serve(ctx context.Context) {
	defer s.teardown()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Session panic",
				"name", s.name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if err := s.handshake(); err != nil {
		logger.Debug("Handshake failed", "name", s.name, "error", err)
		return
	}

	s.commandLoop(ctx)
}

// teardown is the Closed state: deregister once, close the connection
// once, on every exit path.
func (s *session) teardown() {
	s.closeOnce.Do(func() {
		if s.registered {
			s.server.registry.RegisterDisconnect(s.name)
		}
		_ = s.conn.Close()
		s.server.metrics.SetActiveSessions(s.server.registry.ActiveCount())
		logger.Info("Session closed", "name", s.name, "address", s.conn.RemoteAddr().String())
	})
}

// writeLine sends one '\n'-terminated line, applying the configured write
// deadline if any.
func (s *session) writeLine(line string) error {
	return s.write(line + "\n")
}

func (s *session) write(text string) error {
	if t := s.server.config.Timeouts.Write; t > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(t))
	}
	_, err := io.WriteString(s.conn, text)
	return err
}

// readLine reads the next command line, applying the configured read
// deadline if any.
func (s *session) readLine() (string, error) {
	if t := s.server.config.Timeouts.Read; t > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(t))
	}
	return s.reader.ReadLine()
}

// handshake runs the Handshaking state: assign the provisional name, adopt
// the client's echoed name, register the connect record, send the welcome
// line. A missing or malformed NAME line closes the session without ever
// creating a registry record.
func (s *session) handshake() error {
	if err := s.writeLine(protocol.AssignedPrefix + s.name); err != nil {
		return fmt.Errorf("send assignment: %w", err)
	}

	line, err := s.readLine()
	if err != nil {
		return fmt.Errorf("read NAME line: %w", err)
	}

	claimed, ok := strings.CutPrefix(line, protocol.NamePrefix)
	if !ok || claimed == "" {
		return &protocol.ProtocolError{Expected: "NAME", Line: line}
	}

	// The client's echoed name is adopted verbatim, even when it differs
	// from the assigned one. Deliberately permissive; do not tighten.
	s.name = claimed

	if err := s.server.registry.RegisterConnect(s.name, s.conn.RemoteAddr().String()); err != nil {
		// Only reachable when a client claims a name already on record.
		return fmt.Errorf("register session: %w", err)
	}
	s.registered = true
	s.server.metrics.SetActiveSessions(s.server.registry.ActiveCount())

	logger.Info("Session established", "name", s.name, "address", s.conn.RemoteAddr().String())

	welcome := fmt.Sprintf("%s%s. Commands: status | list | get <file> | exit", protocol.HelloPrefix, s.name)
	if err := s.writeLine(welcome); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

// commandLoop is the Serving state: read one line, dispatch, repeat until
// exit, end-of-stream, or an unrecoverable I/O failure. Command words are
// matched case-sensitively.
func (s *session) commandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.server.shutdown:
			return
		default:
		}

		line, err := s.readLine()
		if err != nil {
			if err != io.EOF {
				logger.Debug("Session read error", "name", s.name, "error", err)
			}
			return
		}

		word, arg, _ := strings.Cut(line, " ")
		switch {
		case line == "":
			// Ignored; no response.
			continue

		case line == protocol.CmdExit:
			s.server.metrics.RecordCommand(protocol.CmdExit)
			_ = s.writeLine(protocol.MsgBye)
			return

		case line == protocol.CmdStatus:
			s.server.metrics.RecordCommand(protocol.CmdStatus)
			if err := s.sendStatus(); err != nil {
				return
			}

		case line == protocol.CmdList:
			s.server.metrics.RecordCommand(protocol.CmdList)
			if err := s.sendListing(ctx); err != nil {
				return
			}

		case word == protocol.CmdGet:
			s.server.metrics.RecordCommand(protocol.CmdGet)
			if err := s.sendFile(ctx, strings.TrimSpace(arg)); err != nil {
				return
			}

		default:
			if err := s.writeLine(line + protocol.AckSuffix); err != nil {
				return
			}
		}
	}
}

// sendStatus writes the registry report, one line per record, terminated
// by a blank line the client relies on to end its multi-line read.
func (s *session) sendStatus() error {
	var b strings.Builder
	for _, line := range s.server.registry.FormatStatus() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return s.write(b.String())
}

// sendListing writes the repository listing block, terminated by a blank
// line like the status report.
func (s *session) sendListing(ctx context.Context) error {
	names, err := s.server.repo.List(ctx)
	if err != nil {
		logger.Error("Repository listing failed", "name", s.name, "error", err)
		return s.writeLine(protocol.ErrorPrefix + "Cannot list files")
	}

	var b strings.Builder
	b.WriteString("=== Available Files ===\n")
	if len(names) == 0 {
		b.WriteString("(repository is empty)\n")
	} else {
		for _, name := range names {
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
	return s.write(b.String())
}

// sendFile runs the transfer codec send path for one blob. A missing blob
// is answered with a text error line and the session continues; a wire
// failure mid-transfer is unrecoverable and closes the session.
func (s *session) sendFile(ctx context.Context, name string) error {
	if name == "" {
		return s.writeLine(protocol.ErrorPrefix + "Usage: get <filename>")
	}

	size, err := s.server.repo.Stat(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.writeLine(protocol.ErrorPrefix + "File not found")
		}
		logger.Error("Repository stat failed", "name", s.name, "file", name, "error", err)
		return s.writeLine(protocol.ErrorPrefix + "Cannot send file")
	}

	blob, err := s.server.repo.Open(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.writeLine(protocol.ErrorPrefix + "File not found")
		}
		logger.Error("Repository open failed", "name", s.name, "file", name, "error", err)
		return s.writeLine(protocol.ErrorPrefix + "Cannot send file")
	}
	defer func() { _ = blob.Close() }()

	if t := s.server.config.Timeouts.Write; t > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(t))
	}
	if err := protocol.WriteFile(s.conn, name, size, blob); err != nil {
		// The framing on the wire is already corrupt; drop the session.
		logger.Warn("File transfer failed", "name", s.name, "file", name, "error", err)
		return err
	}

	s.server.metrics.RecordFileSent(size)
	logger.Info("File sent", "name", s.name, "file", name, "size", size)
	return nil
}
