package server

import (
	"context"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/protocol"
	"github.com/filedepot/filedepot/pkg/repository"
	"github.com/filedepot/filedepot/pkg/repository/memory"
)

func TestMain(m *testing.M) {
	logger.InitWithWriter(io.Discard, "ERROR", "text", false)
	os.Exit(m.Run())
}

// startServer runs a server on an ephemeral port and returns its address.
func startServer(t *testing.T, cfg Config, repo repository.Repository) (*Server, string) {
	t.Helper()

	cfg.Host = "127.0.0.1"
	if repo == nil {
		repo = memory.New()
	}
	srv := New(cfg, repo, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return srv, srv.Addr()
}

// testConn is a raw protocol-level client for exercising the server.
type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *protocol.Reader
}

func dialRaw(t *testing.T, addr string) *testConn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return &testConn{t: t, conn: conn, reader: protocol.NewReader(conn)}
}

func (c *testConn) readLine() string {
	c.t.Helper()
	line, err := c.reader.ReadLine()
	if err != nil {
		c.t.Fatalf("read line: %v", err)
	}
	return line
}

func (c *testConn) sendLine(line string) {
	c.t.Helper()
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

// handshake completes the join flow, echoing the assigned name back.
func (c *testConn) handshake() string {
	c.t.Helper()

	assigned := c.readLine()
	name, ok := strings.CutPrefix(assigned, protocol.AssignedPrefix)
	if !ok {
		c.t.Fatalf("expected ASSIGNED line, got %q", assigned)
	}
	c.sendLine(protocol.NamePrefix + name)

	hello := c.readLine()
	if !strings.HasPrefix(hello, protocol.HelloPrefix) {
		c.t.Fatalf("expected HELLO line, got %q", hello)
	}
	return name
}

// readBlock reads lines until the blank terminator.
func (c *testConn) readBlock() []string {
	c.t.Helper()
	var lines []string
	for {
		line := c.readLine()
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

func TestHandshake(t *testing.T) {
	_, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	assigned := c.readLine()
	if assigned != "ASSIGNED Client01" {
		t.Errorf("first line = %q, want %q", assigned, "ASSIGNED Client01")
	}

	c.sendLine("NAME Client01")
	hello := c.readLine()
	want := "HELLO Client01. Commands: status | list | get <file> | exit"
	if hello != want {
		t.Errorf("welcome = %q, want %q", hello, want)
	}
}

func TestHandshakeAdoptsClaimedName(t *testing.T) {
	srv, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	c.readLine() // ASSIGNED Client01
	c.sendLine("NAME Custom")

	hello := c.readLine()
	if !strings.HasPrefix(hello, "HELLO Custom.") {
		t.Errorf("welcome = %q, want HELLO Custom. prefix", hello)
	}

	if srv.Registry().ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d, want 1", srv.Registry().ActiveCount())
	}
	if got := srv.Registry().Snapshot()[0].Name; got != "Custom" {
		t.Errorf("registered name = %q, want Custom", got)
	}
}

func TestHandshakeMalformedName(t *testing.T) {
	srv, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	c.readLine()
	c.sendLine("bogus line")

	// Session closes without ever registering.
	if _, err := c.reader.ReadLine(); err == nil {
		t.Error("expected connection close after malformed NAME line")
	}
	waitFor(t, func() bool { return srv.Registry().ActiveCount() == 0 })
	if len(srv.Registry().Snapshot()) != 0 {
		t.Error("malformed handshake must not leave a registry record")
	}
}

func TestDuplicateClaimedName(t *testing.T) {
	_, addr := startServer(t, Config{}, nil)

	first := dialRaw(t, addr)
	first.readLine()
	first.sendLine("NAME Shared")
	first.readLine()

	second := dialRaw(t, addr)
	second.readLine()
	second.sendLine("NAME Shared")

	if _, err := second.reader.ReadLine(); err == nil {
		t.Error("expected connection close for duplicate claimed name")
	}
}

func TestEchoAck(t *testing.T) {
	_, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	c.handshake()

	c.sendLine("hello there")
	if got := c.readLine(); got != "hello there ACK" {
		t.Errorf("echo = %q, want %q", got, "hello there ACK")
	}
}

func TestEmptyLineIgnored(t *testing.T) {
	_, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	c.handshake()

	// An empty command gets no response; the next command's response is
	// the first thing on the wire.
	c.sendLine("")
	c.sendLine("ping")
	if got := c.readLine(); got != "ping ACK" {
		t.Errorf("response after empty line = %q, want %q", got, "ping ACK")
	}
}

func TestCommandsAreCaseSensitive(t *testing.T) {
	_, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	c.handshake()

	// Uppercase LIST is not the list command; it falls through to echo.
	c.sendLine("LIST")
	if got := c.readLine(); got != "LIST ACK" {
		t.Errorf("LIST response = %q, want %q", got, "LIST ACK")
	}
}

func TestExit(t *testing.T) {
	srv, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	c.handshake()

	c.sendLine("exit")
	if got := c.readLine(); got != "BYE" {
		t.Errorf("exit response = %q, want BYE", got)
	}
	if _, err := c.reader.ReadLine(); err != io.EOF {
		t.Errorf("expected EOF after BYE, got %v", err)
	}

	waitFor(t, func() bool { return srv.Registry().ActiveCount() == 0 })
	rec := srv.Registry().Snapshot()[0]
	if rec.Active || rec.DisconnectedAt.IsZero() {
		t.Errorf("record after exit: %+v", rec)
	}
}

func TestStatusReport(t *testing.T) {
	_, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	name := c.handshake()

	c.sendLine("status")
	lines := c.readBlock()
	if len(lines) != 2 || lines[0] != "=== Server Cache ===" {
		t.Fatalf("status block = %q", lines)
	}
	if !strings.HasPrefix(lines[1], name+" [ACTIVE] | addr=") {
		t.Errorf("status line = %q", lines[1])
	}
}

func TestListing(t *testing.T) {
	t.Run("empty repository", func(t *testing.T) {
		_, addr := startServer(t, Config{}, memory.New())

		c := dialRaw(t, addr)
		c.handshake()
		c.sendLine("list")

		lines := c.readBlock()
		want := []string{"=== Available Files ===", "(repository is empty)"}
		if len(lines) != 2 || lines[0] != want[0] || lines[1] != want[1] {
			t.Errorf("listing = %q, want %q", lines, want)
		}
	})

	t.Run("sorted names", func(t *testing.T) {
		repo := memory.New()
		repo.Put("zebra.txt", []byte("z"))
		repo.Put("alpha.txt", []byte("a"))
		_, addr := startServer(t, Config{}, repo)

		c := dialRaw(t, addr)
		c.handshake()
		c.sendLine("list")

		lines := c.readBlock()
		want := []string{"=== Available Files ===", "alpha.txt", "zebra.txt"}
		if len(lines) != 3 || lines[1] != want[1] || lines[2] != want[2] {
			t.Errorf("listing = %q, want %q", lines, want)
		}
	})
}

func TestGet(t *testing.T) {
	content := []byte("The quick brown fox jumps over the lazy dog.")
	repo := memory.New()
	repo.Put("fox.txt", content)
	_, addr := startServer(t, Config{}, repo)

	c := dialRaw(t, addr)
	c.handshake()

	t.Run("missing argument", func(t *testing.T) {
		c.sendLine("get")
		if got := c.readLine(); got != "ERROR Usage: get <filename>" {
			t.Errorf("response = %q", got)
		}
		c.sendLine("get   ")
		if got := c.readLine(); got != "ERROR Usage: get <filename>" {
			t.Errorf("whitespace argument response = %q", got)
		}
	})

	t.Run("missing file keeps session alive", func(t *testing.T) {
		c.sendLine("get nope.txt")
		if got := c.readLine(); got != "ERROR File not found" {
			t.Errorf("response = %q", got)
		}
		c.sendLine("still here")
		if got := c.readLine(); got != "still here ACK" {
			t.Errorf("session dead after missing file: %q", got)
		}
	})

	t.Run("download", func(t *testing.T) {
		c.sendLine("get fox.txt")

		sizeLine := c.readLine()
		size, err := protocol.ParseSizeLine(sizeLine)
		if err != nil {
			t.Fatalf("size line %q: %v", sizeLine, err)
		}
		if size != int64(len(content)) {
			t.Fatalf("declared size = %d, want %d", size, len(content))
		}

		header, err := protocol.ReadFileHeader(c.reader, size)
		if err != nil {
			t.Fatalf("ReadFileHeader() error = %v", err)
		}
		if header.Name != "fox.txt" {
			t.Errorf("header name = %q", header.Name)
		}

		var payload strings.Builder
		if _, err := protocol.CopyPayload(&payload, c.reader, size); err != nil {
			t.Fatalf("CopyPayload() error = %v", err)
		}
		if payload.String() != string(content) {
			t.Errorf("payload = %q", payload.String())
		}

		// The stream pivots cleanly back to text mode.
		c.sendLine("after download")
		if got := c.readLine(); got != "after download ACK" {
			t.Errorf("post-download echo = %q", got)
		}
	})
}

func TestAdmission(t *testing.T) {
	srv, addr := startServer(t, Config{MaxClients: 2}, nil)

	first := dialRaw(t, addr)
	first.handshake()
	second := dialRaw(t, addr)
	second.handshake()

	// The third connection is refused before any handshake: its first and
	// only line is the capacity error, then the connection closes.
	third := dialRaw(t, addr)
	rejection := third.readLine()
	want := "ERROR Server at capacity (max 2 clients). Try again later."
	if rejection != want {
		t.Errorf("rejection = %q, want %q", rejection, want)
	}
	if _, err := third.reader.ReadLine(); err != io.EOF {
		t.Errorf("expected EOF after rejection, got %v", err)
	}

	// Rejected connections leave no trace: no name burned, no record.
	if n := len(srv.Registry().Snapshot()); n != 2 {
		t.Errorf("registry has %d records, want 2", n)
	}

	// A slot freed by exit readmits.
	first.sendLine("exit")
	first.readLine()
	waitFor(t, func() bool { return srv.Registry().ActiveCount() == 1 })

	fourth := dialRaw(t, addr)
	if name := fourth.handshake(); name != "Client03" {
		t.Errorf("readmitted client name = %q, want Client03", name)
	}
}

func TestAbruptDisconnect(t *testing.T) {
	srv, addr := startServer(t, Config{}, nil)

	c := dialRaw(t, addr)
	c.handshake()
	_ = c.conn.Close()

	waitFor(t, func() bool { return srv.Registry().ActiveCount() == 0 })
	rec := srv.Registry().Snapshot()[0]
	if rec.Active || rec.DisconnectedAt.IsZero() {
		t.Errorf("record after abrupt close: %+v", rec)
	}
}

func TestStop(t *testing.T) {
	srv, addr := startServer(t, Config{Timeouts: TimeoutsConfig{Shutdown: time.Second}}, nil)

	c := dialRaw(t, addr)
	c.handshake()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// New connections are refused outright once the listener is gone.
	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Error("expected dial failure after Stop")
	}
}

func TestCapacityMessage(t *testing.T) {
	got := capacityMessage(3)
	want := "ERROR Server at capacity (max 3 clients). Try again later.\n"
	if got != want {
		t.Errorf("capacityMessage(3) = %q, want %q", got, want)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.MaxClients != 3 {
		t.Errorf("MaxClients default = %d, want 3", cfg.MaxClients)
	}
	if cfg.Timeouts.Shutdown != 30*time.Second {
		t.Errorf("Shutdown default = %v, want 30s", cfg.Timeouts.Shutdown)
	}
	if cfg.Port != 0 {
		t.Errorf("Port default = %d, want 0 (ephemeral)", cfg.Port)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}
