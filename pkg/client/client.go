// Package client implements a programmatic FileDepot client.
//
// The client performs the handshake, sends commands, and classifies
// responses: plain lines, error lines, blank-terminated multi-line blocks,
// and framed file downloads. Downloads are received through the same
// dual-mode reader the server uses, so header lines and binary payload
// share one cursor.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/filedepot/filedepot/internal/logger"
	"github.com/filedepot/filedepot/pkg/protocol"
)

// ErrServerBusy indicates the server rejected the connection at capacity
// before any handshake took place.
var ErrServerBusy = errors.New("server at capacity")

// ResponseKind classifies a server response.
type ResponseKind int

const (
	// ResponseLine is a single plain text line (echo acknowledgments, BYE).
	ResponseLine ResponseKind = iota

	// ResponseError is a single line prefixed "ERROR ".
	ResponseError

	// ResponseBlock is a multi-line block (status, list) terminated by a
	// blank line.
	ResponseBlock

	// ResponseFile is a framed file download, persisted to disk.
	ResponseFile
)

// Response is one classified server response.
type Response struct {
	Kind ResponseKind

	// Line is the first (or only) line, delimiter stripped.
	Line string

	// Lines holds all block lines for ResponseBlock.
	Lines []string

	// Path is where a ResponseFile download was stored.
	Path string

	// Size is the byte count of a ResponseFile download.
	Size int64
}

// Options configures a client.
type Options struct {
	// DownloadsDir is where framed downloads are stored.
	// Default "downloads"; created on demand.
	DownloadsDir string

	// DialTimeout bounds the TCP connect. Default 10s.
	DialTimeout time.Duration
}

// Client is a connected FileDepot session. Not safe for concurrent use:
// the protocol is strictly request/response on one stream.
type Client struct {
	conn         net.Conn
	reader       *protocol.Reader
	name         string
	downloadsDir string
}

// Dial connects, runs the handshake, and returns a ready client.
// A capacity rejection surfaces as ErrServerBusy.
func Dial(addr string, opts Options) (*Client, error) {
	if opts.DownloadsDir == "" {
		opts.DownloadsDir = "downloads"
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, opts.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	c := &Client{
		conn:         conn,
		reader:       protocol.NewReader(conn),
		downloadsDir: opts.DownloadsDir,
	}

	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// handshake consumes the ASSIGNED line, echoes the name back, and
// consumes the HELLO welcome.
func (c *Client) handshake() error {
	line, err := c.reader.ReadLine()
	if err != nil {
		return fmt.Errorf("read assignment: %w", err)
	}

	// The capacity rejection arrives instead of ASSIGNED, before any
	// session exists on the server side.
	if strings.HasPrefix(line, protocol.ErrorPrefix) {
		return fmt.Errorf("%w: %s", ErrServerBusy, strings.TrimPrefix(line, protocol.ErrorPrefix))
	}

	name, ok := strings.CutPrefix(line, protocol.AssignedPrefix)
	if !ok || name == "" {
		return &protocol.ProtocolError{Expected: "ASSIGNED", Line: line}
	}
	c.name = name

	if _, err := io.WriteString(c.conn, protocol.NamePrefix+name+"\n"); err != nil {
		return fmt.Errorf("confirm name: %w", err)
	}

	hello, err := c.reader.ReadLine()
	if err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	if !strings.HasPrefix(hello, protocol.HelloPrefix) {
		return &protocol.ProtocolError{Expected: "HELLO", Line: hello}
	}

	logger.Debug("Connected", "name", c.name, "server", c.conn.RemoteAddr().String())
	return nil
}

// Name returns the session name adopted during the handshake.
func (c *Client) Name() string {
	return c.name
}

// Close closes the connection without sending exit.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes one command line.
func (c *Client) Send(command string) error {
	if _, err := io.WriteString(c.conn, command+"\n"); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// ReadResponse reads and classifies the next server response.
// Returns io.EOF when the server closed the connection.
func (c *Client) ReadResponse() (*Response, error) {
	line, err := c.reader.ReadLine()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}

	switch {
	case strings.HasPrefix(line, protocol.SizePrefix):
		return c.receiveFile(line)

	case strings.HasPrefix(line, protocol.ErrorPrefix):
		return &Response{Kind: ResponseError, Line: line}, nil

	case strings.HasPrefix(line, "==="):
		lines := []string{line}
		for {
			next, err := c.reader.ReadLine()
			if err != nil || next == "" {
				return &Response{Kind: ResponseBlock, Line: line, Lines: lines}, nil
			}
			lines = append(lines, next)
		}

	default:
		return &Response{Kind: ResponseLine, Line: line}, nil
	}
}

// receiveFile runs the codec receive path: parse the header, stream the
// payload into a temp file, and rename it into place only when every
// declared byte arrived. A truncated transfer removes the partial file
// and returns the truncation error; it is never presented as success.
func (c *Client) receiveFile(sizeLine string) (*Response, error) {
	size, err := protocol.ParseSizeLine(sizeLine)
	if err != nil {
		return nil, err
	}

	header, err := protocol.ReadFileHeader(c.reader, size)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.downloadsDir, 0755); err != nil {
		return nil, fmt.Errorf("create downloads dir: %w", err)
	}

	// Local name is the base of the declared name: a server sending path
	// separators must not escape the downloads directory.
	finalPath := filepath.Join(c.downloadsDir, filepath.Base(header.Name))
	tmpPath := filepath.Join(c.downloadsDir, ".partial-"+uuid.NewString())

	out, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create download file: %w", err)
	}

	copied, copyErr := protocol.CopyPayload(out, c.reader, size)
	closeErr := out.Close()

	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr == nil {
			copyErr = closeErr
		}
		return nil, fmt.Errorf("download %q: %w", header.Name, copyErr)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("finalize download: %w", err)
	}

	logger.Info("Downloaded", "file", header.Name, "path", finalPath, "size", copied)
	return &Response{Kind: ResponseFile, Line: sizeLine, Path: finalPath, Size: copied}, nil
}

// Get requests a blob and returns the download response, or the server's
// error response for a missing blob.
func (c *Client) Get(name string) (*Response, error) {
	if err := c.Send(protocol.CmdGet + " " + name); err != nil {
		return nil, err
	}
	return c.ReadResponse()
}

// List returns the repository listing block lines.
func (c *Client) List() ([]string, error) {
	if err := c.Send(protocol.CmdList); err != nil {
		return nil, err
	}
	resp, err := c.ReadResponse()
	if err != nil {
		return nil, err
	}
	if resp.Kind == ResponseError {
		return nil, errors.New(resp.Line)
	}
	return resp.Lines, nil
}

// Status returns the server status report lines.
func (c *Client) Status() ([]string, error) {
	if err := c.Send(protocol.CmdStatus); err != nil {
		return nil, err
	}
	resp, err := c.ReadResponse()
	if err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

// Exit sends the exit command, waits for BYE, and closes the connection.
func (c *Client) Exit() error {
	if err := c.Send(protocol.CmdExit); err != nil {
		_ = c.conn.Close()
		return err
	}

	resp, err := c.ReadResponse()
	if err != nil && err != io.EOF {
		_ = c.conn.Close()
		return err
	}
	if resp != nil && resp.Line != protocol.MsgBye {
		logger.Debug("Unexpected exit response", "line", resp.Line)
	}
	return c.conn.Close()
}
