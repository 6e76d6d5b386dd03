package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/filedepot/filedepot/internal/bufpool"
)

// readChunk is how many bytes one fill pulls from the underlying stream.
// Purely an internal buffering choice; never protocol-visible.
const readChunk = 4 << 10

// Reader is a dual-mode stream reader: delimiter-terminated line reads and
// exact-byte-count reads over one shared buffer and one shared cursor.
//
// Using a line-buffered reader plus raw socket reads for payloads would
// drop or duplicate whatever bytes the line reader over-read past the
// delimiter. Reader exists so both read modes consume the same buffer:
// every byte pulled from the stream is returned exactly once, either by
// ReadLine or by ReadFull, in arrival order.
//
// Reader is not safe for concurrent use; each connection owns exactly one.
type Reader struct {
	src io.Reader
	buf []byte // bytes received but not yet consumed
}

// NewReader wraps src in a dual-mode reader.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Buffered returns the number of received-but-unconsumed bytes.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// fill pulls one chunk from the underlying stream into the buffer.
// Returns io.EOF when the stream is closed and delivered no bytes.
func (r *Reader) fill() error {
	chunk := bufpool.Get(readChunk)
	defer bufpool.Put(chunk)

	n, err := r.src.Read(chunk)
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return err
}

// ReadLine reads the next '\n'-terminated line and returns it without the
// delimiter. It returns io.EOF when the stream closes with no complete
// line pending; a trailing fragment that can never be completed is
// end-of-stream, not a line.
func (r *Reader) ReadLine() (string, error) {
	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := string(r.buf[:i])
			r.buf = r.buf[i+1:]
			return line, nil
		}

		if err := r.fill(); err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", fmt.Errorf("read line: %w", err)
		}
	}
}

// ReadFull reads exactly len(p) bytes from the same cursor as ReadLine,
// draining the internal buffer before touching the stream. It returns the
// number of bytes copied; n < len(p) only when the stream closed early,
// reported as ErrTruncatedTransfer rather than silent success.
func (r *Reader) ReadFull(p []byte) (int, error) {
	// Drain the shared buffer first.
	n := copy(p, r.buf)
	r.buf = r.buf[n:]

	for n < len(p) {
		m, err := r.src.Read(p[n:])
		n += m
		if err != nil {
			if err == io.EOF {
				return n, fmt.Errorf("%d of %d bytes received: %w", n, len(p), ErrTruncatedTransfer)
			}
			return n, fmt.Errorf("read payload: %w", err)
		}
	}

	return n, nil
}
