package protocol

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/filedepot/filedepot/internal/bufpool"
)

// transferChunk bounds how much payload is held in memory at once while
// streaming a transfer in either direction.
const transferChunk = bufpool.LargeSize

// FileHeader describes one framed transfer. Ephemeral; built per transfer.
type FileHeader struct {
	Size int64
	Name string
}

// WriteFile emits the transfer framing for a named blob on w: the textual
// header (FILESIZE, FILENAME, blank line) followed by exactly size payload
// bytes streamed from src in bounded chunks.
//
// WriteFile does not close w. If src yields fewer than size bytes the
// transfer is already corrupt on the wire; the error says so, but the
// caller can only drop the connection at that point.
func WriteFile(w io.Writer, name string, size int64, src io.Reader) error {
	if size < 0 {
		return fmt.Errorf("negative blob size %d for %q", size, name)
	}

	header := fmt.Sprintf("%s%d\n%s%s\n\n", SizePrefix, size, FileNamePrefix, name)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write transfer header: %w", err)
	}

	buf := bufpool.Get(transferChunk)
	defer bufpool.Put(buf)

	remaining := size
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}

		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return fmt.Errorf("blob %q shorter than declared %d bytes: %w", name, size, err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
		remaining -= n
	}

	return nil
}

// ParseSizeLine parses a "FILESIZE <size>" line. The declared size must be
// a non-negative integer.
func ParseSizeLine(line string) (int64, error) {
	rest, ok := strings.CutPrefix(line, SizePrefix)
	if !ok {
		return 0, &ProtocolError{Expected: "FILESIZE", Line: line}
	}

	size, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil || size < 0 {
		return 0, &ProtocolError{Expected: "FILESIZE", Line: line}
	}
	return size, nil
}

// ReadFileHeader completes header parsing once the caller has consumed a
// FILESIZE line: it reads the FILENAME line and the mandatory blank line
// separating header from payload. The reader is left positioned on the
// first payload byte.
func ReadFileHeader(r *Reader, size int64) (FileHeader, error) {
	nameLine, err := r.ReadLine()
	if err != nil {
		return FileHeader{}, fmt.Errorf("read FILENAME line: %w", err)
	}
	name, ok := strings.CutPrefix(nameLine, FileNamePrefix)
	if !ok || name == "" {
		return FileHeader{}, &ProtocolError{Expected: "FILENAME", Line: nameLine}
	}

	blank, err := r.ReadLine()
	if err != nil {
		return FileHeader{}, fmt.Errorf("read header terminator: %w", err)
	}
	if blank != "" {
		return FileHeader{}, &ProtocolError{Expected: "blank", Line: blank}
	}

	return FileHeader{Size: size, Name: name}, nil
}

// CopyPayload streams exactly size payload bytes from r into dst in bounded
// chunks, never buffering the whole payload. It returns the number of bytes
// written to dst. If the stream ends early the count is short and the error
// wraps ErrTruncatedTransfer; partial output is the caller's to discard.
func CopyPayload(dst io.Writer, r *Reader, size int64) (int64, error) {
	buf := bufpool.Get(transferChunk)
	defer bufpool.Put(buf)

	var copied int64
	for copied < size {
		n := int64(len(buf))
		if size-copied < n {
			n = size - copied
		}

		got, readErr := r.ReadFull(buf[:n])
		if got > 0 {
			if _, err := dst.Write(buf[:got]); err != nil {
				return copied, fmt.Errorf("write payload: %w", err)
			}
			copied += int64(got)
		}
		if readErr != nil {
			return copied, readErr
		}
	}

	return copied, nil
}
