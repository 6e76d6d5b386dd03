package protocol

import (
	"errors"
	"fmt"
)

// ErrTruncatedTransfer indicates the connection closed before the declared
// number of payload bytes arrived. A short transfer is never reported as
// success; callers must discard or flag the partial output.
var ErrTruncatedTransfer = errors.New("truncated transfer: stream closed mid-payload")

// ProtocolError indicates a malformed handshake or framing line.
// It terminates only the session that produced it.
type ProtocolError struct {
	// Expected names the token the parser was looking for (e.g. "FILENAME")
	Expected string

	// Line is the offending line as received, delimiter stripped
	Line string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: expected %s line, got %q", e.Expected, e.Line)
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
