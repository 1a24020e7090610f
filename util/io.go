package util

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
)

// MaxLineSize bounds a single protocol line read by ReadLine.
const MaxLineSize = 64 * 1024

// ErrLineTooLong is returned by ReadLine when no newline arrives within
// MaxLineSize bytes.
var ErrLineTooLong = errors.New("protocol line too long")

// ReadLine reads one newline-terminated line and returns it without the
// trailing "\n" or "\r\n".  A final unterminated line before EOF is
// returned as a regular line; the following call reports io.EOF.
func ReadLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, isPrefix, err := r.ReadLine()
		sb.Write(chunk)
		if err != nil {
			return sb.String(), err
		}
		if sb.Len() > MaxLineSize {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return sb.String(), nil
		}
	}
}

// IsHarmless returns true for errors that are expected when a peer
// hangs up or a conn is closed during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// net.OpError wrapping "use of closed network connection"
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
