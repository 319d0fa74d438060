package nbconn

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// isBrokenPipe reports whether err indicates the peer closed its read
// side while we were still writing, across the OS-specific error values
// a net.Conn can surface for that condition.
func isBrokenPipe(err error) bool {
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.EPIPE) || errors.Is(opErr.Err, syscall.ECONNRESET) {
			return true
		}
	}
	return errors.Is(err, io.ErrClosedPipe)
}
