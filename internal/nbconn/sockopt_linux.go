//go:build linux

package nbconn

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// setNoDelay disables Nagle's algorithm on the connection's underlying fd
// via SyscallConn, the same unix.SetsockoptInt call tcplisten.go makes on
// the listening socket, applied here to the client-side connection the
// engine streams HTTP/1 frames over.
func setNoDelay(nc net.Conn) error {
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}
