//go:build !linux

package nbconn

import "net"

// setNoDelay is a no-op on platforms without the unix socket option
// surface; callers still get a correctly functioning Conn, just without
// the Nagle-disabling hint.
func setNoDelay(net.Conn) error { return nil }
