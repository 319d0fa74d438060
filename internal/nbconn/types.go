package nbconn

import "net"

// Reader is the non-blocking read side of the transport contract the h1x
// engine depends on: Read never blocks, surfacing ErrWouldBlock instead
// of waiting for bytes to arrive.
type Reader interface {
	Read(dst []byte) (n int, err error)
}

// Writer is the non-blocking write side of the transport contract. Write
// never blocks; IsWritable lets a caller avoid a doomed attempt, and
// Cancel aborts whatever write is currently in flight, the hook the
// engine's W/R race uses to cancel the losing side.
type Writer interface {
	Write(iov net.Buffers) (n int, err error)
	IsWritable() bool
	Cancel()
}

var (
	_ Reader = (*Conn)(nil)
	_ Writer = (*Conn)(nil)
	_ Reader = (*Fake)(nil)
	_ Writer = (*Fake)(nil)
)
