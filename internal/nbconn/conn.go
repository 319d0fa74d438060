// Package nbconn implements the non-blocking-first transport contract
// the h1x engine depends on: a Reader that never blocks (surfacing
// ErrWouldBlock instead) and a Writer with the same property
// plus IsWritable/Cancel, realized on top of a real net.Conn by pumping
// blocking reads/writes through background goroutines, the same shape
// badu-http's persistConn.readLoop/writeLoop use to turn blocking
// net.Conn I/O into something a select-driven caller can race against.
package nbconn

import (
	"errors"
	"net"
	"sync"
	"time"
)

// ErrWouldBlock is returned by Read/Write when no progress is currently
// possible and the caller should try again later (after waiting for
// readiness, in whatever way the surrounding scheduler provides).
var ErrWouldBlock = errors.New("nbconn: would block")

// ErrBrokenPipe is returned by Write when the peer has closed its read
// side; the engine treats this specially to check for an early response
// before giving up.
var ErrBrokenPipe = errors.New("nbconn: broken pipe")

// pastDeadline is used to abort an in-flight blocking syscall from
// Cancel, the same trick net/http's own transport uses to unblock a
// pending Read/Write: set a deadline in the past.
var pastDeadline = time.Unix(1, 0)

// Conn adapts a real net.Conn to the engine's non-blocking contract.
// Read and Write are safe to call from a single logical reader task and a
// single logical writer task respectively (matching the engine's model of
// independently borrowable read-side and write-side); Cancel may be
// called concurrently with a pending Write to abort it.
type Conn struct {
	nc net.Conn

	rMu      sync.Mutex
	rPending bool
	rBuf     []byte
	rDone    chan readResult

	wMu      sync.Mutex
	wPending bool
	wDone    chan writeResult
}

type readResult struct {
	n   int
	err error
}

type writeResult struct {
	n   int
	err error
}

// New wraps nc for use by the h1x engine. It best-effort disables Nagle's
// algorithm on the underlying fd (setNoDelay is a no-op if nc doesn't
// expose a raw fd or isn't TCP); callers that care about the outcome
// should set it themselves before wrapping.
func New(nc net.Conn) *Conn {
	_ = setNoDelay(nc)
	return &Conn{nc: nc}
}

// Read implements the engine's Reader contract: it never blocks. The
// first call against an idle Conn starts a background read and reports
// ErrWouldBlock; once that read completes, the next call delivers it.
func (c *Conn) Read(dst []byte) (int, error) {
	c.rMu.Lock()
	defer c.rMu.Unlock()

	if !c.rPending {
		c.rPending = true
		c.rDone = make(chan readResult, 1)
		buf := make([]byte, len(dst))
		go func() {
			n, err := c.nc.Read(buf)
			c.rDone <- readResult{n, err}
		}()
		c.rBuf = buf
		return 0, ErrWouldBlock
	}

	select {
	case res := <-c.rDone:
		c.rPending = false
		n := copy(dst, c.rBuf[:res.n])
		return n, res.err
	default:
		return 0, ErrWouldBlock
	}
}

// IsWritable reports whether a Write attempt is worth making right now.
// A conservative, always-optimistic implementation is correct (the
// engine treats a WouldBlock result from Write identically); returning
// false only while a previous write is still draining avoids redundant
// goroutine spin-up.
func (c *Conn) IsWritable() bool {
	c.wMu.Lock()
	defer c.wMu.Unlock()
	return !c.wPending
}

// Write implements the engine's Writer contract: it never blocks. The
// slice list of iov is copied (the bytes are not) and handed to
// net.Buffers.WriteTo in a background goroutine, so net.Conn
// implementations that special-case net.Buffers still get a vectored
// writev.
func (c *Conn) Write(iov net.Buffers) (int, error) {
	c.wMu.Lock()
	defer c.wMu.Unlock()

	if !c.wPending {
		c.wPending = true
		c.wDone = make(chan writeResult, 1)
		cp := make(net.Buffers, len(iov))
		copy(cp, iov)
		go func() {
			n, err := cp.WriteTo(c.nc)
			c.wDone <- writeResult{int(n), mapWriteErr(err)}
		}()
		return 0, ErrWouldBlock
	}

	select {
	case res := <-c.wDone:
		c.wPending = false
		return res.n, res.err
	default:
		return 0, ErrWouldBlock
	}
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isBrokenPipe(err) {
		return ErrBrokenPipe
	}
	return err
}

// Cancel aborts a pending Read or Write by forcing the underlying
// net.Conn's deadline into the past, the same unblocking trick used
// throughout net/http's own transport.
func (c *Conn) Cancel() {
	_ = c.nc.SetDeadline(pastDeadline)
	// restore an open deadline so future operations aren't immediately
	// cancelled too; callers that want a real timeout set their own
	// deadline via the surrounding context instead.
	_ = c.nc.SetDeadline(time.Time{})
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
