package h1x

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime"

	"github.com/relayhaus/h1x/internal/nbconn"
	"github.com/relayhaus/h1x/internal/ring"
)

// cooperativeYield checks the caller's deadline and otherwise yields the
// processor, giving nbconn's background read/write pumps a chance to
// make progress before the next poll attempt. There is no reactor inside
// this engine (the cooperative task runtime is an external collaborator
// per spec); polling with a Gosched is the pragmatic stand-in, the same
// yield idiom hayabusa-cloud-framer uses around its own non-blocking
// syscalls.
func cooperativeYield(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	runtime.Gosched()
	return nil
}

// recvNonzero performs one suspending read: it retries across
// ErrWouldBlock until at least one byte has been copied into dst, or
// returns a decisive error. A full dst with no room to receive into maps
// to ring.ErrWriteZero, matching the codec's WriteZero signal.
func recvNonzero(ctx context.Context, r Reader, dst *ring.Ring) (int, error) {
	free := dst.Capacity() - dst.Len()
	if free <= 0 {
		return 0, ring.ErrWriteZero
	}
	tmp := make([]byte, free)
	for {
		n, err := r.Read(tmp)
		if err != nil {
			if errors.Is(err, nbconn.ErrWouldBlock) {
				if yerr := cooperativeYield(ctx); yerr != nil {
					return 0, yerr
				}
				continue
			}
			return 0, err
		}
		if n == 0 {
			if yerr := cooperativeYield(ctx); yerr != nil {
				return 0, yerr
			}
			continue
		}
		if _, werr := dst.Write(tmp[:n]); werr != nil {
			return 0, werr
		}
		return n, nil
	}
}

// isEOF reports whether err is (or wraps) io.EOF.
func isEOF(err error) bool { return errors.Is(err, io.EOF) }

func toNetBuffers(bufs [][]byte) net.Buffers {
	nb := make(net.Buffers, len(bufs))
	for i, b := range bufs {
		nb[i] = b
	}
	return nb
}
