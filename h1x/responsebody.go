package h1x

import (
	"context"

	"github.com/relayhaus/h1x/internal/h1codec"
	"github.com/relayhaus/h1x/internal/ring"
)

// ResponseBodyKeepHeader wraps ResponseBody while still retaining the
// parsed header's backing storage in buf2 until DiscardHeader is called.
type ResponseBodyKeepHeader struct {
	*ResponseBody
	buf2  *ring.Ring
	owned *h1codec.OwnedResponse
}

// Owned exposes the parsed response status line and headers. Its status
// line and header fields are Go strings copied out of the header bytes,
// so they stay valid after DiscardHeader.
func (k *ResponseBodyKeepHeader) Owned() *OwnedResponse { return k.owned }

// DiscardHeader consumes the retained header, returns its backing
// storage to buf2 (cleared, ready for reuse), and yields the plain
// ResponseBody. After this call Owned returns nil.
func (k *ResponseBodyKeepHeader) DiscardHeader() *ResponseBody {
	k.buf2.SetInner(k.owned.IntoBuf())
	k.buf2.Clear()
	k.owned = nil
	return k.ResponseBody
}

// ResponseBody is phase 5: the response body is streamed out of buf1
// through the codec's body decoder. add_to_buffer (AddToBuffer here) and
// try_recv (TryRecv here) are the exported concurrency split: AddToBuffer
// suspends on I/O, TryRecv is pure, so callers can interleave other work
// between decode attempts without the decoder itself suspending.
type ResponseBody struct {
	buf1   *ring.Ring
	r      Reader
	w      Writer
	codec  *h1codec.ClientResponseBody
	closed bool
	done   bool
	logger Logger
}

func (rb *ResponseBody) log() Logger {
	if rb.logger == nil {
		return defaultLogger
	}
	return rb.logger
}

// AddToBuffer attempts one suspending read into buf1. It is idempotent
// once EOF has been observed: closed latches true and subsequent calls
// are no-ops that return nil. A full buf1 maps to ErrBufferExceeded.
func (rb *ResponseBody) AddToBuffer(ctx context.Context) error {
	if rb.done {
		return ErrUnusable
	}
	if rb.closed {
		return nil
	}
	select {
	case <-ctx.Done():
		return &IoError{Err: ctx.Err()}
	default:
	}

	_, err := recvNonzero(ctx, rb.r, rb.buf1)
	if err != nil {
		if err == ring.ErrWriteZero {
			return ErrBufferExceeded
		}
		if isEOF(err) {
			rb.closed = true
			rb.log().Printf("h1x: response body reached EOF")
			return nil
		}
		return &IoError{Err: err}
	}
	return nil
}

// RecvOutcome tags the result of ResponseBody.TryRecv.
type RecvOutcome int

const (
	RecvComplete RecvOutcome = iota
	RecvReadMore
)

// Finished is the terminal value produced once the response body has
// been fully decoded, carrying whether the connection may be reused.
type Finished struct {
	Persistent bool
}

// IsPersistent reports whether the connection may be reused for another
// exchange (HTTP keep-alive), per the codec's judgment.
func (f *Finished) IsPersistent() bool { return f.Persistent }

// RecvStatus is the result of one TryRecv call.
type RecvStatus struct {
	Outcome  RecvOutcome
	Finished *Finished // set iff Outcome == RecvComplete
	Written  int
}

// TryRecv is non-suspending: it feeds buf1's currently readable region
// (and a reusable trailer scratch) to the codec's body decoder, copying
// decoded payload into dest. If the decoder reports no progress at all
// on a non-contiguous buf1, the buffer is aligned and the decode is
// retried once, guaranteeing a contiguous window on the retry.
func (rb *ResponseBody) TryRecv(dest []byte, scratch *h1codec.Scratch) (RecvStatus, error) {
	if rb.done {
		return RecvStatus{}, ErrUnusable
	}

	for {
		src := rb.buf1.ReadBuf()
		end := rb.closed && len(src) == rb.buf1.Len()

		result := rb.codec.Recv(src, dest, end, scratch)
		switch result.Outcome {
		case h1codec.RecvComplete:
			rb.buf1.ReadCommit(result.Read)
			rb.done = true
			return RecvStatus{
				Outcome:  RecvComplete,
				Finished: &Finished{Persistent: result.Finished.Persistent},
				Written:  result.Written,
			}, nil

		case h1codec.RecvErr:
			rb.done = true
			return RecvStatus{}, &ProtocolError{Err: result.Err}

		default: // h1codec.RecvReadMore
			if result.Read == 0 && result.Written == 0 && !rb.buf1.IsReadableContiguous() {
				rb.buf1.Align()
				continue
			}
			rb.buf1.ReadCommit(result.Read)
			return RecvStatus{Outcome: RecvReadMore, Written: result.Written}, nil
		}
	}
}
