package h1x

import (
	"context"
	"errors"
	"sync"

	"github.com/relayhaus/h1x/internal/h1codec"
	"github.com/relayhaus/h1x/internal/nbconn"
	"github.com/relayhaus/h1x/internal/ring"
)

// SendOutcome tags the result of RequestBody.Send.
type SendOutcome int

const (
	SendEarlyResponse SendOutcome = iota
	SendComplete
	SendPartial
)

// SendStatus is the result of one RequestBody.Send call.
type SendStatus struct {
	Outcome  SendOutcome
	Response *Response // set iff Outcome == SendEarlyResponse || SendComplete
	N        int       // body bytes committed this call
}

// RequestBody is phase 3, the only handle that performs simultaneous
// reads and writes: while streaming the request body it also watches
// buf1 for response bytes arriving early. prepare/expandWriteBuffer/
// canSend never suspend and may be called between Send invocations;
// Send itself must not be called concurrently with them (single
// logical writer task at a time), enforced here with a mutex standing
// in for the single-threaded cooperative-task invariant.
type RequestBody struct {
	mu sync.Mutex

	buf1, buf2 *ring.Ring
	r          Reader
	w          Writer
	codec      *h1codec.ClientRequestBody
	end        bool
	blockSize  int
	done       bool
	lastProbe  []byte // reused scratch for the R side's probe read
	logger     Logger
}

// Prepare copies as much of src into buf2 as fits, returning the number
// of bytes accepted. If end is set and all of src was accepted, end is
// latched for the body; a subsequent Prepare then fails with
// ErrFurtherInputNotAllowed. A partial copy never latches end.
func (rb *RequestBody) Prepare(src []byte, end bool) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.done {
		return 0, ErrUnusable
	}
	if rb.end {
		return 0, ErrFurtherInputNotAllowed
	}

	n, err := rb.buf2.Write(src)
	if err != nil {
		return 0, ErrBufferExceeded
	}
	if end && n == len(src) {
		rb.end = true
	}
	return n, nil
}

// ExpandWriteBuffer grows buf2 up to blocksMax*blockSize, gated by
// reserve (a caller-supplied admission check, e.g. a memory budget).
// Pure memory management; it performs no I/O. It returns the resulting
// capacity expressed as a multiple of blockSize.
func (rb *RequestBody) ExpandWriteBuffer(blocksMax int, reserve func() bool) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.done {
		return 0, ErrUnusable
	}
	current := rb.buf2.Capacity() / rb.blockSize
	if rb.buf2.Capacity()-rb.buf2.Len() > 0 {
		return current, nil
	}
	if current >= blocksMax {
		return current, nil
	}
	if !reserve() {
		return current, nil
	}
	next := current + 1
	rb.buf2.Grow(next * rb.blockSize)
	return next, nil
}

// CanSend reports whether there is staged body data or end is latched —
// i.e. whether calling Send makes sense right now.
func (rb *RequestBody) CanSend() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return !rb.done && (rb.buf2.Len() > 0 || rb.end)
}

func (rb *RequestBody) gatherBufs() [][]byte {
	dst := make([][]byte, VectoredMax-2)
	return rb.buf2.ReadBufs(dst)
}

// Send runs the concurrent send/receive core: each iteration races a
// non-blocking write attempt against a non-blocking read probe (see the
// component-design note on why this race does not spawn its own
// goroutines), looping only while neither side has made decisive
// progress, until one of EarlyResponse, Complete, Partial (the write
// accepted part of what was offered), or an error. An error caused by
// ctx ending while the loop polls leaves the handle usable; other errors
// are terminal.
func (rb *RequestBody) Send(ctx context.Context) (SendStatus, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.done {
		return SendStatus{}, ErrUnusable
	}

	for {
		select {
		case <-ctx.Done():
			return SendStatus{}, &IoError{Err: ctx.Err()}
		default:
		}

		// a. early-response check
		if rb.buf1.Len() > 0 {
			early := rb.codec.IntoEarlyResponse()
			rb.buf2.Clear()
			rb.done = true
			rb.log().Printf("h1x: early response detected, abandoning request body")
			return SendStatus{
				Outcome:  SendEarlyResponse,
				Response: newResponse(rb.buf1, rb.buf2, rb.r, rb.w, early, rb.logger),
			}, nil
		}

		progressed, status, err := rb.attemptWrite(ctx)
		if err != nil || status != nil {
			return derefStatus(status), err
		}
		if progressed {
			continue
		}

		// R: probe read. A full buf1 means "suspend forever" per spec
		// §4.3.1.b — skip the attempt and keep racing W.
		if free := rb.buf1.Capacity() - rb.buf1.Len(); free > 0 {
			probe := rb.probeScratch(free)
			n, rerr := rb.r.Read(probe)
			if rerr == nil && n > 0 {
				if _, werr := rb.buf1.Write(probe[:n]); werr != nil {
					rb.done = true
					return SendStatus{}, ErrBufferExceeded
				}
				rb.w.Cancel() // R won the race: abort the write W left pending
				continue      // received data: next iteration's early-response check fires
			}
			if rerr != nil && !errors.Is(rerr, nbconn.ErrWouldBlock) {
				rb.done = true
				return SendStatus{}, &IoError{Err: rerr}
			}
		}

		if yerr := cooperativeYield(ctx); yerr != nil {
			return SendStatus{}, &IoError{Err: yerr}
		}
	}
}

// probeScratch returns a reusable R-side read buffer at least n bytes
// long, sized to never exceed buf1's current free room so a successful
// read is never truncated on write-back.
func (rb *RequestBody) probeScratch(n int) []byte {
	if cap(rb.lastProbe) < n {
		rb.lastProbe = make([]byte, n)
	}
	return rb.lastProbe[:n]
}

// attemptWrite performs the W side of one race iteration. A nil status
// and nil error mean no decisive outcome. progressed is then false when
// the writer was not writable or the write was WouldBlock (the caller
// should try R next), and true after a BrokenPipe salvage left bytes in
// buf1 (the caller should loop straight back to the early-response check).
func (rb *RequestBody) attemptWrite(ctx context.Context) (progressed bool, status *SendStatus, err error) {
	if !rb.w.IsWritable() {
		return false, nil, nil
	}

	res := rb.codec.Send(rb.w, rb.gatherBufs(), rb.end)
	switch res.Outcome {
	case h1codec.SendComplete:
		rb.buf2.ReadCommit(res.N)
		rb.done = true
		rb.log().Printf("h1x: request body sent (%d bytes)", res.N)
		return false, &SendStatus{
			Outcome:  SendComplete,
			Response: newResponse(rb.buf1, rb.buf2, rb.r, rb.w, res.Resp, rb.logger),
			N:        res.N,
		}, nil

	case h1codec.SendPartial:
		rb.buf2.ReadCommit(res.N)
		return false, &SendStatus{Outcome: SendPartial, N: res.N}, nil

	default: // h1codec.SendErr
		if errors.Is(res.Err, nbconn.ErrWouldBlock) {
			return false, nil, nil // no progress; race R next
		}
		if errors.Is(res.Err, nbconn.ErrBrokenPipe) {
			return rb.salvageBrokenPipe(ctx)
		}
		rb.done = true
		return false, nil, &IoError{Err: res.Err}
	}
}

// salvageBrokenPipe handles a BrokenPipe write error: an empty buf1 may
// mean the peer closed its write half right after sending a complete
// early response, so one blocking recv is attempted before giving up.
func (rb *RequestBody) salvageBrokenPipe(ctx context.Context) (progressed bool, status *SendStatus, err error) {
	rb.log().Printf("h1x: write broken pipe, attempting salvage recv")
	if rb.buf1.Len() > 0 {
		return true, nil, nil // early-response check will fire next iteration
	}
	if _, rerr := recvNonzero(ctx, rb.r, rb.buf1); rerr != nil {
		rb.done = true
		if errors.Is(rerr, ring.ErrWriteZero) {
			return false, nil, ErrBufferExceeded
		}
		return false, nil, &IoError{Err: rerr}
	}
	return true, nil, nil
}

func (rb *RequestBody) log() Logger {
	if rb.logger == nil {
		return defaultLogger
	}
	return rb.logger
}

func derefStatus(s *SendStatus) SendStatus {
	if s == nil {
		return SendStatus{}
	}
	return *s
}
