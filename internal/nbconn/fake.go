package nbconn

import (
	"bytes"
	"io"
	"net"
	"sync"
)

// Fake is an in-memory, fully deterministic double for the engine's
// Reader/Writer contract, used to drive the round-trip scenarios in
// h1x's tests without a real socket: the test controls exactly how many
// bytes a Write accepts per call, when inbound bytes "arrive", and when
// to inject ErrBrokenPipe or EOF.
type Fake struct {
	mu sync.Mutex

	inbound       []byte
	inboundClosed bool

	writeChunk      int // 0 = unlimited
	writeWouldBlock bool
	pendingErr      error // consumed by the next Write call
	writable        bool
	written         bytes.Buffer
	cancelCount     int
}

// NewFake returns a Fake ready to use; writable defaults to true.
func NewFake() *Fake {
	return &Fake{writable: true}
}

// Deliver appends bytes that a subsequent Read will surface, simulating
// response bytes arriving from the peer.
func (f *Fake) Deliver(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, p...)
}

// CloseInbound marks the read side as having reached EOF once the
// buffered inbound bytes are drained.
func (f *Fake) CloseInbound() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inboundClosed = true
}

// SetWriteChunk limits how many bytes a single Write call accepts; 0
// means unlimited (accept the whole vector in one call).
func (f *Fake) SetWriteChunk(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeChunk = n
}

// SetWriteWouldBlock forces the next Write calls to return ErrWouldBlock
// until cleared.
func (f *Fake) SetWriteWouldBlock(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeWouldBlock = b
}

// SetWritable controls the result of IsWritable.
func (f *Fake) SetWritable(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writable = b
}

// QueueError arms a one-shot error to be returned (instead of a normal
// write) on the next Write call.
func (f *Fake) QueueError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingErr = err
}

// Written returns a copy of everything accepted by Write so far.
func (f *Fake) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written.Bytes()...)
}

// CancelCount returns how many times Cancel was called.
func (f *Fake) CancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelCount
}

// Read implements Reader.
func (f *Fake) Read(dst []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.inbound) == 0 {
		if f.inboundClosed {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := copy(dst, f.inbound)
	f.inbound = f.inbound[n:]
	return n, nil
}

// IsWritable implements Writer.
func (f *Fake) IsWritable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writable
}

// Write implements Writer.
func (f *Fake) Write(iov net.Buffers) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pendingErr != nil {
		err := f.pendingErr
		f.pendingErr = nil
		return 0, err
	}
	if f.writeWouldBlock {
		return 0, ErrWouldBlock
	}

	total := 0
	for _, b := range iov {
		total += len(b)
	}
	limit := total
	if f.writeChunk > 0 && f.writeChunk < total {
		limit = f.writeChunk
	}

	remaining := limit
	for _, b := range iov {
		if remaining == 0 {
			break
		}
		take := len(b)
		if take > remaining {
			take = remaining
		}
		f.written.Write(b[:take])
		remaining -= take
	}
	return limit, nil
}

// Cancel implements Writer.
func (f *Fake) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCount++
}
