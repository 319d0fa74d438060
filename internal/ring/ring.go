// Package ring implements the two ring buffers ("buf1", "buf2") that the
// h1x engine passes between phases: a contiguous backing store with
// read/write cursors, plus the detach/attach/swap operations that let
// buffer ownership migrate between a header parser and a body reader
// without copying.
//
// The backing array is borrowed from a bytebufferpool.Pool the same way
// bytebuffer.go pools *bytebufferpool.ByteBuffer: NewFromPool/Release
// recycle the slice (Grow and Align allocate a fresh one) instead of the
// ring itself being pool-managed, since a ring's
// cursors are exchange-local state that must not survive a Put/Get cycle.
package ring

import (
	"errors"

	"github.com/valyala/bytebufferpool"
)

// ErrWriteZero is returned by Write when the ring has no room left for
// any of p. It mirrors io.ErrShortWrite in spirit but is distinct so
// callers can errors.Is against ring saturation specifically.
var ErrWriteZero = errors.New("ring: buffer has no room")

var defaultPool bytebufferpool.Pool

// Ring is a fixed-capacity circular byte buffer.
type Ring struct {
	buf []byte // nil when storage has been detached via TakeInner
	off int    // offset of first readable byte
	n   int    // number of readable bytes
}

// New returns a Ring with a freshly allocated backing store of the given
// capacity.
func New(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity)}
}

// NewFromPool returns a Ring whose backing store is acquired from the
// shared bytebufferpool.Pool and grown to at least capacity, the same
// pool bytebuffer.go uses for *bytebufferpool.ByteBuffer. Release returns
// the backing store to the pool.
func NewFromPool(capacity int) *Ring {
	bb := defaultPool.Get()
	bb.B = append(bb.B[:0], make([]byte, capacity)...)
	return &Ring{buf: bb.B[:capacity]}
}

// Release returns the ring's current backing store (if any) to the shared
// bytebufferpool.Pool and leaves the ring detached.
func (r *Ring) Release() {
	if r.buf == nil {
		return
	}
	bb := &bytebufferpool.ByteBuffer{B: r.buf}
	defaultPool.Put(bb)
	r.buf = nil
	r.off = 0
	r.n = 0
}

// Capacity returns the size of the backing store. A detached ring has
// capacity 0.
func (r *Ring) Capacity() int { return len(r.buf) }

// Len returns the number of readable bytes currently buffered.
func (r *Ring) Len() int { return r.n }

// Clear discards all readable bytes without releasing the backing store.
func (r *Ring) Clear() {
	r.off = 0
	r.n = 0
}

// Write appends as much of p as fits and returns the number of bytes
// accepted. If the ring is completely full and p is non-empty, it returns
// (0, ErrWriteZero); a partial accept returns (n, nil) with n < len(p).
func (r *Ring) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	free := len(r.buf) - r.n
	if free == 0 {
		return 0, ErrWriteZero
	}
	if len(p) > free {
		p = p[:free]
	}
	writeFrom := (r.off + r.n) % len(r.buf)
	written := copy(r.buf[writeFrom:], p)
	if written < len(p) {
		written += copy(r.buf, p[written:])
	}
	r.n += written
	return written, nil
}

// WriteAll appends all of p or fails with ErrWriteZero. Used where the
// caller has no partial-write recovery path (e.g. staging an initial
// request body).
func (r *Ring) WriteAll(p []byte) error {
	n, err := r.Write(p)
	if err != nil {
		return err
	}
	if n < len(p) {
		return ErrWriteZero
	}
	return nil
}

// IsReadableContiguous reports whether the readable region does not wrap
// past the end of the backing store.
func (r *Ring) IsReadableContiguous() bool {
	return r.n == 0 || r.off+r.n <= len(r.buf)
}

// ReadBuf returns a contiguous view over the readable region. If the
// region wraps, only the first (pre-wrap) segment is returned; call Align
// first to guarantee a single contiguous view of everything readable.
func (r *Ring) ReadBuf() []byte {
	if r.n == 0 {
		return nil
	}
	end := r.off + r.n
	if end <= len(r.buf) {
		return r.buf[r.off:end]
	}
	return r.buf[r.off:]
}

// ReadBufs fills dst with a gather view (1 or 2 slices) covering the
// entire readable region and returns the used prefix of dst. At most
// len(dst) slices are produced; if the readable region legitimately needs
// more than 2 (it never does for a single wrap), later data is omitted.
func (r *Ring) ReadBufs(dst [][]byte) [][]byte {
	if r.n == 0 || len(dst) == 0 {
		return dst[:0]
	}
	end := r.off + r.n
	if end <= len(r.buf) {
		dst[0] = r.buf[r.off:end]
		return dst[:1]
	}
	dst[0] = r.buf[r.off:]
	if len(dst) < 2 {
		return dst[:1]
	}
	dst[1] = r.buf[:end-len(r.buf)]
	return dst[:2]
}

// ReadCommit advances the read cursor past n bytes, which must already
// have been consumed by the caller (e.g. written to a transport or copied
// into the body decoder).
func (r *Ring) ReadCommit(n int) {
	if n <= 0 {
		return
	}
	if n > r.n {
		n = r.n
	}
	if len(r.buf) > 0 {
		r.off = (r.off + n) % len(r.buf)
	}
	r.n -= n
}

// Align rotates the backing store so the readable region starts at offset
// zero and is contiguous. A no-op if already contiguous at offset 0.
func (r *Ring) Align() {
	if r.off == 0 || len(r.buf) == 0 {
		return
	}
	if r.n == 0 {
		r.off = 0
		return
	}
	rotated := make([]byte, len(r.buf))
	if r.off+r.n <= len(r.buf) {
		copy(rotated, r.buf[r.off:r.off+r.n])
	} else {
		k := copy(rotated, r.buf[r.off:])
		copy(rotated[k:], r.buf[:r.n-k])
	}
	r.buf = rotated
	r.off = 0
}

// Grow reallocates the backing store to newCapacity (a no-op if it is not
// larger than the current capacity), linearizing existing readable bytes
// to offset zero in the process.
func (r *Ring) Grow(newCapacity int) {
	if newCapacity <= len(r.buf) {
		return
	}
	rotated := make([]byte, newCapacity)
	if r.n > 0 {
		if r.off+r.n <= len(r.buf) {
			copy(rotated, r.buf[r.off:r.off+r.n])
		} else {
			k := copy(rotated, r.buf[r.off:])
			copy(rotated[k:], r.buf[:r.n-k])
		}
	}
	r.buf = rotated
	r.off = 0
}

// TakeInner detaches the backing store from the ring, leaving it
// storage-less (Capacity and Len both become 0) until SetInner or
// SwapInner reattach one. Used while a header parser borrows buf1's
// storage for zero-copy parsing.
func (r *Ring) TakeInner() []byte {
	buf := r.buf
	r.buf = nil
	r.off = 0
	r.n = 0
	return buf
}

// SetInner reattaches a backing store previously removed by TakeInner,
// treating it as empty of readable data. Callers that need to preserve a
// read position should not use SetInner (the Incomplete/Error paths of
// header parsing use SetInnerWithLen); it is meant for DiscardHeader
// reattaching a header's storage for later reuse as an empty buffer.
func (r *Ring) SetInner(buf []byte) {
	r.buf = buf
	r.off = 0
	r.n = 0
}

// SetInnerWithLen reattaches buf preserving that its first n bytes (from
// offset 0) are readable. Used when RecvHeader's Incomplete path hands
// back the same storage it was given, which still holds everything read
// so far.
func (r *Ring) SetInnerWithLen(buf []byte, n int) {
	r.buf = buf
	r.off = 0
	r.n = n
}

// SwapInner exchanges backing stores (and their cursors) with other. This
// is the operation behind the header/body hand-off: buf1 ends up holding
// whatever buf2 held (the post-header residual body bytes) and vice
// versa.
func (r *Ring) SwapInner(other *Ring) {
	r.buf, other.buf = other.buf, r.buf
	r.off, other.off = other.off, r.off
	r.n, other.n = other.n, r.n
}
