package ring

import (
	"bytes"
	"testing"
)

func TestWriteReadCommit(t *testing.T) {
	r := New(8)
	n, err := r.Write([]byte("abcd"))
	if err != nil || n != 4 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if got := r.ReadBuf(); !bytes.Equal(got, []byte("abcd")) {
		t.Fatalf("ReadBuf: got %q", got)
	}
	r.ReadCommit(2)
	if got := r.ReadBuf(); !bytes.Equal(got, []byte("cd")) {
		t.Fatalf("ReadBuf after commit: got %q", got)
	}
}

func TestWriteZeroWhenFull(t *testing.T) {
	r := New(4)
	if err := r.WriteAll([]byte("abcd")); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	n, err := r.Write([]byte("e"))
	if n != 0 || err != ErrWriteZero {
		t.Fatalf("Write on full ring: n=%d err=%v", n, err)
	}
}

func TestWrapAroundAndAlign(t *testing.T) {
	r := New(4)
	r.WriteAll([]byte("abcd"))
	r.ReadCommit(3) // off=3, n=1
	n, err := r.Write([]byte("XY"))
	if err != nil || n != 2 {
		t.Fatalf("Write wrap: n=%d err=%v", n, err)
	}
	if r.IsReadableContiguous() {
		t.Fatalf("expected wrapped region to be non-contiguous")
	}
	r.Align()
	if !r.IsReadableContiguous() {
		t.Fatalf("expected contiguous region after Align")
	}
	if got := r.ReadBuf(); !bytes.Equal(got, []byte("dXY")) {
		t.Fatalf("ReadBuf after align: got %q", got)
	}
}

func TestReadBufsGather(t *testing.T) {
	r := New(4)
	r.WriteAll([]byte("abcd"))
	r.ReadCommit(3)
	r.Write([]byte("XY"))

	var arr [2][]byte
	bufs := r.ReadBufs(arr[:])
	if len(bufs) != 2 {
		t.Fatalf("expected 2 gather slices, got %d", len(bufs))
	}
	var joined []byte
	for _, b := range bufs {
		joined = append(joined, b...)
	}
	if !bytes.Equal(joined, []byte("dXY")) {
		t.Fatalf("joined gather: got %q", joined)
	}
}

func TestDetachAttachSwap(t *testing.T) {
	buf1 := New(8)
	buf2 := New(8)

	buf1.WriteAll([]byte("header"))
	storage := buf1.TakeInner()
	if buf1.Capacity() != 0 {
		t.Fatalf("expected buf1 detached, capacity=%d", buf1.Capacity())
	}
	buf1.SetInner(storage)
	if buf1.Capacity() != 8 || buf1.Len() != 0 {
		t.Fatalf("SetInner should reattach as empty: cap=%d len=%d", buf1.Capacity(), buf1.Len())
	}

	buf2.WriteAll([]byte("body"))
	buf1.SwapInner(buf2)
	if got := buf1.ReadBuf(); !bytes.Equal(got, []byte("body")) {
		t.Fatalf("after swap buf1 should hold body bytes, got %q", got)
	}
	if buf2.Len() != 0 {
		t.Fatalf("after swap buf2 should be empty, len=%d", buf2.Len())
	}
}

func TestGrowPreservesContent(t *testing.T) {
	r := New(4)
	r.WriteAll([]byte("abcd"))
	r.ReadCommit(3)
	r.Write([]byte("XY")) // wraps: off=3 n=1 -> write XY wraps
	r.Grow(8)
	if got := r.ReadBuf(); !bytes.Equal(append([]byte{}, r.ReadBuf()...), got) {
		t.Fatalf("sanity")
	}
	full := r.ReadBuf()
	if !r.IsReadableContiguous() {
		t.Fatalf("expected contiguous after grow")
	}
	if !bytes.Equal(full, []byte("dXY")) {
		t.Fatalf("Grow: got %q", full)
	}
	if r.Capacity() != 8 {
		t.Fatalf("Capacity after grow: %d", r.Capacity())
	}
}
