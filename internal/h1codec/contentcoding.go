package h1codec

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
)

// gzipHeaderLen is the fixed size of a gzip member header (ID1, ID2, CM,
// FLG, 4-byte MTIME, XFL, OS) — gzip.NewReader needs all of it before it
// can tell a genuine header from a truncated one.
const gzipHeaderLen = 10

// sniffGzipMismatch reports whether a response that declared
// Content-Encoding: gzip opens with bytes that do not parse as a valid
// gzip header. Decoding itself is a non-goal (the body is always passed
// through byte-for-byte); this sniff only catches a server lying about
// its own framing before the caller gets a stream of garbage it can't
// explain. src is never consumed — it is sniffed via a throwaway reader
// over the same backing bytes the caller still owns. Callers only invoke
// this once src holds the full header or the body has ended short of it,
// so any error gzip.NewReader returns here is a genuine mismatch rather
// than a read that simply needs more bytes.
func sniffGzipMismatch(src []byte) bool {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return true
	}
	_ = r.Close()
	return false
}
