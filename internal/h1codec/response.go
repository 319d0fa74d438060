package h1codec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ClientResponse drives incremental parsing of a response status line and
// header block, grounded on fasthttp's ResponseHeader.tryRead/parse
// (header.go), adapted to hand storage back on Incomplete instead of
// looping internally over a bufio.Reader.
type ClientResponse struct{}

// RecvHeader attempts to parse a complete response header out of
// storage (everything read into buf1's backing store so far). It never
// performs I/O; the caller (h1x.Response.RecvHeader) is responsible for
// reading more bytes into storage between Incomplete calls.
func (r *ClientResponse) RecvHeader(storage []byte, scratch *Scratch) HeaderParseResult {
	idx := bytes.Index(storage, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(storage) > 0 && storage[0] != 'H' {
			// Cheap sanity check mirroring fasthttp's parseFirstLine
			// rejecting garbage immediately rather than buffering
			// forever waiting for a terminator that will never come.
			return HeaderParseResult{Outcome: ParseErr, Storage: storage, Err: fmt.Errorf("%w: response does not start with a status line", ErrMalformed)}
		}
		return HeaderParseResult{Outcome: ParseIncomplete, Storage: storage}
	}

	headerBlock := storage[:idx]
	remaining := storage[idx+4:]

	lines := strings.Split(string(headerBlock), "\r\n")
	if len(lines) == 0 {
		return HeaderParseResult{Outcome: ParseErr, Storage: storage, Err: fmt.Errorf("%w: empty response", ErrMalformed)}
	}

	statusCode, reason, proto, err := parseStatusLine(lines[0])
	if err != nil {
		return HeaderParseResult{Outcome: ParseErr, Storage: storage, Err: err}
	}

	owned := &OwnedResponse{
		storage:    storage,
		statusCode: statusCode,
		reason:     reason,
		proto:      proto,
		remaining:  remaining,
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return HeaderParseResult{Outcome: ParseErr, Storage: storage, Err: fmt.Errorf("%w: malformed header line %q", ErrMalformed, line)}
		}
		if len(owned.headers) >= MaxHeaders {
			return HeaderParseResult{Outcome: ParseErr, Storage: storage, Err: fmt.Errorf("%w: too many headers", ErrMalformed)}
		}
		owned.headers = append(owned.headers, Header{Name: name, Value: value})
	}

	body := newClientResponseBody(owned)

	return HeaderParseResult{
		Outcome: ParseComplete,
		Owned:   owned,
		Body:    body,
	}
}

func parseStatusLine(line string) (code int, reason, proto string, err error) {
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return 0, "", "", fmt.Errorf("%w: cannot find whitespace in status line %q", ErrMalformed, line)
	}
	proto = line[:i]
	rest := line[i+1:]
	j := strings.IndexByte(rest, ' ')
	var codeStr string
	if j < 0 {
		codeStr = rest
	} else {
		codeStr = rest[:j]
		reason = rest[j+1:]
	}
	code, convErr := strconv.Atoi(codeStr)
	if convErr != nil {
		return 0, "", "", fmt.Errorf("%w: non-numeric status code %q", ErrMalformed, codeStr)
	}
	return code, reason, proto, nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if name == "" {
		return "", "", false
	}
	return name, value, true
}

// OwnedResponse is the parsed response header: status line plus header
// fields, held as Go strings copied out of the storage RecvHeader was
// given. The storage itself is kept so IntoBuf can hand it back.
type OwnedResponse struct {
	storage    []byte
	statusCode int
	reason     string
	proto      string
	headers    []Header
	remaining  []byte
}

// ContentEncoding returns the response's declared Content-Encoding, or ""
// if none was sent. The engine never decodes bodies; this is surfaced
// purely as metadata, and used once to sniff for a gzip mismatch (see
// sniffGzipMismatch).
func (o *OwnedResponse) ContentEncoding() string {
	v, _ := o.Header("Content-Encoding")
	return v
}

// StatusCode returns the parsed HTTP status code.
func (o *OwnedResponse) StatusCode() int { return o.statusCode }

// Reason returns the status line's reason phrase.
func (o *OwnedResponse) Reason() string { return o.reason }

// Proto returns the status line's HTTP version token, e.g. "HTTP/1.1".
func (o *OwnedResponse) Proto() string { return o.proto }

// Headers returns all parsed header fields in wire order.
func (o *OwnedResponse) Headers() []Header { return o.headers }

// Header returns the first header value matching name (case-insensitive),
// mirroring fasthttp's Peek-by-name convenience accessors.
func (o *OwnedResponse) Header(name string) (string, bool) {
	for _, h := range o.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// RemainingBytes returns the bytes read past the header terminator that
// already belong to the body.
func (o *OwnedResponse) RemainingBytes() []byte { return o.remaining }

// IntoBuf returns the header's backing storage for reuse once the caller
// is done referencing header fields.
func (o *OwnedResponse) IntoBuf() []byte { return o.storage }

// ClientFinished carries the codec's final persistence judgment.
type ClientFinished struct {
	Persistent bool
}

// ClientResponseBody decodes a response body according to the framing
// implied by the response's headers: Content-Length, chunked, or
// close-delimited.
type ClientResponseBody struct {
	mode responseBodyMode

	lengthRemaining int64 // mode == bodyLength

	chunk chunkedReadState // mode == bodyChunked

	persistent bool

	contentEncoding string
	gzipChecked     bool
}

// ContentEncoding returns the response's declared Content-Encoding, carried
// through from the header for diagnostic use; the engine never decodes it.
func (b *ClientResponseBody) ContentEncoding() string { return b.contentEncoding }

type responseBodyMode int

const (
	bodyLength responseBodyMode = iota
	bodyChunked
	bodyUntilClose
)

func newClientResponseBody(owned *OwnedResponse) *ClientResponseBody {
	b := &ClientResponseBody{persistent: true, contentEncoding: owned.ContentEncoding()}

	if v, ok := owned.Header("Connection"); ok && strings.EqualFold(strings.TrimSpace(v), "close") {
		b.persistent = false
	} else if strings.EqualFold(owned.proto, "HTTP/1.0") {
		b.persistent = false
	}

	if owned.statusCode == 204 || owned.statusCode == 304 || (owned.statusCode >= 100 && owned.statusCode < 200) {
		b.mode = bodyLength
		b.lengthRemaining = 0
		return b
	}

	if te, ok := owned.Header("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		b.mode = bodyChunked
		return b
	}

	if cl, ok := owned.Header("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err == nil && n >= 0 {
			b.mode = bodyLength
			b.lengthRemaining = n
			return b
		}
	}

	b.mode = bodyUntilClose
	b.persistent = false
	return b
}

// Recv feeds src (the ring buffer's currently readable bytes) through the
// body decoder, copying decoded payload into dst. end must be true iff
// src covers every readable byte and the transport has latched EOF.
func (b *ClientResponseBody) Recv(src, dst []byte, end bool, scratch *Scratch) RecvResult {
	if !b.gzipChecked && strings.EqualFold(b.contentEncoding, "gzip") {
		// Wait for the full fixed-size gzip header before judging, unless
		// the body has already ended short of it — a short-and-final body
		// can never be valid gzip either way. Anything in between (a
		// partial header with more bytes still to come) is left unchecked
		// until the next Recv call brings more data or end arrives.
		if len(src) >= gzipHeaderLen || end {
			b.gzipChecked = true
			if sniffGzipMismatch(src) {
				return RecvResult{Outcome: RecvErr, Err: fmt.Errorf("%w: Content-Encoding: gzip but body does not start with a gzip header", ErrMalformed)}
			}
		}
	}

	switch b.mode {
	case bodyLength:
		return b.recvLength(src, dst, end)
	case bodyChunked:
		return b.recvChunked(src, dst, end, scratch)
	default:
		return b.recvUntilClose(src, dst, end)
	}
}

func (b *ClientResponseBody) recvLength(src, dst []byte, end bool) RecvResult {
	want := b.lengthRemaining
	if want > int64(len(src)) {
		want = int64(len(src))
	}
	if want > int64(len(dst)) {
		want = int64(len(dst))
	}
	n := copy(dst, src[:want])
	b.lengthRemaining -= int64(n)

	if b.lengthRemaining == 0 {
		return RecvResult{Outcome: RecvComplete, Finished: &ClientFinished{Persistent: b.persistent}, Read: n, Written: n}
	}
	return RecvResult{Outcome: RecvReadMore, Read: n, Written: n}
}

func (b *ClientResponseBody) recvUntilClose(src, dst []byte, end bool) RecvResult {
	n := copy(dst, src)
	if n == len(src) && end {
		return RecvResult{Outcome: RecvComplete, Finished: &ClientFinished{Persistent: false}, Read: n, Written: n}
	}
	return RecvResult{Outcome: RecvReadMore, Read: n, Written: n}
}
