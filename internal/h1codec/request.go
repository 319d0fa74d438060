package h1codec

import (
	"fmt"
	"net"

	"github.com/relayhaus/h1x/internal/nbconn"
	"golang.org/x/net/http/httpguts"
)

var (
	strCRLF      = []byte("\r\n")
	strColonSp   = []byte(": ")
	strChunked   = []byte("Transfer-Encoding: chunked\r\n")
	strConnClose = []byte("Connection: close\r\n")
)

// ClientRequest serializes a request line and header block, grounded on
// fasthttp's RequestHeader.AppendBytes (header.go).
type ClientRequest struct{}

// NewClientRequest returns a fresh request serializer.
func NewClientRequest() *ClientRequest { return &ClientRequest{} }

// Appender is anything that can accept a single contiguous write and
// report how much of it was accepted, the shape ring.Ring.Write already
// has.
type Appender interface {
	Write(p []byte) (int, error)
}

// SendHeader serializes method, uri, headers, and the framing implied by
// bodySize into buf. It writes the whole header block in a single
// Appender.Write call so the caller (Request.PrepareHeader in h1x) can
// detect a too-small buffer from a short write.
func (c *ClientRequest) SendHeader(buf Appender, method, uri string, headers []Header, bodySize BodySize, websocket bool) (*ClientRequestBody, error) {
	for _, h := range headers {
		if !httpguts.ValidHeaderFieldName(h.Name) || !httpguts.ValidHeaderFieldValue(h.Value) {
			return nil, fmt.Errorf("%w: %q", ErrHeaderFieldInvalid, h.Name)
		}
	}

	var dst []byte
	dst = append(dst, method...)
	dst = append(dst, ' ')
	dst = append(dst, uri...)
	dst = append(dst, ' ')
	dst = append(dst, "HTTP/1.1"...)
	dst = append(dst, strCRLF...)

	for _, h := range headers {
		dst = append(dst, h.Name...)
		dst = append(dst, strColonSp...)
		dst = append(dst, h.Value...)
		dst = append(dst, strCRLF...)
	}

	switch bodySize.Kind {
	case BodyKnown:
		dst = append(dst, fmt.Sprintf("Content-Length: %d\r\n", bodySize.Len)...)
	case BodyChunked:
		dst = append(dst, strChunked...)
	}

	if websocket {
		dst = append(dst, "Upgrade: websocket\r\n"...)
		dst = append(dst, "Connection: Upgrade\r\n"...)
	}

	dst = append(dst, strCRLF...)

	n, err := buf.Write(dst)
	if err != nil {
		return nil, err
	}
	if n < len(dst) {
		return nil, errHeaderTooLarge
	}

	return &ClientRequestBody{
		chunked:       bodySize.Kind == BodyChunked,
		lengthDefined: bodySize.Kind == BodyKnown,
		remaining:     bodySize.Len,
		persistent:    true,
	}, nil
}

var errHeaderTooLarge = fmt.Errorf("h1codec: serialized header exceeds buffer capacity")

// ErrHeaderTooLarge reports whether err is the "didn't fit" signal
// SendHeader returns; h1x maps it to RequestTooLargeError.
func ErrHeaderTooLarge(err error) bool { return err == errHeaderTooLarge }

// ClientRequestBody is the codec's view of an in-flight request body: how
// much more needs to be written and in what framing.
type ClientRequestBody struct {
	chunked       bool
	lengthDefined bool
	remaining     int64 // meaningful when lengthDefined

	persistent bool

	frame *chunkFrame // non-nil while a chunked frame is partially flushed
}

// IntoEarlyResponse converts an abandoned request body into a
// ClientResponse once the engine has detected bytes arriving before the
// body finished sending.
func (b *ClientRequestBody) IntoEarlyResponse() *ClientResponse {
	return &ClientResponse{}
}

// Send attempts exactly one non-blocking write of whatever is left to
// send for the current chunk/length window. bufs is the gather view over
// the engine's write-side ring buffer; end indicates the caller has
// latched that no more body bytes will ever be staged.
func (b *ClientRequestBody) Send(w nbconn.Writer, bufs [][]byte, end bool) SendResult {
	if b.chunked {
		return b.sendChunked(w, bufs, end)
	}
	return b.sendLengthDelimited(w, bufs, end)
}

func bufsLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

func trimBufs(bufs [][]byte, max int) [][]byte {
	if max <= 0 {
		return nil
	}
	out := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if max <= 0 {
			break
		}
		if len(b) > max {
			b = b[:max]
		}
		out = append(out, b)
		max -= len(b)
	}
	return out
}

func toNetBuffers(bufs [][]byte) net.Buffers {
	nb := make(net.Buffers, len(bufs))
	for i, b := range bufs {
		nb[i] = b
	}
	return nb
}

func (b *ClientRequestBody) sendLengthDelimited(w nbconn.Writer, bufs [][]byte, end bool) SendResult {
	avail := bufsLen(bufs)
	if avail == 0 {
		if end {
			return SendResult{Outcome: SendComplete, Resp: &ClientResponse{}, N: 0}
		}
		return SendResult{Outcome: SendErr, Err: fmt.Errorf("h1codec: nothing to send and end not latched")}
	}

	n, err := w.Write(toNetBuffers(bufs))
	if err != nil {
		return SendResult{Outcome: SendErr, Err: err}
	}

	if b.lengthDefined {
		b.remaining -= int64(n)
	}

	complete := end && n == avail
	if b.lengthDefined {
		complete = complete && b.remaining <= 0
	}
	if complete {
		return SendResult{Outcome: SendComplete, Resp: &ClientResponse{}, N: n}
	}
	return SendResult{Outcome: SendPartial, N: n}
}
