package h1x

import (
	"context"
	"errors"

	"github.com/relayhaus/h1x/internal/h1codec"
	"github.com/relayhaus/h1x/internal/nbconn"
	"github.com/relayhaus/h1x/internal/ring"
)

// Header, BodySize, and BodySizeKind are the codec's wire vocabulary,
// re-exported so callers never need to import internal/h1codec directly.
type (
	Header        = h1codec.Header
	BodySize      = h1codec.BodySize
	BodySizeKind  = h1codec.BodySizeKind
	Scratch       = h1codec.Scratch
	OwnedResponse = h1codec.OwnedResponse
)

const (
	BodyNone    = h1codec.BodyNone
	BodyKnown   = h1codec.BodyKnown
	BodyChunked = h1codec.BodyChunked
)

// Request is phase 1 of an exchange: the two ring buffers and stream
// halves are borrowed but nothing has been written yet.
type Request struct {
	buf1, buf2 *ring.Ring
	r          Reader
	w          Writer
	done       bool
	logger     Logger
}

// NewExchange begins a new HTTP/1 exchange over r/w, allocating its two
// ring buffers (header/early-response buf1, body-staging buf2) from the
// shared pool. headerCap bounds the serialized request header and the
// response status line plus headers; bodyCap bounds how much request or
// response body the engine stages at once.
func NewExchange(r Reader, w Writer, headerCap, bodyCap int) *Request {
	return &Request{
		buf1: ring.NewFromPool(headerCap),
		buf2: ring.NewFromPool(bodyCap),
		r:    r,
		w:    w,
	}
}

// PrepareHeader serializes the request line and headers into buf1 and
// stages initialBody into buf2. No I/O is performed. end indicates
// whether initialBody is the entire request body.
func (req *Request) PrepareHeader(method, uri string, headers []Header, bodySize BodySize, websocket bool, initialBody []byte, end bool) (*RequestHeader, error) {
	if req.done {
		return nil, ErrUnusable
	}
	req.done = true

	codecReq := h1codec.NewClientRequest()
	reqBody, err := codecReq.SendHeader(req.buf1, method, uri, headers, bodySize, websocket)
	if err != nil {
		if h1codec.ErrHeaderTooLarge(err) {
			return nil, &RequestTooLargeError{Capacity: req.buf1.Capacity()}
		}
		return nil, &ProtocolError{Err: err}
	}

	if len(initialBody) > 0 {
		if werr := req.buf2.WriteAll(initialBody); werr != nil {
			return nil, ErrBufferExceeded
		}
	}

	return &RequestHeader{
		buf1:   req.buf1,
		buf2:   req.buf2,
		r:      req.r,
		w:      req.w,
		body:   reqBody,
		end:    end,
		logger: req.log(),
	}, nil
}

// RequestHeader is phase 2: the header has been serialized into buf1 and
// is ready to be flushed to the writer.
type RequestHeader struct {
	buf1, buf2 *ring.Ring
	r          Reader
	w          Writer
	body       *h1codec.ClientRequestBody
	end        bool
	done       bool
	logger     Logger
}

// Send drains buf1 to the writer by repeated non-blocking writes, each
// committing exactly the bytes accepted, suspending (cooperatively
// polling) between attempts. buf2, already holding any initial body
// bytes, is left intact.
func (rh *RequestHeader) Send(ctx context.Context) (*RequestBody, error) {
	if rh.done {
		return nil, ErrUnusable
	}
	rh.done = true

	dst := make([][]byte, 2)
	flushed := 0
	for rh.buf1.Len() > 0 {
		select {
		case <-ctx.Done():
			return nil, &IoError{Err: ctx.Err()}
		default:
		}

		bufs := rh.buf1.ReadBufs(dst)
		n, err := rh.w.Write(toNetBuffers(bufs))
		if err != nil {
			if errors.Is(err, nbconn.ErrWouldBlock) {
				if yerr := cooperativeYield(ctx); yerr != nil {
					return nil, &IoError{Err: yerr}
				}
				continue
			}
			return nil, &IoError{Err: err}
		}
		rh.buf1.ReadCommit(n)
		flushed += n
	}

	rh.logger.Printf("h1x: request header flushed (%d bytes)", flushed)

	return &RequestBody{
		buf1:      rh.buf1,
		buf2:      rh.buf2,
		r:         rh.r,
		w:         rh.w,
		codec:     rh.body,
		end:       rh.end,
		blockSize: rh.buf2.Capacity(),
		logger:    rh.logger,
	}, nil
}
