package h1x

import (
	"context"

	"github.com/relayhaus/h1x/internal/h1codec"
	"github.com/relayhaus/h1x/internal/ring"
)

// Response is phase 4: the request side is finished (or was abandoned
// for an early response) and the response status line and headers are
// being parsed.
type Response struct {
	buf1, buf2 *ring.Ring
	r          Reader
	w          Writer
	codec      *h1codec.ClientResponse
	done       bool
	logger     Logger
}

func newResponse(buf1, buf2 *ring.Ring, r Reader, w Writer, codec *h1codec.ClientResponse, logger Logger) *Response {
	return &Response{buf1: buf1, buf2: buf2, r: r, w: w, codec: codec, logger: logger}
}

func (resp *Response) log() Logger {
	if resp.logger == nil {
		return defaultLogger
	}
	return resp.logger
}

// RecvHeader streams bytes into buf1 until the codec reports a complete
// response header. Each iteration detaches buf1's backing storage and
// hands it to the codec for parsing; on Incomplete the storage
// is reinstalled, the buffer aligned if its readable region
// is non-contiguous, and more bytes are read in. On completion the
// header's residual body bytes are appended to buf2 and buf1/buf2 swap
// inner storage, so the returned ResponseBodyKeepHeader sees buf1 as the
// body's residual bytes; buf2 is then given the parsed header's storage
// (with the bytes read so far still readable) to retain.
func (resp *Response) RecvHeader(ctx context.Context, scratch *h1codec.Scratch) (*ResponseBodyKeepHeader, error) {
	if resp.done {
		return nil, ErrUnusable
	}

	for {
		select {
		case <-ctx.Done():
			return nil, &IoError{Err: ctx.Err()}
		default:
		}

		n := resp.buf1.Len()
		raw := resp.buf1.TakeInner()
		result := resp.codec.RecvHeader(raw[:n], scratch)

		switch result.Outcome {
		case h1codec.ParseComplete:
			resp.done = true
			owned := result.Owned
			if remaining := owned.RemainingBytes(); len(remaining) > 0 {
				if err := resp.buf2.WriteAll(remaining); err != nil {
					return nil, ErrBufferExceeded
				}
			}
			resp.buf1.SwapInner(resp.buf2)
			resp.buf2.SetInnerWithLen(raw, n)
			resp.log().Printf("h1x: response header parsed, status=%d", owned.StatusCode())
			return &ResponseBodyKeepHeader{
				ResponseBody: &ResponseBody{
					buf1:   resp.buf1,
					r:      resp.r,
					w:      resp.w,
					codec:  result.Body,
					logger: resp.logger,
				},
				buf2:  resp.buf2,
				owned: owned,
			}, nil

		case h1codec.ParseIncomplete:
			resp.buf1.SetInnerWithLen(raw, n)
			if !resp.buf1.IsReadableContiguous() {
				resp.buf1.Align()
				continue
			}
			if _, err := recvNonzero(ctx, resp.r, resp.buf1); err != nil {
				if err == ring.ErrWriteZero {
					return nil, ErrBufferExceeded
				}
				return nil, &IoError{Err: err}
			}
			continue

		default: // h1codec.ParseErr
			resp.buf1.SetInnerWithLen(raw, n)
			resp.done = true
			return nil, &ProtocolError{Err: result.Err}
		}
	}
}
