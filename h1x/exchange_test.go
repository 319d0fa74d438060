package h1x

import (
	"bytes"
	"context"
	"testing"

	"github.com/relayhaus/h1x/internal/nbconn"
	"github.com/stretchr/testify/require"
)

// S1: minimal GET, length-delimited response body.
func TestExchangeMinimalGet(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("GET", "/x", []Header{{Name: "Host", Value: "h"}}, BodySize{Kind: BodyNone}, false, nil, true)
	require.NoError(t, err)

	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	fake.Deliver([]byte("HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nabc"))

	status, err := rb.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, SendComplete, status.Outcome)
	require.NotNil(t, status.Response)

	var scratch Scratch
	rbkh, err := status.Response.RecvHeader(context.Background(), &scratch)
	require.NoError(t, err)
	require.Equal(t, 200, rbkh.Owned().StatusCode())
	cl, ok := rbkh.Owned().Header("Content-Length")
	require.True(t, ok)
	require.Equal(t, "3", cl)

	body := rbkh.DiscardHeader()
	dest := make([]byte, 16)
	recv, err := body.TryRecv(dest, &scratch)
	require.NoError(t, err)
	require.Equal(t, RecvComplete, recv.Outcome)
	require.Equal(t, "abc", string(dest[:recv.Written]))
	require.True(t, recv.Finished.IsPersistent())

	require.Equal(t, "GET /x HTTP/1.1\r\nHost: h\r\n\r\n", string(fake.Written()))
}

// S2: chunked request body across partial writes.
func TestExchangeChunkedRequestBody(t *testing.T) {
	fake := nbconn.NewFake()
	fake.SetWriteChunk(3)
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("POST", "/x", []Header{{Name: "Host", Value: "h"}}, BodySize{Kind: BodyChunked}, false, nil, false)
	require.NoError(t, err)

	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	n, err := rb.Prepare([]byte("abcd"), false)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	var status SendStatus
	for i := 0; rb.CanSend() && i < 64; i++ {
		status, err = rb.Send(context.Background())
		require.NoError(t, err)
		require.Equal(t, SendPartial, status.Outcome)
	}
	require.False(t, rb.CanSend()) // first chunk fully flushed, end not yet latched

	n, err = rb.Prepare([]byte("efghi"), true)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	for i := 0; rb.CanSend() && i < 64; i++ {
		status, err = rb.Send(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, SendComplete, status.Outcome)

	want := "POST /x HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"4\r\nabcd\r\n5\r\nefghi\r\n0\r\n\r\n"
	require.Equal(t, want, string(fake.Written()))
}

// S3: an early response arrives while the request body is still being
// sent; the write side is stalled so the read probe gets to see it.
func TestExchangeEarlyResponse(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("POST", "/x", []Header{{Name: "Host", Value: "h"}}, BodySize{Kind: BodyKnown, Len: 20}, false, nil, false)
	require.NoError(t, err)

	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	_, err = rb.Prepare(bytes.Repeat([]byte("x"), 10), false)
	require.NoError(t, err)

	fake.SetWriteWouldBlock(true)
	fake.Deliver([]byte("HTTP/1.1 413 Payload Too Large\r\nConnection: close\r\n\r\n"))

	status, err := rb.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, SendEarlyResponse, status.Outcome)
	require.NotNil(t, status.Response)

	var scratch Scratch
	rbkh, err := status.Response.RecvHeader(context.Background(), &scratch)
	require.NoError(t, err)
	require.Equal(t, 413, rbkh.Owned().StatusCode())
}

// S4: the write fails BrokenPipe while buf1 is empty; salvage performs
// one blocking read, which delivers a full early response.
func TestExchangeBrokenPipeSalvage(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("POST", "/x", []Header{{Name: "Host", Value: "h"}}, BodySize{Kind: BodyKnown, Len: 5}, false, nil, false)
	require.NoError(t, err)

	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	_, err = rb.Prepare([]byte("hello"), true)
	require.NoError(t, err)

	fake.QueueError(nbconn.ErrBrokenPipe)
	fake.Deliver([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))

	status, err := rb.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, SendEarlyResponse, status.Outcome)
}

// S5: the response header exceeds buf1's capacity.
func TestExchangeHeaderTooLargeForBuffer(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 32*1024, 4096)

	rh, err := req.PrepareHeader("GET", "/x", nil, BodySize{Kind: BodyNone}, false, nil, true)
	require.NoError(t, err)

	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	garbage := append([]byte("H"), bytes.Repeat([]byte("a"), 70000)...)
	fake.Deliver(garbage)

	status, err := rb.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, SendComplete, status.Outcome)

	var scratch Scratch
	_, err = status.Response.RecvHeader(context.Background(), &scratch)
	require.ErrorIs(t, err, ErrBufferExceeded)
}

// S6: no Content-Length, Connection: close framing, body then EOF.
func TestExchangeCloseDelimitedBody(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("GET", "/x", nil, BodySize{Kind: BodyNone}, false, nil, true)
	require.NoError(t, err)

	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	fake.Deliver([]byte("HTTP/1.1 200 OK\r\nConnection: close\r\n\r\n"))

	status, err := rb.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, SendComplete, status.Outcome)

	var scratch Scratch
	rbkh, err := status.Response.RecvHeader(context.Background(), &scratch)
	require.NoError(t, err)

	body := rbkh.DiscardHeader()

	fake.Deliver([]byte("1234567"))
	fake.CloseInbound()

	require.NoError(t, body.AddToBuffer(context.Background()))
	require.NoError(t, body.AddToBuffer(context.Background())) // observes EOF, latches closed

	dest := make([]byte, 16)
	recv, err := body.TryRecv(dest, &scratch)
	require.NoError(t, err)
	require.Equal(t, RecvComplete, recv.Outcome)
	require.Equal(t, 7, recv.Written)
	require.Equal(t, "1234567", string(dest[:recv.Written]))
	require.False(t, recv.Finished.IsPersistent())
}
