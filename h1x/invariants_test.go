package h1x

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/relayhaus/h1x/internal/nbconn"
	"github.com/stretchr/testify/require"
)

// After PrepareHeader, buf1 holds exactly the serialized request header
// and buf2 holds exactly the initial body bytes.
func TestPrepareHeaderSplitsHeaderAndBodyAcrossBuffers(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("PUT", "/y", []Header{{Name: "Host", Value: "h"}}, BodySize{Kind: BodyKnown, Len: 3}, false, []byte("xyz"), true)
	require.NoError(t, err)

	require.Equal(t, "PUT /y HTTP/1.1\r\nHost: h\r\nContent-Length: 3\r\n\r\n", string(rh.buf1.ReadBuf()))
	require.Equal(t, "xyz", string(rh.buf2.ReadBuf()))
}

// Total bytes committed to the writer equals the sum of accepted
// prepare-staged bytes, absent an EarlyResponse truncation.
func TestCommittedBytesMatchPrepared(t *testing.T) {
	fake := nbconn.NewFake()
	fake.SetWriteChunk(2)
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("POST", "/z", []Header{{Name: "Host", Value: "h"}}, BodySize{Kind: BodyKnown, Len: 6}, false, nil, false)
	require.NoError(t, err)

	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	staged := 0
	n, err := rb.Prepare([]byte("foo"), false)
	require.NoError(t, err)
	staged += n
	n, err = rb.Prepare([]byte("bar"), true)
	require.NoError(t, err)
	staged += n
	require.Equal(t, 6, staged)

	committed := 0
	var status SendStatus
	for rb.CanSend() {
		status, err = rb.Send(context.Background())
		require.NoError(t, err)
		committed += status.N
	}
	require.Equal(t, SendComplete, status.Outcome)
	require.Equal(t, staged, committed)
}

// After RecvHeader, buf1's readable bytes equal the body-prefix residual
// and buf2 holds the header's retained storage.
func TestRecvHeaderResidualSplit(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("GET", "/x", nil, BodySize{Kind: BodyNone}, false, nil, true)
	require.NoError(t, err)
	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	fake.Deliver([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhel"))
	status, err := rb.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, SendComplete, status.Outcome)

	var scratch Scratch
	rbkh, err := status.Response.RecvHeader(context.Background(), &scratch)
	require.NoError(t, err)

	require.Equal(t, "hel", string(rbkh.buf1.ReadBuf()))
	require.True(t, rbkh.buf2.Len() > 0) // retains the parsed header bytes
}

// Finished.IsPersistent reflects the codec's judgment — a
// Connection: close response is not persistent.
func TestFinishedPersistenceReflectsConnectionClose(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("GET", "/x", nil, BodySize{Kind: BodyNone}, false, nil, true)
	require.NoError(t, err)
	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	fake.Deliver([]byte("HTTP/1.1 200 OK\r\nConnection: close\r\nContent-Length: 2\r\n\r\nhi"))
	status, err := rb.Send(context.Background())
	require.NoError(t, err)

	var scratch Scratch
	rbkh, err := status.Response.RecvHeader(context.Background(), &scratch)
	require.NoError(t, err)
	body := rbkh.DiscardHeader()

	dest := make([]byte, 8)
	recv, err := body.TryRecv(dest, &scratch)
	require.NoError(t, err)
	require.Equal(t, RecvComplete, recv.Outcome)
	require.False(t, recv.Finished.IsPersistent())
}

// TryRecv and AddToBuffer both return ErrUnusable once the body has
// reached Complete.
func TestBodyUnusableAfterComplete(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("GET", "/x", nil, BodySize{Kind: BodyNone}, false, nil, true)
	require.NoError(t, err)
	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	fake.Deliver([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"))
	status, err := rb.Send(context.Background())
	require.NoError(t, err)

	var scratch Scratch
	rbkh, err := status.Response.RecvHeader(context.Background(), &scratch)
	require.NoError(t, err)
	body := rbkh.DiscardHeader()

	dest := make([]byte, 8)
	recv, err := body.TryRecv(dest, &scratch)
	require.NoError(t, err)
	require.Equal(t, RecvComplete, recv.Outcome)

	_, err = body.TryRecv(dest, &scratch)
	require.ErrorIs(t, err, ErrUnusable)

	err = body.AddToBuffer(context.Background())
	require.ErrorIs(t, err, ErrUnusable)
}

// A short Prepare (n < len(src)) never latches end.
func TestShortPrepareNeverLatchesEnd(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 8) // tiny buf2 forces a short accept

	rh, err := req.PrepareHeader("POST", "/x", nil, BodySize{Kind: BodyChunked}, false, nil, false)
	require.NoError(t, err)
	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	src := bytes.Repeat([]byte("x"), 64)
	n, err := rb.Prepare(src, true)
	require.NoError(t, err)
	require.Less(t, n, len(src))
	require.False(t, rb.end)
}

// The W/R race restores ClientRequestBody state on WouldBlock — a
// stalled write never consumes body bytes or mutates the in-flight chunk
// frame, so the bytes are still there to flush once the writer becomes
// writable again.
func TestWouldBlockRestoresCodecState(t *testing.T) {
	fake := nbconn.NewFake()
	req := NewExchange(fake, fake, 4096, 4096)

	rh, err := req.PrepareHeader("POST", "/x", nil, BodySize{Kind: BodyKnown, Len: 3}, false, nil, false)
	require.NoError(t, err)
	rb, err := rh.Send(context.Background())
	require.NoError(t, err)

	_, err = rb.Prepare([]byte("abc"), true)
	require.NoError(t, err)

	// Both W and R are WouldBlock: send wedges until the surrounding
	// context gives up — there is no internal timeout or fairness
	// mechanism, by design; the caller's context is what bounds this.
	fake.SetWriteWouldBlock(true)
	stallCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rb.Send(stallCtx)
	require.Error(t, err)
	require.Equal(t, 3, rb.buf2.Len()) // nothing consumed while stalled

	fake.SetWriteWouldBlock(false)
	status, err := rb.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, SendComplete, status.Outcome)
	require.Equal(t, "POST /x HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc", string(fake.Written()))
}
