package h1codec

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/relayhaus/h1x/internal/nbconn"
)

// chunkFrame tracks a chunk-transfer frame (size line + body + trailing
// CRLF, or the terminal "0\r\n\r\n") that is being flushed across
// possibly several Write calls because the transport only accepted part
// of it. Only WouldBlock-free partial writes (n > 0) ever mutate this
// state; a WouldBlock attempt leaves it untouched, matching spec
// §4.3.1.b's "restore the codec state" requirement.
type chunkFrame struct {
	prefix   []byte
	bodyLeft int
	suffix   []byte
	terminal bool
}

func newChunkFrame(bodyLen int, terminal bool) *chunkFrame {
	if terminal {
		return &chunkFrame{suffix: []byte("0\r\n\r\n"), terminal: true}
	}
	return &chunkFrame{
		prefix:   []byte(fmt.Sprintf("%x\r\n", bodyLen)),
		bodyLeft: bodyLen,
		suffix:   []byte("\r\n"),
	}
}

func (f *chunkFrame) done() bool {
	return len(f.prefix) == 0 && f.bodyLeft == 0 && len(f.suffix) == 0
}

// vectors returns the net.Buffers view of whatever is left to write for
// this frame, using at most len(body) bytes of the supplied body slices
// for the body segment.
func (f *chunkFrame) vectors(body [][]byte) net.Buffers {
	var nb net.Buffers
	if len(f.prefix) > 0 {
		nb = append(nb, f.prefix)
	}
	if f.bodyLeft > 0 {
		nb = append(nb, trimBufs(body, f.bodyLeft)...)
	}
	if len(f.suffix) > 0 {
		nb = append(nb, f.suffix)
	}
	return nb
}

// advance consumes n bytes written to the wire (in prefix, then body,
// then suffix order) and returns how many of those n bytes were body
// bytes (the only bytes the engine should ReadCommit out of its ring).
func (f *chunkFrame) advance(n int) (bodyConsumed int) {
	if n <= len(f.prefix) {
		f.prefix = f.prefix[n:]
		return 0
	}
	n -= len(f.prefix)
	f.prefix = nil

	if n <= f.bodyLeft {
		f.bodyLeft -= n
		bodyConsumed = n
		return bodyConsumed
	}
	bodyConsumed = f.bodyLeft
	n -= f.bodyLeft
	f.bodyLeft = 0

	if n > len(f.suffix) {
		n = len(f.suffix)
	}
	f.suffix = f.suffix[n:]
	return bodyConsumed
}

func (b *ClientRequestBody) sendChunked(w nbconn.Writer, bufs [][]byte, end bool) SendResult {
	if b.frame == nil {
		avail := bufsLen(bufs)
		switch {
		case avail > 0:
			b.frame = newChunkFrame(avail, false)
		case end:
			b.frame = newChunkFrame(0, true)
		default:
			return SendResult{Outcome: SendErr, Err: fmt.Errorf("h1codec: nothing to send and end not latched")}
		}
	}

	n, err := w.Write(b.frame.vectors(bufs))
	if err != nil {
		return SendResult{Outcome: SendErr, Err: err}
	}

	bodyConsumed := b.frame.advance(n)
	frameDone := b.frame.done()
	terminal := b.frame.terminal

	if frameDone {
		b.frame = nil
	}

	if frameDone && terminal {
		return SendResult{Outcome: SendComplete, Resp: &ClientResponse{}, N: bodyConsumed}
	}
	return SendResult{Outcome: SendPartial, N: bodyConsumed}
}

// chunkedReadPhase is the decoder's position within the chunked-encoding
// grammar: a size line, the chunk's data, the CRLF following the data,
// or the trailer block preceding the final blank line.
type chunkedReadPhase int

const (
	phaseSizeLine chunkedReadPhase = iota
	phaseData
	phaseDataCRLF
	phaseTrailer
	phaseChunkedDone
)

type chunkedReadState struct {
	phase         chunkedReadPhase
	dataRemaining int64
}

// recvChunked decodes as much of src as it can, copying payload bytes
// into dst as they arrive (a chunk's data may be delivered across several
// calls) and stopping at the first size line, data CRLF or trailer line
// that is not yet complete in src, or when dst is full, grounded on
// fasthttp's incremental header/trailer line scanning in header.go.
func (b *ClientResponseBody) recvChunked(src, dst []byte, end bool, scratch *Scratch) RecvResult {
	pos, written := 0, 0
	trailerCount := 0

	for {
		switch b.chunk.phase {
		case phaseChunkedDone:
			return RecvResult{Outcome: RecvComplete, Finished: &ClientFinished{Persistent: b.persistent}, Read: pos, Written: written}

		case phaseSizeLine:
			idx := bytes.IndexByte(src[pos:], '\n')
			if idx < 0 {
				return RecvResult{Outcome: RecvReadMore, Read: pos, Written: written}
			}
			line := bytes.TrimRight(src[pos:pos+idx], "\r")
			pos += idx + 1
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}
			size, err := strconv.ParseInt(strings.TrimSpace(string(line)), 16, 64)
			if err != nil || size < 0 {
				return RecvResult{Outcome: RecvErr, Err: fmt.Errorf("%w: invalid chunk size line", ErrMalformed)}
			}
			if size == 0 {
				b.chunk.phase = phaseTrailer
			} else {
				b.chunk.dataRemaining = size
				b.chunk.phase = phaseData
			}

		case phaseData:
			avail := int64(len(src) - pos)
			if avail == 0 {
				return RecvResult{Outcome: RecvReadMore, Read: pos, Written: written}
			}
			take := b.chunk.dataRemaining
			if take > avail {
				take = avail
			}
			room := int64(len(dst) - written)
			if take > room {
				take = room
			}
			if take == 0 {
				return RecvResult{Outcome: RecvReadMore, Read: pos, Written: written}
			}
			copy(dst[written:], src[pos:pos+int(take)])
			pos += int(take)
			written += int(take)
			b.chunk.dataRemaining -= take
			if b.chunk.dataRemaining == 0 {
				b.chunk.phase = phaseDataCRLF
			}

		case phaseDataCRLF:
			if len(src)-pos < 2 {
				return RecvResult{Outcome: RecvReadMore, Read: pos, Written: written}
			}
			pos += 2
			b.chunk.phase = phaseSizeLine

		case phaseTrailer:
			idx := bytes.IndexByte(src[pos:], '\n')
			if idx < 0 {
				return RecvResult{Outcome: RecvReadMore, Read: pos, Written: written}
			}
			line := bytes.TrimRight(src[pos:pos+idx], "\r")
			pos += idx + 1
			if len(line) == 0 {
				b.chunk.phase = phaseChunkedDone
				continue
			}
			if name, value, ok := splitHeaderLine(string(line)); ok && trailerCount < len(scratch.Trailers) {
				scratch.Trailers[trailerCount] = Header{Name: name, Value: value}
				trailerCount++
			}
		}
	}
}
