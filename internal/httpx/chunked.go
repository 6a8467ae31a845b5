package httpx

import (
	"bytes"
	"errors"
	"strconv"
)

// Sentinel errors for request body framing, adapted from the teacher's
// pull-based chunkedReader (body.go) to this engine's push-based decoder.
var (
	ErrBodyTooLarge      = errors.New("httpx: body too large")
	ErrBadChunk          = errors.New("httpx: invalid chunk encoding")
	ErrLengthMismatch    = errors.New("httpx: content-length mismatch")
	ErrUnexpectedTrailer = errors.New("httpx: unexpected trailer")
)

// chunkSizeLineMax bounds how many unparsed bytes a chunk-size or trailer
// line may accumulate before being treated as malformed, guarding against a
// peer that never sends a CRLF.
const chunkSizeLineMax = 4096

type chunkDecodeState int

const (
	chunkStateSize chunkDecodeState = iota
	chunkStateData
	chunkStateDataCRLF
	chunkStateTrailer
	chunkStateDone
)

// chunkDecoder incrementally decodes an HTTP/1.x chunked request body. Bytes
// arrive via feed in arbitrary-sized pieces (mirroring the parser's own
// arbitrary chunk-boundary contract); onData is invoked once per decoded
// payload fragment, in order, with chunk-size lines, chunk-terminating
// CRLFs, and trailer bytes never passed through. feed reports done once the
// terminal zero-sized chunk and its trailer section have both been consumed.
type chunkDecoder struct {
	state    chunkDecodeState
	remain   int64
	leftover []byte
}

func newChunkDecoder() *chunkDecoder {
	return &chunkDecoder{state: chunkStateSize}
}

func (d *chunkDecoder) feed(data []byte, onData func([]byte) error) (done bool, err error) {
	if len(d.leftover) > 0 {
		data = append(d.leftover, data...)
		d.leftover = nil
	}

	for {
		switch d.state {
		case chunkStateDone:
			return true, nil

		case chunkStateSize:
			i := bytes.Index(data, crlf)
			if i < 0 {
				if len(data) > chunkSizeLineMax {
					return false, ErrBadChunk
				}
				d.leftover = append(d.leftover, data...)
				return false, nil
			}
			line := data[:i]
			data = data[i+2:]
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}
			size, perr := strconv.ParseInt(string(bytes.TrimSpace(line)), 16, 64)
			if perr != nil || size < 0 {
				return false, ErrBadChunk
			}
			if size == 0 {
				d.state = chunkStateTrailer
				continue
			}
			d.remain = size
			d.state = chunkStateData

		case chunkStateData:
			if len(data) == 0 {
				return false, nil
			}
			n := int64(len(data))
			if n > d.remain {
				n = d.remain
			}
			if n > 0 {
				if err := onData(data[:n]); err != nil {
					return false, err
				}
				data = data[n:]
				d.remain -= n
			}
			if d.remain == 0 {
				d.state = chunkStateDataCRLF
			}

		case chunkStateDataCRLF:
			if len(data) < 2 {
				d.leftover = append(d.leftover, data...)
				return false, nil
			}
			if data[0] != '\r' || data[1] != '\n' {
				return false, ErrBadChunk
			}
			data = data[2:]
			d.state = chunkStateSize

		case chunkStateTrailer:
			i := bytes.Index(data, crlf)
			if i < 0 {
				if len(data) > chunkSizeLineMax {
					return false, ErrUnexpectedTrailer
				}
				d.leftover = append(d.leftover, data...)
				return false, nil
			}
			line := data[:i]
			data = data[i+2:]
			if len(line) == 0 {
				d.state = chunkStateDone
				continue
			}
			// Trailer header bytes are consumed but discarded: trailers on
			// responses are a non-goal and this engine never exposes
			// request trailers to the handler.

		default:
			return false, ErrBadChunk
		}
	}
}

var crlf = []byte("\r\n")
