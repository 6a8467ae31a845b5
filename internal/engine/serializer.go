package engine

import (
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/ngrantham/streamhttp/internal/httpx"
)

// serializePhase tracks where a pendingResponse is in NEW -> HEADER ->
// BODY, per the component's three-phase contract.
type serializePhase int

const (
	phaseNew serializePhase = iota
	phaseHeader
	phaseBody
)

// pendingResponse pairs an application Response with the cursor state
// needed to resume writing it across would-block boundaries.
type pendingResponse struct {
	resp      *httpx.Response
	isHead    bool
	keepAlive bool

	phase     serializePhase
	headerBuf *bytebufferpool.ByteBuffer
	headerOff int

	curChunk []byte
	chunkOff int
	bodyDone bool
}

// headerBufPool draws and returns the contiguous buffers response header
// blocks are materialised into, avoiding an allocation per response on a
// connection that may serialize thousands of them over its lifetime.
var headerBufPool bytebufferpool.Pool

func newPendingResponse(resp *httpx.Response, isHead, keepAlive bool) *pendingResponse {
	return &pendingResponse{resp: resp, isHead: isHead, keepAlive: keepAlive, phase: phaseNew}
}

// release returns any pooled header buffer. Must be called exactly once,
// when the response leaves the queue (either written fully or abandoned
// after a write error).
func (p *pendingResponse) release() {
	if p.headerBuf != nil {
		headerBufPool.Put(p.headerBuf)
		p.headerBuf = nil
	}
}

// buildHeaderBlock materialises the status line, Connection header,
// Content-Length (a nil Body counts as length 0), and every application
// header into a pooled buffer, in the order the wire format fixes: status
// line, Connection, Content-Length, then application headers, then the
// terminating blank line.
func buildHeaderBlock(p *pendingResponse) {
	buf := headerBufPool.Get()

	fmt.Fprintf(buf, "HTTP/%s %d %s\r\n", p.resp.Version, p.resp.Status, p.resp.Message)

	if p.keepAlive {
		buf.WriteString("Connection: keep-alive\r\n")
	} else {
		buf.WriteString("Connection: close\r\n")
	}

	var bodyLen int64
	if p.resp.Body != nil {
		bodyLen = p.resp.Body.Len()
	}
	fmt.Fprintf(buf, "Content-Length: %d\r\n", bodyLen)

	for name, value := range p.resp.Header {
		fmt.Fprintf(buf, "%s: %s\r\n", name, value)
	}

	buf.WriteString("\r\n")

	p.headerBuf = buf
	p.headerOff = 0
}

// pullNextChunk advances the body producer by one chunk. A zero-length,
// non-terminal chunk is a legitimate "nothing ready, ask again" signal and
// is not mistaken for end-of-stream.
func (p *pendingResponse) pullNextChunk() {
	if p.bodyDone {
		return
	}
	if p.resp.Body == nil {
		p.bodyDone = true
		p.curChunk = nil
		p.chunkOff = 0
		return
	}
	c := p.resp.Body.Next()
	p.chunkOff = 0
	if c.End {
		p.bodyDone = true
		p.curChunk = nil
		return
	}
	p.curChunk = c.Data
}

// serializeOutcome reports what advancePending accomplished in one call.
type serializeOutcome int

const (
	outcomeBlocked serializeOutcome = iota
	outcomeDone
	outcomeError
)

// advancePending drives p through as many phases as complete without
// blocking, re-entering the loop after each synchronous completion rather
// than relying on switch fall-through. It returns outcomeDone once the
// entire response (headers and body) has been written, outcomeBlocked when
// the connection would block and p should be resumed on the next writable
// event, or outcomeError on a write failure.
func advancePending(conn Connection, p *pendingResponse) (serializeOutcome, error) {
	for {
		switch p.phase {
		case phaseNew:
			if conn.IsReadClosed() || conn.IsWriteClosed() {
				p.keepAlive = false
			}
			buildHeaderBlock(p)
			p.phase = phaseHeader

		case phaseHeader:
			buf := p.headerBuf.B
			for p.headerOff < len(buf) {
				n, err := conn.Write(buf[p.headerOff:])
				if err != nil {
					return outcomeError, err
				}
				if n == 0 {
					return outcomeBlocked, nil
				}
				p.headerOff += n
			}
			if p.isHead {
				p.bodyDone = true
				p.curChunk = nil
			} else {
				p.pullNextChunk()
			}
			p.phase = phaseBody

		case phaseBody:
			if p.bodyDone {
				return outcomeDone, nil
			}
			for p.chunkOff < len(p.curChunk) {
				n, err := conn.Write(p.curChunk[p.chunkOff:])
				if err != nil {
					return outcomeError, err
				}
				if n == 0 {
					return outcomeBlocked, nil
				}
				p.chunkOff += n
			}
			p.pullNextChunk()

		default:
			return outcomeDone, nil
		}
	}
}
