package engine

import (
	"container/list"
	"fmt"

	"github.com/ngrantham/streamhttp/internal/httpx"
	"github.com/ngrantham/streamhttp/internal/logging"
)

// DefaultReadBufferSize is the per-connection read buffer size used when a
// caller does not override it.
const DefaultReadBufferSize = 1 << 20 // 1 MiB

// headerLimits bounds a single request's header block, rejecting
// pathologically large or numerous headers before they ever reach the
// application handler.
var headerLimits = httpx.HeaderLimits{
	MaxFields:           100,
	MaxKeyBytes:         256,
	MaxValueBytes:       8192,
	MaxTotalValuesBytes: 64 * 1024,
}

// StreamEngine is the per-connection HTTP/1.x state machine: it owns the
// ByteParser, the FIFO of pending responses, and the read/write interest
// discipline that keeps request parsing and response serialization from
// interleaving. A StreamEngine is created once per accepted connection and
// lives until the connection is fully shut down.
type StreamEngine struct {
	conn    Connection
	handler RequestHandler
	parser  *httpx.Parser

	readBuf []byte
	queue   *list.List // of *pendingResponse

	skip       bool  // SKIP_BODY: read-shutdown now, drain queue, then full-close
	dropClient bool  // message-complete produced no response: close once queue drains
	forceClose bool  // handler CLOSE, or a contract violation: full-close this invocation
	lastErr    error // io or parser error: full-close this invocation, logged once
	closed     bool

	// Per-message scratch, valid between Begin and MessageComplete.
	curMethod  string
	curTarget  string
	curVersion string
	curField   string
	curHeaders httpx.HeaderAccumulator
	curSlot    ResponseSlot
}

// NewStreamEngine builds a StreamEngine bound to conn, arms conn's handler,
// and returns it already listening for read events. readBufSize <= 0 uses
// DefaultReadBufferSize.
func NewStreamEngine(conn Connection, newHandler NewClientHandler, readBufSize int) *StreamEngine {
	if readBufSize <= 0 {
		readBufSize = DefaultReadBufferSize
	}
	e := &StreamEngine{
		conn:    conn,
		handler: newHandler(),
		readBuf: make([]byte, readBufSize),
		queue:   list.New(),
	}
	e.parser = httpx.NewParser(e.callbacks())
	conn.EnableHandler(e.Handle, true, false)
	return e
}

// Handle is the reactor's single entry point into this connection: it
// advances the response queue if one is pending, otherwise drains readable
// bytes into the parser, then recomputes interest bits and shutdown state.
func (e *StreamEngine) Handle(events EventMask) {
	if e.closed {
		return
	}

	if e.queue.Len() > 0 {
		e.serveQueue()
	} else if events&EventReadable != 0 && !e.skip && !e.dropClient {
		e.drainRead()
	}

	e.updateInterest()
	e.maybeShutdown()
}

// serveQueue advances the head pending response until it completes, blocks
// on a would-block write, or errors. Only ever the head of the queue is
// touched: responses are serialized strictly in FIFO order.
func (e *StreamEngine) serveQueue() {
	for e.queue.Len() > 0 {
		front := e.queue.Front()
		p := front.Value.(*pendingResponse)

		outcome, err := advancePending(e.conn, p)
		switch outcome {
		case outcomeBlocked:
			return
		case outcomeError:
			logging.Warnw("httpx: response write failed", "err", err)
			e.lastErr = err
			p.release()
			e.queue.Remove(front)
			return
		case outcomeDone:
			p.release()
			e.queue.Remove(front)
		}
	}
}

// drainRead performs the classic edge-triggered accept/read drain: keep
// reading full buffers until a short read or would-block, feeding every
// non-empty read straight to the parser. It stops reading after any read
// whose parsing queued a response (at message-complete, or headers-complete
// with SKIP_BODY) or entered skip or drop state, and on any parser error,
// since the interest discipline forbids reading further while a response is
// pending.
func (e *StreamEngine) drainRead() {
	for {
		n, err := e.conn.Read(e.readBuf)
		if err != nil {
			logging.Warnw("httpx: connection read failed", "err", err)
			e.lastErr = err
			return
		}
		if n == 0 {
			break
		}
		if perr := e.parser.Execute(e.readBuf[:n]); perr != nil {
			if !e.skip && !e.forceClose && !e.dropClient {
				logging.Warnw("httpx: request parse failed", "err", perr)
				e.lastErr = perr
			}
			return
		}
		if e.queue.Len() > 0 || e.skip || e.dropClient {
			return
		}
		if n < len(e.readBuf) {
			break
		}
	}
	if e.conn.IsReadClosed() {
		if ferr := e.parser.Finish(); ferr != nil {
			logging.Warnw("httpx: connection closed mid-message", "err", ferr)
			e.lastErr = ferr
		}
	}
}

// updateInterest enforces the engine's core invariant: write-interest
// tracks queue occupancy, and read-interest is asserted only when the
// queue is empty and the connection isn't skipping a rejected body or
// waiting to drop the client. While any response is pending, the engine
// never reads.
func (e *StreamEngine) updateInterest() {
	writeInterest := e.queue.Len() > 0
	readInterest := e.queue.Len() == 0 && !e.skip && !e.dropClient
	e.conn.SetWriteInterest(writeInterest)
	e.conn.SetReadInterest(readInterest)
}

// maybeShutdown applies the shutdown decision from the end of every
// invocation. skip shuts the read side immediately (every invocation,
// harmless to repeat) and leaves the queue to drain; a hard error, a
// handler-forced close, a closed write side, or a drained queue against an
// already-closed read side all trigger a full shutdown.
func (e *StreamEngine) maybeShutdown() {
	if e.closed {
		return
	}
	if e.skip {
		e.conn.Shutdown(true, false)
	}
	queueEmpty := e.queue.Len() == 0
	if e.lastErr != nil ||
		e.forceClose ||
		e.conn.IsWriteClosed() ||
		(e.dropClient && queueEmpty) ||
		(e.conn.IsReadClosed() && queueEmpty) {
		e.conn.Shutdown(true, true)
		e.closed = true
	}
}

func (e *StreamEngine) enqueue(resp *httpx.Response, keepAlive, isHead bool) {
	e.queue.PushBack(newPendingResponse(resp, isHead, keepAlive))
}

// callbacks wires the ByteParser's lifecycle events to this engine's
// per-message bookkeeping and application dispatch.
func (e *StreamEngine) callbacks() httpx.ParserCallbacks {
	return httpx.ParserCallbacks{
		Begin:           e.onBegin,
		Method:          e.onMethod,
		URL:             e.onURL,
		Version:         e.onVersion,
		HeaderField:     e.onHeaderField,
		HeaderValue:     e.onHeaderValue,
		HeadersComplete: e.onHeadersComplete,
		BodyChunk:       e.onBodyChunk,
		MessageComplete: e.onMessageComplete,
	}
}

func (e *StreamEngine) onBegin() httpx.Signal {
	e.curMethod = ""
	e.curTarget = ""
	e.curVersion = ""
	e.curField = ""
	e.curHeaders.Reset()
	return httpx.SignalContinue
}

func (e *StreamEngine) onMethod(b []byte) httpx.Signal {
	e.curMethod = string(b)
	return httpx.SignalContinue
}

func (e *StreamEngine) onURL(b []byte) httpx.Signal {
	e.curTarget = string(b)
	return httpx.SignalContinue
}

func (e *StreamEngine) onVersion(major, minor int) httpx.Signal {
	e.curVersion = fmt.Sprintf("%d.%d", major, minor)
	return httpx.SignalContinue
}

func (e *StreamEngine) onHeaderField(b []byte) httpx.Signal {
	e.curField = string(b)
	return httpx.SignalContinue
}

func (e *StreamEngine) onHeaderValue(b []byte) httpx.Signal {
	e.curHeaders.Add(e.curField, string(b))
	return httpx.SignalContinue
}

// onHeadersComplete builds the Request view and dispatches to the
// application. OK lets the parser continue into the body; SKIP_BODY
// requires an already-produced response and enters skip state; CLOSE is
// treated exactly like a protocol error, closing the connection at the end
// of this invocation.
func (e *StreamEngine) onHeadersComplete() httpx.Signal {
	if err := httpx.ValidateHeader(e.curHeaders.Header(), headerLimits); err != nil {
		logging.Warnw("httpx: request headers rejected", "err", err)
		e.forceClose = true
		return httpx.SignalAbort
	}

	e.curSlot = ResponseSlot{}
	hv := &HeaderView{
		Method:  e.curMethod,
		Target:  e.curTarget,
		Version: e.curVersion,
		Header:  e.curHeaders.Header(),
		Result:  ActionOK,
	}
	e.handler(hv, nil, &e.curSlot)

	switch hv.Result {
	case ActionSkipBody:
		resp := e.curSlot.Get()
		if resp == nil {
			logging.Warnw("httpx: handler returned SKIP_BODY without a response")
			e.forceClose = true
			return httpx.SignalAbort
		}
		e.enqueue(resp, false, e.curMethod == "HEAD")
		e.skip = true
		return httpx.SignalAbort
	case ActionClose:
		e.forceClose = true
		return httpx.SignalAbort
	default:
		return httpx.SignalContinue
	}
}

func (e *StreamEngine) onBodyChunk(b []byte) httpx.Signal {
	var slot ResponseSlot
	e.handler(nil, &BodyView{Data: b}, &slot)
	return httpx.SignalContinue
}

// onMessageComplete queries keep-alive eligibility from the parser (it
// governs the Connection header on the response this dispatch produces),
// then dispatches to the application. No response means the application
// signalled "drop this client": the connection closes once whatever is
// already queued has drained, rather than immediately.
func (e *StreamEngine) onMessageComplete() httpx.Signal {
	keepAlive := e.parser.KeepAlive()
	e.curSlot = ResponseSlot{}
	e.handler(nil, nil, &e.curSlot)

	resp := e.curSlot.Get()
	if resp == nil {
		e.dropClient = true
		return httpx.SignalAbort
	}
	e.enqueue(resp, keepAlive, e.curMethod == "HEAD")
	return httpx.SignalContinue
}
