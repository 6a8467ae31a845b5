// Package engine implements the per-connection HTTP/1.x stream state
// machine: incremental request parsing, application dispatch, and
// response serialization against a non-blocking, edge-triggered
// transport. The package never imports a concrete reactor; it is driven
// entirely through the Connection and Listener ports defined here.
package engine

import "github.com/ngrantham/streamhttp/internal/httpx"

// EventMask carries the readable/writable bits a reactor reports on a
// Handle invocation.
type EventMask uint8

const (
	EventReadable EventMask = 1 << iota
	EventWritable
)

// Connection is the non-blocking transport port a StreamEngine is driven
// over. Read and Write never block: (0, nil) means would-block, matching
// the edge-triggered reactor model this engine assumes.
type Connection interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)

	SetReadInterest(on bool)
	SetWriteInterest(on bool)

	Shutdown(readSide, writeSide bool)
	IsReadClosed() bool
	IsWriteClosed() bool

	// EnableHandler arms the reactor to invoke handler whenever this
	// connection's readiness changes, with the given initial interest.
	EnableHandler(handler func(EventMask), initialRead, initialWrite bool)
}

// Listener is the non-blocking accept port AcceptLoop is driven over.
type Listener interface {
	Accept() (Connection, error)
	EnableHandler(handler func())
	Stop()
}

// HeaderAction is the application's disposition for a request, written
// into a HeaderView's Result field during the headers-complete dispatch.
type HeaderAction int

const (
	// ActionOK lets the parser continue into the request body as usual.
	ActionOK HeaderAction = iota
	// ActionSkipBody rejects the request without reading its body: the
	// handler must have already written a response into the responseSlot.
	ActionSkipBody
	// ActionClose drops the connection immediately, no response sent.
	ActionClose
)

// HeaderView is the ephemeral request view delivered to the application at
// headers-complete. It is only valid for the duration of that dispatch.
type HeaderView struct {
	Method  string
	Target  string
	Version string
	Header  httpx.Header
	Result  HeaderAction
}

// BodyView is a single borrowed chunk of request body bytes delivered to
// the application at body-chunk. The application must copy or process it
// synchronously; the backing array is reused on the next read.
type BodyView struct {
	Data []byte
}

// ResponseSlot is the out-parameter an application handler writes a
// Response into. It is present on the headers-complete and
// message-complete dispatches; on body-chunk any write to it is ignored.
type ResponseSlot struct {
	resp *httpx.Response
}

// Set records the application's response. Calling it more than once keeps
// only the last value.
func (s *ResponseSlot) Set(r *httpx.Response) { s.resp = r }

// Get returns the response written into the slot, or nil if none was.
func (s *ResponseSlot) Get() *httpx.Response { return s.resp }

// RequestHandler is invoked with exactly one of three argument shapes:
// (header, nil, slot) at headers-complete, (nil, body, slot) at
// body-chunk, or (nil, nil, slot) at message-complete.
type RequestHandler func(header *HeaderView, body *BodyView, slot *ResponseSlot)

// NewClientHandler mints a fresh RequestHandler, with its own
// per-connection state, for each accepted connection.
type NewClientHandler func() RequestHandler
