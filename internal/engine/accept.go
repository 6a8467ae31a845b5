package engine

import (
	"errors"
	"syscall"

	"github.com/ngrantham/streamhttp/internal/logging"
)

// AcceptLoop drains a Listener under edge-triggered semantics, wrapping
// each newly accepted Connection in its own StreamEngine armed for read
// events only. It implements the intentional backpressure policy named in
// the design: running out of file descriptors stops the server from
// taking new clients rather than spinning on the error.
type AcceptLoop struct {
	listener    Listener
	newHandler  NewClientHandler
	readBufSize int
}

// NewAcceptLoop binds a loop to listener and registers its Run method as
// the listener's readable handler via listener.EnableHandler.
func NewAcceptLoop(listener Listener, newHandler NewClientHandler, readBufSize int) *AcceptLoop {
	loop := &AcceptLoop{listener: listener, newHandler: newHandler, readBufSize: readBufSize}
	listener.EnableHandler(loop.Run)
	return loop
}

// Run accepts connections until the listener would-block, stopping early
// on an out-of-descriptors condition (after shutting the listener down) or
// any other accept error (after logging it).
func (a *AcceptLoop) Run() {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			if isTooManyOpenFiles(err) {
				logging.Warnw("httpx: accept loop out of file descriptors, stopping listener", "err", err)
				a.listener.Stop()
				return
			}
			logging.Warnw("httpx: accept failed", "err", err)
			return
		}
		if conn == nil {
			return // would-block: listener drained for this event
		}
		NewStreamEngine(conn, a.newHandler, a.readBufSize)
	}
}

func isTooManyOpenFiles(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}
