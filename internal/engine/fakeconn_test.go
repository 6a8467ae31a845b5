package engine

import "bytes"

// fakeConn is an in-memory, single-goroutine Connection double: reads are
// served from a queue of pre-seeded chunks (empty queue == would-block
// unless eof is set), and writes accept at most writeBlockAfter bytes per
// call (-1 == unlimited) so tests can exercise partial-write progress.
type fakeConn struct {
	readQueue [][]byte
	readIdx   int
	eof       bool

	written         bytes.Buffer
	writeBlockAfter int
	writeQuota      int // >=0 caps total bytes this invocation may accept; -1 unlimited
	writeErr        error

	readInterest  bool
	writeInterest bool

	shutRead, shutWrite bool

	handler func(EventMask)
}

func newFakeConn() *fakeConn {
	return &fakeConn{writeBlockAfter: -1, writeQuota: -1}
}

func (c *fakeConn) queueRead(b []byte) { c.readQueue = append(c.readQueue, b) }

func (c *fakeConn) Read(buf []byte) (int, error) {
	if c.readIdx >= len(c.readQueue) {
		return 0, nil
	}
	chunk := c.readQueue[c.readIdx]
	n := copy(buf, chunk)
	if n < len(chunk) {
		c.readQueue[c.readIdx] = chunk[n:]
	} else {
		c.readIdx++
	}
	return n, nil
}

func (c *fakeConn) Write(buf []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.writeQuota == 0 {
		return 0, nil
	}
	n := len(buf)
	if c.writeBlockAfter >= 0 && n > c.writeBlockAfter {
		n = c.writeBlockAfter
	}
	if c.writeQuota > 0 && n > c.writeQuota {
		n = c.writeQuota
	}
	if n == 0 {
		return 0, nil
	}
	c.written.Write(buf[:n])
	if c.writeQuota > 0 {
		c.writeQuota -= n
	}
	return n, nil
}

func (c *fakeConn) SetReadInterest(on bool)  { c.readInterest = on }
func (c *fakeConn) SetWriteInterest(on bool) { c.writeInterest = on }

func (c *fakeConn) Shutdown(readSide, writeSide bool) {
	if readSide {
		c.shutRead = true
	}
	if writeSide {
		c.shutWrite = true
	}
}

func (c *fakeConn) IsReadClosed() bool  { return c.shutRead || (c.eof && c.readIdx >= len(c.readQueue)) }
func (c *fakeConn) IsWriteClosed() bool { return c.shutWrite }

func (c *fakeConn) EnableHandler(h func(EventMask), initRead, initWrite bool) {
	c.handler = h
	c.readInterest = initRead
	c.writeInterest = initWrite
}
