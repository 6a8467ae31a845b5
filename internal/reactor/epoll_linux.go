//go:build linux

// Package reactor implements engine.Connection and engine.Listener on top of
// a Linux epoll instance in edge-triggered mode. It is the only place in
// this module that talks to the kernel directly; everything above it deals
// in the explicit read/write/interest ports the engine package defines.
package reactor

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ngrantham/streamhttp/internal/engine"
	"github.com/ngrantham/streamhttp/internal/logging"
)

const maxEvents = 256

// Reactor owns one epoll instance and dispatches its events to the
// registered fds' handlers. Callers run Run in a dedicated goroutine.
type Reactor struct {
	epfd int

	mu   sync.Mutex
	regs map[int]*registration
}

type registration struct {
	fd         int
	connHandle func(engine.EventMask)
	listenFn   func()
	wantRead   bool
	wantWrite  bool
}

// New creates an epoll instance.
func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &Reactor{epfd: epfd, regs: make(map[int]*registration)}, nil
}

// Close releases the epoll instance. It does not close any registered fds.
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}

// Run blocks, delivering epoll events to their registered handlers until
// the reactor is closed.
func (r *Reactor) Run() {
	var events [maxEvents]unix.EpollEvent
	for {
		n, err := unix.EpollWait(r.epfd, events[:], -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if errors.Is(err, unix.EBADF) {
				return // epoll instance closed under us
			}
			logging.Warnw("reactor: epoll_wait failed", "err", err)
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			mask := events[i].Events

			r.mu.Lock()
			reg := r.regs[fd]
			r.mu.Unlock()
			if reg == nil {
				continue
			}

			if reg.listenFn != nil {
				reg.listenFn()
				continue
			}

			if em := translateEvents(mask); em != 0 && reg.connHandle != nil {
				reg.connHandle(em)
			}
		}
	}
}

// translateEvents maps a raw epoll event mask to the engine's EventMask.
// HUP and ERR both surface as readable: the next Read call is where the
// engine learns the concrete reason (EOF, ECONNRESET, ...).
func translateEvents(mask uint32) engine.EventMask {
	var em engine.EventMask
	if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		em |= engine.EventReadable
	}
	if mask&unix.EPOLLOUT != 0 {
		em |= engine.EventWritable
	}
	return em
}

func (r *Reactor) register(fd int, reg *registration, interest uint32) error {
	r.mu.Lock()
	r.regs[fd] = reg
	r.mu.Unlock()
	ev := unix.EpollEvent{Fd: int32(fd), Events: interest}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *Reactor) modify(fd int, interest uint32) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: interest}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (r *Reactor) unregister(fd int) {
	r.mu.Lock()
	delete(r.regs, fd)
	r.mu.Unlock()
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// conn adapts a raw, non-blocking socket fd into engine.Connection.
type conn struct {
	reactor *Reactor
	fd      int
	reg     *registration

	readClosed  bool
	writeClosed bool
}

// NewConn wraps an already-nonblocking fd. The caller must have put fd into
// non-blocking mode (net.Conn's SyscallConn + raw fd control, or socket
// options set at creation) before handing it here.
func NewConn(reactor *Reactor, fd int) engine.Connection {
	return &conn{reactor: reactor, fd: fd}
}

func (c *conn) Read(buf []byte) (int, error) {
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		c.readClosed = true
	}
	return n, nil
}

func (c *conn) Write(buf []byte) (int, error) {
	n, err := unix.Write(c.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (c *conn) SetReadInterest(on bool) {
	c.reg.wantRead = on
	c.syncInterest()
}

func (c *conn) SetWriteInterest(on bool) {
	c.reg.wantWrite = on
	c.syncInterest()
}

func (c *conn) syncInterest() {
	var interest uint32
	if c.reg.wantRead {
		interest |= unix.EPOLLIN
	}
	if c.reg.wantWrite {
		interest |= unix.EPOLLOUT
	}
	interest |= unix.EPOLLET
	if err := c.reactor.modify(c.fd, interest); err != nil {
		logging.Warnw("reactor: epoll_ctl mod failed", "fd", c.fd, "err", err)
	}
}

func (c *conn) Shutdown(readSide, writeSide bool) {
	how := -1
	switch {
	case readSide && writeSide:
		how = unix.SHUT_RDWR
	case readSide:
		how = unix.SHUT_RD
	case writeSide:
		how = unix.SHUT_WR
	}
	if how >= 0 {
		unix.Shutdown(c.fd, how)
	}
	if readSide {
		c.readClosed = true
	}
	if writeSide {
		c.writeClosed = true
	}
	if c.readClosed && c.writeClosed {
		c.reactor.unregister(c.fd)
		unix.Close(c.fd)
	}
}

func (c *conn) IsReadClosed() bool  { return c.readClosed }
func (c *conn) IsWriteClosed() bool { return c.writeClosed }

func (c *conn) EnableHandler(handler func(engine.EventMask), initialRead, initialWrite bool) {
	c.reg = &registration{fd: c.fd, connHandle: handler, wantRead: initialRead, wantWrite: initialWrite}
	var interest uint32 = unix.EPOLLET
	if initialRead {
		interest |= unix.EPOLLIN
	}
	if initialWrite {
		interest |= unix.EPOLLOUT
	}
	if err := c.reactor.register(c.fd, c.reg, interest); err != nil {
		logging.Warnw("reactor: epoll_ctl add failed", "fd", c.fd, "err", err)
	}
}

// listener adapts a net.TCPListener into engine.Listener, driven by an
// edge-triggered readable registration on its listening fd.
type listener struct {
	reactor *Reactor
	ln      *net.TCPListener
	fd      int
	raw     syscall.RawConn
	stopped bool
}

// NewListener wraps an already-bound, already-listening TCP listener.
// Callers typically build ln with net.ListenConfig and a Control func that
// sets SO_REUSEADDR/SO_REUSEPORT, per the ambient-stack conventions this
// module follows for socket setup.
func NewListener(reactor *Reactor, ln *net.TCPListener) (engine.Listener, error) {
	raw, err := ln.SyscallConn()
	if err != nil {
		return nil, err
	}
	var fd int
	cerr := raw.Control(func(fdv uintptr) { fd = int(fdv) })
	if cerr != nil {
		return nil, cerr
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("reactor: set listener non-blocking: %w", err)
	}
	return &listener{reactor: reactor, ln: ln, fd: fd, raw: raw}, nil
}

func (l *listener) Accept() (engine.Connection, error) {
	nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return nil, nil
		}
		return nil, err
	}
	return NewConn(l.reactor, nfd), nil
}

func (l *listener) EnableHandler(handler func()) {
	reg := &registration{fd: l.fd, listenFn: handler}
	if err := l.reactor.register(l.fd, reg, unix.EPOLLIN|unix.EPOLLET); err != nil {
		logging.Warnw("reactor: epoll_ctl add failed for listener", "fd", l.fd, "err", err)
	}
}

func (l *listener) Stop() {
	if l.stopped {
		return
	}
	l.stopped = true
	l.reactor.unregister(l.fd)
	l.ln.Close()
}
