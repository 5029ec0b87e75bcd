/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

//go:build linux

package netio

import (
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// EpollAdapter is the Linux completion backend: each registered
// connection's raw fd is set non-blocking and watched by a single epoll
// instance, with reads and writes issued directly against the fd once
// readiness fires, mirroring the original implementation's dedicated
// epoll engine variant rather than parking one goroutine per submission
// behind blocking net.Conn calls.
type EpollAdapter struct {
	epfd     int
	listener net.Listener

	mu      sync.Mutex
	pending map[int]*pendingOp

	events chan Event
	closed chan struct{}
}

type pendingOp struct {
	token    int
	fd       int
	conn     net.Conn
	buf      []byte
	isWrite  bool
	deadline time.Time
}

// NewEpollAdapter creates an epoll instance and starts its wait loop.
// listener itself is still accepted via the standard library; only the
// accepted connections' fds are driven through epoll.
func NewEpollAdapter(listener net.Listener) (*EpollAdapter, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	a := &EpollAdapter{
		epfd:     epfd,
		listener: listener,
		pending:  make(map[int]*pendingOp),
		events:   make(chan Event, 256),
		closed:   make(chan struct{}),
	}

	go a.loop()

	return a, nil
}

func connFd(c net.Conn) (int, error) {
	tcp, ok := c.(*net.TCPConn)
	if !ok {
		return -1, ErrorUnsupportedConn.Error(nil)
	}

	raw, err := tcp.SyscallConn()
	if err != nil {
		return -1, err
	}

	var fd int

	ctrlErr := raw.Control(func(p uintptr) { fd = int(p) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}

	return fd, nil
}

func (a *EpollAdapter) loop() {
	raw := make([]unix.EpollEvent, 64)

	for {
		select {
		case <-a.closed:
			return
		default:
		}

		n, err := unix.EpollWait(a.epfd, raw, 50)
		if err != nil {
			if err == unix.EINTR {
				continue
			}

			return
		}

		for i := 0; i < n; i++ {
			fd := int(raw[i].Fd)

			a.mu.Lock()
			op, ok := a.pending[fd]
			if ok {
				delete(a.pending, fd)
			}
			a.mu.Unlock()

			if !ok {
				continue
			}

			_ = unix.EpollCtl(a.epfd, unix.EPOLL_CTL_DEL, fd, nil)

			a.complete(op)
		}

		a.sweepTimeouts()
	}
}

func (a *EpollAdapter) sweepTimeouts() {
	now := time.Now()

	a.mu.Lock()
	var expired []*pendingOp
	for fd, op := range a.pending {
		if !op.deadline.IsZero() && now.After(op.deadline) {
			expired = append(expired, op)
			delete(a.pending, fd)
		}
	}
	a.mu.Unlock()

	for _, op := range expired {
		_ = unix.EpollCtl(a.epfd, unix.EPOLL_CTL_DEL, op.fd, nil)
		a.events <- Event{Token: op.token, Kind: EventTimeout}
	}
}

func (a *EpollAdapter) complete(op *pendingOp) {
	if op.isWrite {
		n, err := unix.Write(op.fd, op.buf)
		if err != nil {
			a.events <- Event{Token: op.token, Kind: EventCorrupted, N: n, Err: err}
			return
		}

		a.events <- Event{Token: op.token, Kind: EventSent, N: n}

		return
	}

	n, err := unix.Read(op.fd, op.buf)
	if err != nil {
		a.events <- Event{Token: op.token, Kind: EventCorrupted, N: n, Err: err}
		return
	}

	a.events <- Event{Token: op.token, Kind: EventReceived, N: n}
}

func (a *EpollAdapter) TryAccept() error {
	go func() {
		c, err := a.listener.Accept()
		if err != nil {
			select {
			case <-a.closed:
				return
			default:
			}

			a.events <- Event{Token: AcceptToken, Kind: EventCorrupted, Err: err}

			return
		}

		a.events <- Event{Token: AcceptToken, Kind: EventAccepted, Conn: c}
	}()

	return nil
}

// RecvPacket registers fd for EPOLLIN; the read itself only happens once
// the wait loop observes readiness, avoiding a blocked goroutine per
// in-flight receive.
func (a *EpollAdapter) RecvPacket(token int, c net.Conn, buf []byte, d time.Duration) error {
	fd, err := connFd(c)
	if err != nil {
		return err
	}

	op := &pendingOp{token: token, fd: fd, conn: c, buf: buf}
	if d > 0 {
		op.deadline = time.Now().Add(d)
	}

	a.mu.Lock()
	a.pending[fd] = op
	a.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}

	return unix.EpollCtl(a.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (a *EpollAdapter) SendPacket(token int, c net.Conn, buf []byte) error {
	fd, err := connFd(c)
	if err != nil {
		return err
	}

	op := &pendingOp{token: token, fd: fd, conn: c, buf: buf, isWrite: true}

	a.mu.Lock()
	a.pending[fd] = op
	a.mu.Unlock()

	ev := unix.EpollEvent{Events: unix.EPOLLOUT | unix.EPOLLONESHOT, Fd: int32(fd)}

	return unix.EpollCtl(a.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (a *EpollAdapter) CloseGracefully(token int, c net.Conn) error {
	go func() {
		_ = c.Close()
		a.events <- Event{Token: token, Kind: EventClosed}
	}()

	return nil
}

func (a *EpollAdapter) SetStatsHeartbeat(d time.Duration) {
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()

		for {
			select {
			case <-a.closed:
				return
			case <-t.C:
				a.events <- Event{Token: HeartbeatToken, Kind: EventTimeout}
			}
		}
	}()
}

func (a *EpollAdapter) PopCompletedEvents() []Event {
	first, ok := <-a.events
	if !ok {
		return nil
	}

	out := []Event{first}

	for {
		select {
		case e, ok := <-a.events:
			if !ok {
				return out
			}

			out = append(out, e)
		default:
			return out
		}
	}
}

func (a *EpollAdapter) IsCanceled(err error) bool {
	return err == unix.ECANCELED
}

func (a *EpollAdapter) IsCorrupted(err error) bool {
	if err == nil {
		return false
	}

	return !isTimeout(err) && err != unix.ECANCELED
}

func (a *EpollAdapter) Close() error {
	close(a.closed)
	_ = unix.Close(a.epfd)

	return a.listener.Close()
}
