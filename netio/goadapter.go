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

package netio

import (
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// GoAdapter is the portable Adapter implementation: every submission
// spawns a goroutine that blocks on the underlying net.Conn/net.Listener
// call and reports its outcome back onto a shared completion channel,
// which PopCompletedEvents drains. This is the adapter used on every
// platform lacking a dedicated completion-queue backend (see
// engine_linux.go for the epoll-backed variant).
type GoAdapter struct {
	listener net.Listener
	events   chan Event
	closing  atomic.Bool
	ticker   *time.Ticker
	tickDone chan struct{}
}

// NewGoAdapter wraps an already-bound listener.
func NewGoAdapter(listener net.Listener) *GoAdapter {
	return &GoAdapter{
		listener: listener,
		events:   make(chan Event, 256),
	}
}

func (a *GoAdapter) TryAccept() error {
	go func() {
		c, err := a.listener.Accept()
		if err != nil {
			if a.closing.Load() {
				return
			}

			a.events <- Event{Token: AcceptToken, Kind: EventCorrupted, Err: err}

			return
		}

		a.events <- Event{Token: AcceptToken, Kind: EventAccepted, Conn: c}
	}()

	return nil
}

func (a *GoAdapter) RecvPacket(token int, c net.Conn, buf []byte, d time.Duration) error {
	go func() {
		if d > 0 {
			_ = c.SetReadDeadline(time.Now().Add(d))
		}

		n, err := c.Read(buf)

		switch {
		case err == nil:
			a.events <- Event{Token: token, Kind: EventReceived, N: n}
		case isTimeout(err):
			a.events <- Event{Token: token, Kind: EventTimeout}
		case a.closing.Load():
			return
		default:
			a.events <- Event{Token: token, Kind: EventCorrupted, N: n, Err: err}
		}
	}()

	return nil
}

func (a *GoAdapter) SendPacket(token int, c net.Conn, buf []byte) error {
	go func() {
		n, err := c.Write(buf)
		if err != nil {
			a.events <- Event{Token: token, Kind: EventCorrupted, N: n, Err: err}
			return
		}

		a.events <- Event{Token: token, Kind: EventSent, N: n}
	}()

	return nil
}

func (a *GoAdapter) CloseGracefully(token int, c net.Conn) error {
	go func() {
		_ = c.Close()
		a.events <- Event{Token: token, Kind: EventClosed}
	}()

	return nil
}

// SetStatsHeartbeat arms (or re-arms, if already running) a recurring
// timer that posts a HeartbeatToken completion every d.
func (a *GoAdapter) SetStatsHeartbeat(d time.Duration) {
	if a.ticker != nil {
		a.ticker.Stop()
		close(a.tickDone)
	}

	a.ticker = time.NewTicker(d)
	a.tickDone = make(chan struct{})

	go func(ticker *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				a.events <- Event{Token: HeartbeatToken, Kind: EventTimeout}
			}
		}
	}(a.ticker, a.tickDone)
}

// PopCompletedEvents blocks for the first available completion, then
// drains whatever else is immediately ready alongside it.
func (a *GoAdapter) PopCompletedEvents() []Event {
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

func (a *GoAdapter) IsCanceled(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func (a *GoAdapter) IsCorrupted(err error) bool {
	if err == nil {
		return false
	}

	return !isTimeout(err) && !errors.Is(err, net.ErrClosed)
}

func (a *GoAdapter) Close() error {
	a.closing.Store(true)

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.tickDone)
	}

	return a.listener.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
