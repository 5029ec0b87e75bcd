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

// Package netio abstracts the kernel completion interface the connection
// state machine drives (spec section 3's "network adapter"): submission
// of accepts/receives/sends and polling for their completions. The
// portable Adapter is goroutine-and-channel based; a Linux epoll-backed
// variant lives in engine_linux.go behind a build tag, mirroring the
// platform-specific engine variants of the original implementation.
package netio

import (
	"net"
	"time"
)

// EventKind tags what kind of completion an Event carries.
type EventKind uint8

const (
	EventAccepted EventKind = iota
	EventReceived
	EventSent
	EventTimeout
	EventClosed
	EventCorrupted
)

// HeartbeatToken is the sentinel token value carried by the periodic
// stats-heartbeat completion (spec section 4.8's log_stats stage).
const HeartbeatToken = -2

// AcceptToken is the sentinel token value carried by an accept
// completion, before the engine has assigned it a pool slot.
const AcceptToken = -1

// Event is one completed (or timed-out) submission, matched back to its
// connection by Token -- the connection pool's slot offset.
type Event struct {
	Token int
	Kind  EventKind
	Conn  net.Conn
	N     int
	Err   error
}

// Adapter is the network adapter contract the engine's state machine
// drives; submission methods are non-blocking and their outcome is
// delivered later through PopCompletedEvents.
type Adapter interface {
	// TryAccept submits (or immediately completes, for the portable
	// adapter) an accept on the listening socket.
	TryAccept() error

	// RecvPacket submits a receive into buf for the connection
	// identified by token, with a linked timeout of d.
	RecvPacket(token int, c net.Conn, buf []byte, d time.Duration) error

	// SendPacket submits a send of buf for the connection identified by
	// token.
	SendPacket(token int, c net.Conn, buf []byte) error

	// CloseGracefully submits a graceful close for the connection.
	CloseGracefully(token int, c net.Conn) error

	// SetStatsHeartbeat arms a periodic timer completion carrying no
	// connection, consumed by the engine's log_stats stage.
	SetStatsHeartbeat(d time.Duration)

	// PopCompletedEvents drains whatever completions are ready, blocking
	// up to the shortest pending timeout if none are ready yet.
	PopCompletedEvents() []Event

	// IsCanceled reports whether err represents a submission the adapter
	// itself canceled (e.g. during shutdown), distinct from a peer error.
	IsCanceled(err error) bool

	// IsCorrupted reports whether err represents state the connection
	// cannot recover from and must be closed for.
	IsCorrupted(err error) bool

	// Close shuts down the adapter and its listening socket.
	Close() error
}
