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

package conn

import (
	"net"
	"time"

	"github.com/google/uuid"

	"github/sabouaram/ucall/pipe"
	"github/sabouaram/ucall/protocol"
)

// maxEmptyTransmits is the consecutive-empty-receive ceiling past which a
// connection is closed, per spec section 4.7's lifetime rule (b).
const maxEmptyTransmits = 100

// Connection is the per-connection record described in spec section 3:
// an exchange pipe, the OS socket handle, a stage, a protocol instance,
// the peer address and the three monotonic counters that drive the
// lifetime rules in section 4.7. It is allocated once at engine startup
// by the pool and reused for the lifetime of the server.
type Connection struct {
	Pipe     *pipe.Pipe
	Socket   net.Conn
	Stage    Stage
	Protocol protocol.Engine
	Peer     string
	TraceID  string

	// SleptNanos accumulates the backed-off receive timeout durations
	// since the last successful read, per the back-off rule in 4.7.
	SleptNanos int64

	// EmptyTransmits counts consecutive zero-byte completions.
	EmptyTransmits int

	// Exchanges counts completed request/response round trips.
	Exchanges int

	// NextWakeup is the linked-timeout duration for the next receive
	// submission; it grows by sleep_growth_factor on every timeout and
	// resets to the configured base on successful data.
	NextWakeup time.Duration

	offset int
}

// New allocates a Connection with a fresh pipe and a generated trace
// identifier. The pool calls this once per slot at startup; Reset, not
// New, is used to recycle a record across TCP sessions.
func New(offset int) *Connection {
	return &Connection{
		Pipe:    pipe.New(),
		Stage:   Unknown,
		TraceID: uuid.NewString(),
		offset:  offset,
	}
}

// Offset reports this record's fixed slot index in the pool's backing
// array, used for O(1) release.
func (c *Connection) Offset() int { return c.offset }

// Reset clears per-session state while preserving the pipe's allocated
// capacity and the record's identity (offset, trace id), so a released
// record satisfies a freshly-admitted connection's invariants without a
// fresh allocation.
func (c *Connection) Reset(base time.Duration) {
	c.Pipe.Reset()
	c.Socket = nil
	c.Stage = WaitingToAccept
	c.Protocol = nil
	c.Peer = ""
	c.SleptNanos = 0
	c.EmptyTransmits = 0
	c.Exchanges = 0
	c.NextWakeup = base
}

// RecordTimeout applies the back-off rule: the slept-nanoseconds counter
// grows by the duration just waited, and the next wakeup grows by factor.
func (c *Connection) RecordTimeout(factor float64) {
	c.SleptNanos += int64(c.NextWakeup)
	c.NextWakeup = time.Duration(float64(c.NextWakeup) * factor)
}

// RecordActivity resets the back-off state after a successful read.
func (c *Connection) RecordActivity(base time.Duration) {
	c.SleptNanos = 0
	c.NextWakeup = base
}

// TooManyEmptyTransmits reports lifetime rule (b) from spec section 4.7.
func (c *Connection) TooManyEmptyTransmits() bool {
	return c.EmptyTransmits > maxEmptyTransmits
}

// LifetimeExceeded reports lifetime rule (e): the per-connection request
// cap has been reached.
func (c *Connection) LifetimeExceeded(maxExchanges int) bool {
	return maxExchanges > 0 && c.Exchanges >= maxExchanges
}

// Expired reports lifetime rule (a): accumulated inactivity has crossed
// the configured ceiling.
func (c *Connection) Expired(maxInactive time.Duration) bool {
	return maxInactive > 0 && time.Duration(c.SleptNanos) >= maxInactive
}
