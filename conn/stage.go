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

// Package conn holds the connection record shared by the pool, the network
// adapter and the connection state machine (spec section 3).
package conn

// Stage is one state of the per-connection state machine (spec section 4.7).
type Stage uint8

const (
	// Unknown is the initial/invalid stage; also used for the heartbeat
	// pseudo-connection before its first timer fires.
	Unknown Stage = iota

	// WaitingToAccept means the record holds a pending accept submission.
	WaitingToAccept

	// ExpectingReception means the record is waiting for inbound bytes.
	ExpectingReception

	// RespondingInProgress means a response is being sent back to the peer.
	RespondingInProgress

	// WaitingToClose means a graceful close sequence has been submitted.
	WaitingToClose

	// LogStats marks the heartbeat pseudo-connection's periodic timer stage.
	LogStats
)

// String renders the stage name for logging.
func (s Stage) String() string {
	switch s {
	case WaitingToAccept:
		return "waiting_to_accept"
	case ExpectingReception:
		return "expecting_reception"
	case RespondingInProgress:
		return "responding_in_progress"
	case WaitingToClose:
		return "waiting_to_close"
	case LogStats:
		return "log_stats"
	default:
		return "unknown"
	}
}
