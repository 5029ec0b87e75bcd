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

// Package stats implements the six atomic counters and the periodic
// heartbeat described in spec section 4.8: connections added/closed,
// bytes received/sent, packets received/sent, all reset on every
// heartbeat emission. Counters are also mirrored onto Prometheus gauges
// for scrape-based monitoring alongside the textual/JSON heartbeat.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters is a point-in-time snapshot of the six atomic counters.
type Counters struct {
	ConnectionsAdded  uint64 `json:"connections_added"`
	ConnectionsClosed uint64 `json:"connections_closed"`
	BytesReceived     uint64 `json:"bytes_received"`
	BytesSent         uint64 `json:"bytes_sent"`
	PacketsReceived   uint64 `json:"packets_received"`
	PacketsSent       uint64 `json:"packets_sent"`
}

// Stats holds the six relaxed-ordering atomic counters (spec section
// 4.8) plus their Prometheus mirrors.
type Stats struct {
	connectionsAdded  atomic.Uint64
	connectionsClosed atomic.Uint64
	bytesReceived     atomic.Uint64
	bytesSent         atomic.Uint64
	packetsReceived   atomic.Uint64
	packetsSent       atomic.Uint64

	promConnAdded  prometheus.Counter
	promConnClosed prometheus.Counter
	promBytesRecv  prometheus.Counter
	promBytesSent  prometheus.Counter
	promPktRecv    prometheus.Counter
	promPktSent    prometheus.Counter
}

// New returns a Stats with its Prometheus counters registered against
// reg. A nil registry is accepted and simply skips Prometheus mirroring.
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{
		promConnAdded:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ucall", Name: "connections_added_total"}),
		promConnClosed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ucall", Name: "connections_closed_total"}),
		promBytesRecv:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ucall", Name: "bytes_received_total"}),
		promBytesSent:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ucall", Name: "bytes_sent_total"}),
		promPktRecv:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ucall", Name: "packets_received_total"}),
		promPktSent:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ucall", Name: "packets_sent_total"}),
	}

	if reg != nil {
		reg.MustRegister(s.promConnAdded, s.promConnClosed, s.promBytesRecv, s.promBytesSent, s.promPktRecv, s.promPktSent)
	}

	return s
}

func (s *Stats) AddConnection() {
	s.connectionsAdded.Add(1)
	s.promConnAdded.Inc()
}

func (s *Stats) CloseConnection() {
	s.connectionsClosed.Add(1)
	s.promConnClosed.Inc()
}

func (s *Stats) AddBytesReceived(n int) {
	if n <= 0 {
		return
	}

	s.bytesReceived.Add(uint64(n))
	s.promBytesRecv.Add(float64(n))
}

func (s *Stats) AddBytesSent(n int) {
	if n <= 0 {
		return
	}

	s.bytesSent.Add(uint64(n))
	s.promBytesSent.Add(float64(n))
}

func (s *Stats) AddPacketReceived() {
	s.packetsReceived.Add(1)
	s.promPktRecv.Inc()
}

func (s *Stats) AddPacketSent() {
	s.packetsSent.Add(1)
	s.promPktSent.Inc()
}

// Snapshot reads every counter with relaxed ordering.
func (s *Stats) Snapshot() Counters {
	return Counters{
		ConnectionsAdded:  s.connectionsAdded.Load(),
		ConnectionsClosed: s.connectionsClosed.Load(),
		BytesReceived:     s.bytesReceived.Load(),
		BytesSent:         s.bytesSent.Load(),
		PacketsReceived:   s.packetsReceived.Load(),
		PacketsSent:       s.packetsSent.Load(),
	}
}

// Reset zeros every counter, per the heartbeat's "zeros the counters"
// step. Prometheus counters are cumulative by convention and are
// deliberately left untouched.
func (s *Stats) Reset() {
	s.connectionsAdded.Store(0)
	s.connectionsClosed.Store(0)
	s.bytesReceived.Store(0)
	s.bytesSent.Store(0)
	s.packetsReceived.Store(0)
	s.packetsSent.Store(0)
}

// Format renders a snapshot as either a single human-readable line or a
// newline-terminated JSON document, per the "logs_format" configuration
// option (spec section 6).
func Format(c Counters, format string, at time.Time) []byte {
	if format == "json" {
		b, _ := json.Marshal(struct {
			Counters
			Timestamp string `json:"timestamp"`
		}{Counters: c, Timestamp: at.Format(time.RFC3339)})

		return append(b, '\n')
	}

	return []byte(fmt.Sprintf(
		"%s connections_added=%d connections_closed=%d bytes_received=%d bytes_sent=%d packets_received=%d packets_sent=%d\n",
		at.Format(time.RFC3339), c.ConnectionsAdded, c.ConnectionsClosed, c.BytesReceived, c.BytesSent, c.PacketsReceived, c.PacketsSent,
	))
}

// EmitAndReset formats the current snapshot to w and zeros the counters,
// per the heartbeat's log_stats stage (spec section 4.8).
func (s *Stats) EmitAndReset(w io.Writer, format string, at time.Time) error {
	b := Format(s.Snapshot(), format, at)
	s.Reset()

	_, err := w.Write(b)

	return err
}
