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

// Package engine wires together the exchange pipe, connection pool,
// protocol engines, handler registry and network adapter into the
// server engine and connection state machine of spec sections 4.6-4.8:
// it owns the accept socket, admission control and the per-worker loop.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"

	"github/sabouaram/ucall/conn"
	"github/sabouaram/ucall/logger"
	"github/sabouaram/ucall/netio"
	"github/sabouaram/ucall/pipe"
	"github/sabouaram/ucall/pool"
	"github/sabouaram/ucall/protocol"
	"github/sabouaram/ucall/protocol/httpwire"
	"github/sabouaram/ucall/protocol/jsonrpc"
	"github/sabouaram/ucall/protocol/rawtcp"
	"github/sabouaram/ucall/protocol/rest"
	"github/sabouaram/ucall/registry"
	"github/sabouaram/ucall/scratch"
	"github/sabouaram/ucall/stats"
)

// Server is the engine described in spec section 4.6: the accept socket,
// the pool, the admission gate, the registry and the stats heartbeat.
type Server struct {
	cfg      *Config
	pool     *pool.Pool
	registry *registry.Registry
	stats    *stats.Stats
	log      logger.FuncLog

	listener net.Listener
	adapter  netio.Adapter

	reserved      atomic.Bool
	pendingAccept *conn.Connection

	mu    sync.Mutex
	byTok map[int]*conn.Connection

	running atomic.Bool
}

// New validates cfg, preallocates the connection pool and binds the
// listening socket, backstopped by netutil.LimitListener at
// max_concurrent_connections, but does not start serving.
func New(cfg *Config, reg *registry.Registry, st *stats.Stats, log logger.FuncLog) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ErrorListenFailed.Error(err)
	}

	ln = netutil.LimitListener(ln, cfg.MaxConcurrentConnections)

	s := &Server{
		cfg:      cfg,
		pool:     pool.New(cfg.MaxConcurrentConnections),
		registry: reg,
		stats:    st,
		log:      log,
		listener: ln,
		byTok:    make(map[int]*conn.Connection, cfg.MaxConcurrentConnections),
	}

	s.adapter = netio.NewPlatformAdapter(ln)

	return s, nil
}

func (s *Server) logWriter() logger.Logger {
	if s.log == nil {
		return nil
	}

	return s.log()
}

// Run starts max_threads worker goroutines, arms the stats heartbeat and
// blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrorAlreadyRunning.Error(nil)
	}

	defer s.running.Store(false)

	s.adapter.SetStatsHeartbeat(time.Duration(s.cfg.DefaultFrequencySecs) * time.Second)
	s.tryArmAccept()

	var wg sync.WaitGroup

	for i := 0; i < s.cfg.MaxThreads; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			s.workerLoop(ctx)
		}()
	}

	<-ctx.Done()

	_ = s.adapter.Close()

	wg.Wait()

	return ctx.Err()
}

func (s *Server) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events := s.adapter.PopCompletedEvents()
		if events == nil {
			return
		}

		for _, ev := range events {
			s.handleEvent(ev)
		}
	}
}

// tryArmAccept is the single-CAS admission gate of spec section 4.6: only
// the caller that wins the reserved 0->1 transition allocates a pool slot
// and submits the accept; on submission failure it reverts reserved and
// releases the slot.
func (s *Server) tryArmAccept() {
	if !s.reserved.CompareAndSwap(false, true) {
		return
	}

	rec, err := s.pool.Acquire(s.cfg.BaseWakeup)
	if err != nil {
		s.reserved.Store(false)
		return
	}

	rec.Stage = conn.WaitingToAccept
	s.pendingAccept = rec

	if err := s.adapter.TryAccept(); err != nil {
		s.pool.Release(rec)
		s.pendingAccept = nil
		s.reserved.Store(false)
	}
}

func (s *Server) handleEvent(ev netio.Event) {
	switch ev.Token {
	case netio.HeartbeatToken:
		s.emitHeartbeat()
		return
	case netio.AcceptToken:
		s.handleAcceptCompletion(ev)
		return
	}

	s.mu.Lock()
	rec, ok := s.byTok[ev.Token]
	s.mu.Unlock()

	if !ok {
		return
	}

	switch rec.Stage {
	case conn.ExpectingReception:
		s.handleReception(rec, ev)
	case conn.RespondingInProgress:
		s.handleSendCompletion(rec, ev)
	case conn.WaitingToClose:
		s.handleCloseCompletion(rec)
	}
}

func (s *Server) handleAcceptCompletion(ev netio.Event) {
	rec := s.pendingAccept
	s.pendingAccept = nil
	s.reserved.Store(false)

	if ev.Kind != netio.EventAccepted {
		if rec != nil {
			s.pool.Release(rec)
		}

		s.tryArmAccept()

		return
	}

	rec.Socket = ev.Conn
	rec.Peer = ev.Conn.RemoteAddr().String()
	rec.Stage = conn.ExpectingReception
	rec.Protocol = s.newProtocolEngine()

	s.mu.Lock()
	s.byTok[rec.Offset()] = rec
	s.mu.Unlock()

	s.stats.AddConnection()

	_ = s.adapter.RecvPacket(rec.Offset(), rec.Socket, rec.Pipe.NextInputRegion(), rec.NextWakeup)

	s.tryArmAccept()
}

// newProtocolEngine builds the wire protocol engine configured for this
// server. JSON-RPC variants get a scratch space of their own, owned for
// the lifetime of the connection and never shared with another
// connection's goroutine, per the scratch package's single-owner
// contract.
func (s *Server) newProtocolEngine() protocol.Engine {
	switch s.cfg.Protocol {
	case ProtocolHTTP:
		return httpwire.New()
	case ProtocolJSONRPCOverTCP:
		return jsonrpc.NewOverTCP(rawtcp.New(), scratch.New())
	case ProtocolJSONRPCOverHTTP:
		return jsonrpc.NewOverHTTP(httpwire.New(), scratch.New())
	case ProtocolREST:
		return rest.New(httpwire.New())
	default:
		return rawtcp.New()
	}
}

func (s *Server) handleReception(rec *conn.Connection, ev netio.Event) {
	switch ev.Kind {
	case netio.EventTimeout:
		rec.RecordTimeout(s.cfg.SleepGrowthFactor)

		if rec.Expired(s.cfg.MaxInactiveDuration) {
			s.beginClose(rec)
			return
		}

		_ = s.adapter.RecvPacket(rec.Offset(), rec.Socket, rec.Pipe.NextInputRegion(), rec.NextWakeup)

		return
	case netio.EventCorrupted:
		s.beginClose(rec)
		return
	}

	// EventReceived.
	s.stats.AddBytesReceived(ev.N)
	s.stats.AddPacketReceived()

	if ev.N == 0 {
		rec.EmptyTransmits++

		if rec.TooManyEmptyTransmits() || s.pool.Dismissed() > 0 {
			s.beginClose(rec)
			return
		}

		_ = s.adapter.RecvPacket(rec.Offset(), rec.Socket, rec.Pipe.NextInputRegion(), rec.NextWakeup)

		return
	}

	rec.RecordActivity(s.cfg.BaseWakeup)

	if err := rec.Pipe.AbsorbInput(ev.N); err != nil {
		s.beginClose(rec)
		return
	}

	span := rec.Pipe.InputSpan()

	if !rec.Protocol.IsInputComplete(span) {
		if len(span) >= pipe.PageSize {
			_ = rec.Pipe.ShiftInputToDynamic()
		}

		_ = s.adapter.RecvPacket(rec.Offset(), rec.Socket, rec.Pipe.NextInputRegion(), rec.NextWakeup)

		return
	}

	s.dispatch(rec)
}

// dispatch runs the parse_headers -> parse_content -> prepare_response ->
// per-call lookup -> finalize_response sequence of spec section 4.7.
func (s *Server) dispatch(rec *conn.Connection) {
	rec.Stage = conn.RespondingInProgress

	if f := rec.Protocol.ParseHeaders(rec.Pipe.InputSpan()); f != nil {
		s.beginClose(rec)
		return
	}

	if f := rec.Protocol.ParseContent(); f != nil {
		s.beginClose(rec)
		return
	}

	if err := rec.Protocol.PrepareResponse(rec.Pipe); err != nil {
		s.beginClose(rec)
		return
	}

	for _, c := range rec.Protocol.Calls() {
		s.dispatchOne(rec, c)
	}

	if err := rec.Protocol.FinalizeResponse(rec.Pipe); err != nil {
		s.beginClose(rec)
		return
	}

	rec.Pipe.ReleaseInput()

	s.sendNext(rec)
}

// malformedCall is implemented by jsonrpc's call type for entries whose
// envelope failed the "jsonrpc"/"method" shape check during decoding.
type malformedCall interface {
	Malformed() bool
}

// restBinder is implemented by rest.Engine: the placeholder values
// resolved by a registry.LookupREST template match are injected back
// into the engine's single call before the handler runs.
type restBinder interface {
	BindParams(params []rest.Param)
}

func (s *Server) dispatchOne(rec *conn.Connection, req protocol.Call) {
	call := registry.NewCall(req, rec.Protocol, rec.Pipe)

	if mc, ok := req.(malformedCall); ok && mc.Malformed() {
		_ = call.ReplyError(protocol.CodeInvalidRequest, "invalid request")
		return
	}

	fn, tag, found := s.registry.Lookup(call.MethodName(), req.RequestKind())

	if !found && s.cfg.Protocol == ProtocolREST {
		if binder, ok := rec.Protocol.(restBinder); ok {
			var params []rest.Param

			fn, tag, params, found = s.registry.LookupREST(call.MethodName(), req.RequestKind())
			if found {
				binder.BindParams(params)
			}
		}
	}

	if !found {
		_ = call.ReplyError(protocol.CodeMethodNotFound, "method not found")
		return
	}

	fn(call, tag)

	if !call.Replied() {
		_ = call.ReplyErrorUnknown()
	}
}

func (s *Server) sendNext(rec *conn.Connection) {
	region, hasMore := rec.Pipe.PrepareMoreOutput()

	if len(region) == 0 && !hasMore {
		s.afterFullySent(rec)
		return
	}

	_ = s.adapter.SendPacket(rec.Offset(), rec.Socket, region)
}

func (s *Server) handleSendCompletion(rec *conn.Connection, ev netio.Event) {
	if ev.Kind == netio.EventCorrupted {
		s.beginClose(rec)
		return
	}

	s.stats.AddBytesSent(ev.N)
	s.stats.AddPacketSent()

	rec.Pipe.MarkOutputSubmitted(ev.N)

	if rec.Pipe.OutputPending() {
		region, _ := rec.Pipe.PrepareMoreOutput()
		_ = s.adapter.SendPacket(rec.Offset(), rec.Socket, region)

		return
	}

	s.afterFullySent(rec)
}

func (s *Server) afterFullySent(rec *conn.Connection) {
	rec.Exchanges++
	rec.Pipe.ReleaseOutput()

	mustClose := rec.Protocol.MustCloseAfterResponse()
	rec.Protocol.Reset()

	if mustClose || rec.LifetimeExceeded(s.cfg.MaxLifetimeExchanges) || rec.Expired(s.cfg.MaxInactiveDuration) || s.pool.Dismissed() > 0 {
		s.beginClose(rec)
		return
	}

	rec.Stage = conn.ExpectingReception

	_ = s.adapter.RecvPacket(rec.Offset(), rec.Socket, rec.Pipe.NextInputRegion(), rec.NextWakeup)
}

func (s *Server) beginClose(rec *conn.Connection) {
	rec.Stage = conn.WaitingToClose
	_ = s.adapter.CloseGracefully(rec.Offset(), rec.Socket)
}

func (s *Server) handleCloseCompletion(rec *conn.Connection) {
	s.mu.Lock()
	delete(s.byTok, rec.Offset())
	s.mu.Unlock()

	s.stats.CloseConnection()
	s.pool.Release(rec)
}

func (s *Server) emitHeartbeat() {
	w := s.logWriter()
	if w == nil {
		return
	}

	_ = s.stats.EmitAndReset(w, string(s.cfg.LogsFormat), time.Now())
}
