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

// Package jsonrpc implements JSON-RPC 2.0 framing (spec section 4.4),
// layered over either the raw-TCP or HTTP/1.1 transport for the actual
// byte-complete detection and connection framing: this package only
// decodes the JSON-RPC envelope and assembles JSON-RPC responses, while
// the wrapped transport engine owns completeness detection and the
// wire-level prelude/terminator.
package jsonrpc

import (
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github/sabouaram/ucall/pipe"
	"github/sabouaram/ucall/protocol"
	"github/sabouaram/ucall/scratch"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Engine implements protocol.Engine for JSON-RPC 2.0, delegating
// completeness detection and connection framing to a wrapped transport.
type Engine struct {
	transport protocol.Engine
	scratch   *scratch.Space

	calls   []call
	results [][]byte
	isBatch bool
	kind    protocol.Kind
}

// NewOverTCP layers JSON-RPC over the raw-TCP null-terminated transport.
func NewOverTCP(transport protocol.Engine, sp *scratch.Space) *Engine {
	return &Engine{transport: transport, scratch: sp, kind: protocol.JSONRPCOverTCP}
}

// NewOverHTTP layers JSON-RPC over the HTTP/1.1 transport.
func NewOverHTTP(transport protocol.Engine, sp *scratch.Space) *Engine {
	return &Engine{transport: transport, scratch: sp, kind: protocol.JSONRPCOverHTTP}
}

func (e *Engine) Kind() protocol.Kind { return e.kind }

func (e *Engine) IsInputComplete(span []byte) bool {
	return e.transport.IsInputComplete(span)
}

func (e *Engine) ParseHeaders(span []byte) *protocol.Fault {
	return e.transport.ParseHeaders(span)
}

// ParseContent decodes the JSON-RPC envelope carried by the transport's
// body: either a single request object or a batch array of them. Per spec
// section 4.4, malformed JSON yields CodeParseError and a missing/wrong
// "jsonrpc"/"method" yields CodeInvalidRequest for that entry.
func (e *Engine) ParseContent() *protocol.Fault {
	if f := e.transport.ParseContent(); f != nil {
		return f
	}

	raw := e.transport.Calls()[0].Body()

	e.calls = e.calls[:0]
	e.results = e.results[:0]
	e.isBatch = false

	transportCall := e.transport.Calls()[0]

	if len(raw) == 0 {
		e.calls = append(e.calls, call{transportCall: transportCall, malformed: true})
	} else {
		any := jsonAPI.Get(raw)

		switch {
		case any.LastError() != nil:
			e.calls = append(e.calls, call{transportCall: transportCall, malformed: true})
		case any.ValueType() == jsoniter.ArrayValue:
			e.isBatch = true

			n := any.Size()
			for i := 0; i < n; i++ {
				e.calls = append(e.calls, decodeOne(any.Get(i), transportCall))
			}
		case any.ValueType() == jsoniter.ObjectValue:
			e.calls = append(e.calls, decodeOne(any, transportCall))
		default:
			e.calls = append(e.calls, call{transportCall: transportCall, malformed: true})
		}
	}

	for i := range e.calls {
		e.calls[i].index = i
	}

	e.results = make([][]byte, len(e.calls))

	return nil
}

func decodeOne(any jsoniter.Any, transportCall protocol.Call) call {
	c := call{transportCall: transportCall}

	if any.ValueType() != jsoniter.ObjectValue {
		c.malformed = true
		return c
	}

	if any.Get("jsonrpc").ToString() != "2.0" {
		c.malformed = true
		return c
	}

	if any.Get("method").ValueType() != jsoniter.StringValue {
		c.malformed = true
		return c
	}

	c.method = any.Get("method").ToString()

	idAny := any.Get("id")
	switch idAny.ValueType() {
	case jsoniter.InvalidValue:
		c.isNotification = true
	case jsoniter.StringValue:
		c.idRaw = strconv.Quote(idAny.ToString())
	case jsoniter.NumberValue:
		c.idRaw = idAny.ToString()
	case jsoniter.NilValue:
		c.idRaw = "null"
	default:
		c.idRaw = "null"
	}

	params := any.Get("params")
	switch params.ValueType() {
	case jsoniter.ArrayValue:
		c.paramsIsArray = true
		c.paramsRaw = []byte(params.ToString())
	case jsoniter.ObjectValue:
		c.paramsRaw = []byte(params.ToString())
	}

	return c
}

func (e *Engine) Calls() []protocol.Call {
	out := make([]protocol.Call, len(e.calls))
	for i := range e.calls {
		e.calls[i].engine = e
		out[i] = &e.calls[i]
	}

	return out
}

func (e *Engine) PrepareResponse(p *pipe.Pipe) error {
	return nil
}

func (e *Engine) AppendResponse(p *pipe.Pipe, c protocol.Call, body []byte) error {
	jc, ok := c.(*call)
	if !ok || jc.isNotification {
		return nil
	}

	envelope := append([]byte(`{"jsonrpc":"2.0","result":`), body...)
	envelope = append(envelope, []byte(`,"id":`+jc.idRaw+`}`)...)

	e.results[jc.index] = envelope

	return nil
}

func (e *Engine) AppendError(p *pipe.Pipe, c protocol.Call, f *protocol.Fault) error {
	jc, ok := c.(*call)
	if !ok {
		return nil
	}

	idRaw := jc.idRaw
	if idRaw == "" {
		idRaw = "null"
	}

	envelope := []byte(`{"jsonrpc":"2.0","error":{"code":` + strconv.FormatInt(int64(f.Code), 10) +
		`,"message":` + strconv.Quote(f.Message) + `},"id":` + idRaw + `}`)

	if jc.isNotification {
		// Parse-level and invalid-request faults are reported even for
		// what would otherwise be a notification, since no method name
		// could be confirmed; anything past that point stays silent.
		if f.Code != protocol.CodeParseError && f.Code != protocol.CodeInvalidRequest {
			return nil
		}
	}

	e.results[jc.index] = envelope

	return nil
}

// FinalizeResponse assembles every buffered per-call result into the final
// JSON-RPC payload -- a bare object for a single request, a JSON array for
// a batch -- and hands it to the wrapped transport for framing. A batch
// made up entirely of notifications produces zero output bytes, per spec
// section 4.4's notification-suppression rule extended to the all-notify
// batch case.
func (e *Engine) FinalizeResponse(p *pipe.Pipe) error {
	var payload []byte

	if e.isBatch {
		first := true
		for _, r := range e.results {
			if r == nil {
				continue
			}

			if first {
				payload = append(payload, '[')
				first = false
			} else {
				payload = append(payload, ',')
			}

			payload = append(payload, r...)
		}

		if !first {
			payload = append(payload, ']')
		}
	} else if len(e.results) > 0 {
		payload = e.results[0]
	}

	if len(payload) == 0 {
		return nil
	}

	if err := e.transport.AppendResponse(p, e.transport.Calls()[0], payload); err != nil {
		return err
	}

	return e.transport.FinalizeResponse(p)
}

func (e *Engine) MustCloseAfterResponse() bool {
	return e.transport.MustCloseAfterResponse()
}

func (e *Engine) HasOutput() bool {
	for _, r := range e.results {
		if r != nil {
			return true
		}
	}

	return false
}

func (e *Engine) Reset() {
	e.transport.Reset()
	e.calls = e.calls[:0]
	e.results = e.results[:0]
	e.isBatch = false
}

// call is one decoded JSON-RPC request, whether standalone or a batch
// element.
type call struct {
	engine        *Engine
	transportCall protocol.Call
	index         int
	method        string
	idRaw         string
	isNotification bool
	malformed     bool
	paramsRaw     []byte
	paramsIsArray bool
	tree          *scratch.Tree
	decoded       bool
}

func (c *call) MethodName() string               { return c.method }
func (c *call) RequestKind() protocol.RequestKind { return protocol.Call }
func (c *call) IsNotification() bool              { return c.isNotification }
func (c *call) Header(name string) string         { return c.transportCall.Header(name) }
func (c *call) Body() []byte                       { return c.paramsRaw }

// Malformed reports whether this entry failed the "jsonrpc"/"method"
// shape check during decoding. Dispatch should reply with an
// invalid-request fault directly rather than attempt a handler lookup.
func (c *call) Malformed() bool { return c.malformed }

func (c *call) ensureDecoded() {
	if c.decoded {
		return
	}

	c.decoded = true

	if len(c.paramsRaw) == 0 || c.engine == nil || c.engine.scratch == nil {
		return
	}

	var (
		tree *scratch.Tree
		err  error
	)

	if c.paramsIsArray {
		tree, err = c.engine.scratch.DecodeArray(c.paramsRaw, 64)
	} else {
		tree, err = c.engine.scratch.DecodeObject(c.paramsRaw, 64)
	}

	if err == nil {
		c.tree = tree
	}
}

func (c *call) Param(name string) protocol.Value {
	c.ensureDecoded()

	if c.tree == nil {
		return protocol.Value{}
	}

	return c.tree.Get(name)
}

func (c *call) ParamAt(index int) protocol.Value {
	c.ensureDecoded()

	if c.tree == nil {
		return protocol.Value{}
	}

	return c.tree.GetAt(index)
}
