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

// Package rawtcp implements the raw-TCP protocol engine (spec section 4.4):
// a request is a null-terminated byte sequence and a response is the
// handler's bytes followed by a null byte.
package rawtcp

import (
	"bytes"

	"github/sabouaram/ucall/pipe"
	"github/sabouaram/ucall/protocol"
)

// Engine implements protocol.Engine for the raw-TCP dialect.
type Engine struct {
	body      []byte
	call      call
	hasOutput bool
}

// New returns a fresh raw-TCP engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Kind() protocol.Kind { return protocol.RawTCP }

func (e *Engine) IsInputComplete(span []byte) bool {
	return bytes.IndexByte(span, 0) >= 0
}

func (e *Engine) ParseHeaders(span []byte) *protocol.Fault {
	if i := bytes.IndexByte(span, 0); i >= 0 {
		e.body = span[:i]
	} else {
		e.body = span
	}

	return nil
}

func (e *Engine) ParseContent() *protocol.Fault {
	e.call = call{body: e.body}
	return nil
}

func (e *Engine) Calls() []protocol.Call {
	return []protocol.Call{&e.call}
}

func (e *Engine) PrepareResponse(p *pipe.Pipe) error {
	return nil
}

func (e *Engine) AppendResponse(p *pipe.Pipe, c protocol.Call, body []byte) error {
	e.hasOutput = true
	return p.AppendOutput(body)
}

func (e *Engine) AppendError(p *pipe.Pipe, c protocol.Call, f *protocol.Fault) error {
	e.hasOutput = true
	return p.AppendOutput([]byte(f.Message))
}

func (e *Engine) FinalizeResponse(p *pipe.Pipe) error {
	return p.AppendOutput([]byte{0})
}

func (e *Engine) MustCloseAfterResponse() bool { return false }

func (e *Engine) HasOutput() bool { return e.hasOutput }

func (e *Engine) Reset() {
	e.body = nil
	e.call = call{}
	e.hasOutput = false
}

// call is the single implicit call of a raw-TCP exchange: there is no
// method name, no headers and no structured params, only the raw body.
type call struct {
	body []byte
}

func (c *call) MethodName() string                { return "" }
func (c *call) RequestKind() protocol.RequestKind  { return protocol.Call }
func (c *call) IsNotification() bool               { return false }
func (c *call) Param(name string) protocol.Value   { return protocol.Value{} }
func (c *call) ParamAt(i int) protocol.Value       { return protocol.Value{} }
func (c *call) Header(name string) string          { return "" }
func (c *call) Body() []byte                       { return c.body }
