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

// Package rest implements the REST protocol engine (spec section 4.4):
// paths are matched against URL templates registered at startup, with
// "{name}" segments bound positionally and exposed to handlers as named
// parameters. Framing is delegated to the wrapped HTTP transport, exactly
// as protocol/jsonrpc delegates framing when layered over HTTP.
package rest

import (
	"strconv"
	"strings"

	"github/sabouaram/ucall/pipe"
	"github/sabouaram/ucall/protocol"
)

// SplitTemplate splits a registered URL template ("/books/{id}") into its
// path segments, ignoring leading/trailing slashes.
func SplitTemplate(tpl string) []string {
	return splitPath(tpl)
}

// Param is one placeholder binding resolved from a URL template, kept in
// the order its "{name}" segment appeared in the template so positional
// access (ParamAt) matches reading left to right.
type Param struct {
	Name  string
	Value string
}

// Match tests path against a template's segments. It requires an equal
// segment count (spec's resolved Open Question: no wildcard trailing
// segments) and returns the bound placeholder values on success.
func Match(tplSegments []string, path string) (params []Param, ok bool) {
	segs := splitPath(path)
	if len(segs) != len(tplSegments) {
		return nil, false
	}

	out := make([]Param, 0, len(tplSegments))

	for i, t := range tplSegments {
		if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
			out = append(out, Param{Name: t[1 : len(t)-1], Value: segs[i]})
			continue
		}

		if t != segs[i] {
			return nil, false
		}
	}

	return out, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}

	return strings.Split(p, "/")
}

// Engine implements protocol.Engine for REST, delegating HTTP framing to
// a wrapped transport and exposing the raw path/verb/body so dispatch can
// resolve it against the registered templates (registry.LookupREST).
type Engine struct {
	transport protocol.Engine
	call      call
	hasOutput bool
}

// New layers REST dispatch over an HTTP/1.1 transport.
func New(transport protocol.Engine) *Engine {
	return &Engine{transport: transport}
}

func (e *Engine) Kind() protocol.Kind { return protocol.REST }

func (e *Engine) IsInputComplete(span []byte) bool {
	return e.transport.IsInputComplete(span)
}

func (e *Engine) ParseHeaders(span []byte) *protocol.Fault {
	return e.transport.ParseHeaders(span)
}

func (e *Engine) ParseContent() *protocol.Fault {
	if f := e.transport.ParseContent(); f != nil {
		return f
	}

	e.call = call{transportCall: e.transport.Calls()[0]}

	return nil
}

func (e *Engine) Calls() []protocol.Call {
	return []protocol.Call{&e.call}
}

// BindParams injects the placeholder values resolved by the dispatcher's
// template match (registry.LookupREST) into this exchange's single call.
func (e *Engine) BindParams(params []Param) {
	e.call.params = params
}

func (e *Engine) PrepareResponse(p *pipe.Pipe) error {
	return e.transport.PrepareResponse(p)
}

func (e *Engine) AppendResponse(p *pipe.Pipe, c protocol.Call, body []byte) error {
	e.hasOutput = true
	return e.transport.AppendResponse(p, c, body)
}

func (e *Engine) AppendError(p *pipe.Pipe, c protocol.Call, f *protocol.Fault) error {
	e.hasOutput = true
	return e.transport.AppendError(p, c, f)
}

func (e *Engine) FinalizeResponse(p *pipe.Pipe) error {
	return e.transport.FinalizeResponse(p)
}

func (e *Engine) MustCloseAfterResponse() bool {
	return e.transport.MustCloseAfterResponse()
}

func (e *Engine) HasOutput() bool { return e.hasOutput }

func (e *Engine) Reset() {
	e.transport.Reset()
	e.call = call{}
	e.hasOutput = false
}

// call is the single implicit call of a REST exchange: its method name is
// the raw request path (used only for logging -- dispatch matches on the
// registered templates, not on this value) and its params are the
// placeholder bindings from the resolved template.
type call struct {
	transportCall protocol.Call
	params        []Param
}

func (c *call) MethodName() string                { return c.transportCall.MethodName() }
func (c *call) RequestKind() protocol.RequestKind  { return c.transportCall.RequestKind() }
func (c *call) IsNotification() bool               { return false }
func (c *call) Header(name string) string          { return c.transportCall.Header(name) }
func (c *call) Body() []byte                       { return c.transportCall.Body() }

func (c *call) Param(name string) protocol.Value {
	for _, p := range c.params {
		if p.Name == name {
			return paramValue(p.Value)
		}
	}

	return protocol.Value{}
}

func (c *call) ParamAt(index int) protocol.Value {
	if index < 0 || index >= len(c.params) {
		return protocol.Value{}
	}

	return paramValue(c.params[index].Value)
}

func paramValue(v string) protocol.Value {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return protocol.Value{Kind: protocol.Int64, I: i}
	}

	return protocol.Value{Kind: protocol.String, S: v}
}
