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

// Package httpwire implements the permissive HTTP/1.1 request-line and
// header parser used both as a standalone protocol engine and as the
// transport layer JSON-RPC/HTTP and REST frame themselves over
// (spec section 4.4).
package httpwire

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github/sabouaram/ucall/pipe"
	"github/sabouaram/ucall/protocol"
)

const headerSeparator = "\r\n\r\n"

// Request is the parsed HTTP/1.1 request-line and header block.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Engine implements protocol.Engine for plain HTTP/1.1: dispatch keys on
// the request path as the method name and the HTTP verb as the request
// kind, per the general "common parse/frame interface" the core shares
// across protocol variants (spec section 4.4).
type Engine struct {
	req           Request
	call          call
	headerEnd     int
	contentLength int
	hasOutput     bool
	status        int
	body          []byte
}

var statusText = map[int]string{
	200: "OK",
	404: "Not Found",
	415: "Unsupported Media Type",
	500: "Internal Server Error",
}

// New returns a fresh HTTP engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Kind() protocol.Kind { return protocol.HTTP }

// IsInputComplete reports whether span holds a full header block and, if a
// Content-Length was declared, the full body too.
func (e *Engine) IsInputComplete(span []byte) bool {
	idx := bytes.Index(span, []byte(headerSeparator))
	if idx < 0 {
		return false
	}

	headerEnd := idx + len(headerSeparator)
	cl := peekContentLength(span[:idx])

	return len(span)-headerEnd >= cl
}

func (e *Engine) ParseHeaders(span []byte) *protocol.Fault {
	idx := bytes.Index(span, []byte(headerSeparator))
	if idx < 0 {
		return protocol.FaultInvalidRequest(fmt.Errorf("missing header terminator"))
	}

	lines := strings.Split(string(span[:idx]), "\r\n")
	if len(lines) == 0 {
		return protocol.FaultInvalidRequest(fmt.Errorf("empty request"))
	}

	reqLine := strings.Fields(lines[0])
	if len(reqLine) < 2 {
		return protocol.FaultInvalidRequest(fmt.Errorf("malformed request line %q", lines[0]))
	}

	e.req = Request{
		Method:  strings.ToUpper(reqLine[0]),
		Path:    reqLine[1],
		Headers: make(map[string]string, len(lines)-1),
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}

		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		e.req.Headers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	e.headerEnd = idx + len(headerSeparator)
	e.contentLength = peekContentLength(span[:idx])

	end := e.headerEnd + e.contentLength
	if end > len(span) {
		end = len(span)
	}

	e.req.Body = span[e.headerEnd:end]

	return nil
}

func (e *Engine) ParseContent() *protocol.Fault {
	e.call = call{req: &e.req}
	return nil
}

func (e *Engine) Calls() []protocol.Call {
	return []protocol.Call{&e.call}
}

// PrepareResponse is a no-op: the status line depends on whether the
// handler replies with content or an error, so the full prelude is only
// assembled once that is known, in FinalizeResponse.
func (e *Engine) PrepareResponse(p *pipe.Pipe) error {
	e.status = 200
	e.body = nil

	return nil
}

func (e *Engine) AppendResponse(p *pipe.Pipe, c protocol.Call, body []byte) error {
	e.hasOutput = true
	e.status = 200
	e.body = body

	return nil
}

func (e *Engine) AppendError(p *pipe.Pipe, c protocol.Call, f *protocol.Fault) error {
	e.hasOutput = true
	e.status = int(f.Code)

	if _, known := statusText[e.status]; !known {
		e.status = 500
	}

	e.body = []byte(f.Message)

	return nil
}

// FinalizeResponse assembles the status line, headers and body now that
// the outcome of the call is known, with an exact Content-Length (spec
// section 4.4's fixed-width field is a rawtcp/jsonrpc-over-TCP concern
// only; over HTTP the length is known before anything is written).
func (e *Engine) FinalizeResponse(p *pipe.Pipe) error {
	text, ok := statusText[e.status]
	if !ok {
		text = "OK"
	}

	prelude := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\nContent-Type: application/json\r\n\r\n",
		e.status, text, len(e.body))

	if err := p.AppendOutput([]byte(prelude)); err != nil {
		return err
	}

	return p.AppendOutput(e.body)
}

func (e *Engine) MustCloseAfterResponse() bool {
	ka := strings.ToLower(e.req.Headers["keep-alive"])
	conn := strings.ToLower(e.req.Headers["connection"])

	return conn == "close" || ka == "false" || ka == "0"
}

func (e *Engine) HasOutput() bool { return e.hasOutput }

func (e *Engine) Reset() {
	e.req = Request{}
	e.call = call{}
	e.headerEnd = 0
	e.contentLength = 0
	e.hasOutput = false
}

func peekContentLength(headerBlock []byte) int {
	lines := bytes.Split(headerBlock, []byte("\r\n"))
	for _, line := range lines {
		k, v, ok := strings.Cut(string(line), ":")
		if !ok {
			continue
		}

		if strings.EqualFold(strings.TrimSpace(k), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return 0
			}

			return n
		}
	}

	return 0
}

type call struct {
	req *Request
}

func (c *call) MethodName() string {
	return c.req.Path
}

func (c *call) RequestKind() protocol.RequestKind {
	switch c.req.Method {
	case "GET":
		return protocol.Get
	case "PUT":
		return protocol.Put
	case "DELETE":
		return protocol.Delete
	default:
		return protocol.Post
	}
}

func (c *call) IsNotification() bool             { return false }
func (c *call) Param(name string) protocol.Value { return protocol.Value{} }
func (c *call) ParamAt(i int) protocol.Value     { return protocol.Value{} }

func (c *call) Header(name string) string {
	return c.req.Headers[strings.ToLower(name)]
}

func (c *call) Body() []byte { return c.req.Body }
