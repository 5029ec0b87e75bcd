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

// Package protocol defines the common contract every wire protocol engine
// implements (spec section 4.4): raw TCP, HTTP/1.1, JSON-RPC 2.0 layered
// over either transport, and a URL-template REST dialect.
//
// The server engine drives an Engine polymorphically; it never knows which
// concrete variant it holds. Each concrete engine owns its own parsed
// headers, parsed content tree and response-framing cursor, and is reset
// between exchanges rather than recreated.
package protocol

import "github/sabouaram/ucall/pipe"

// Kind identifies which wire protocol an Engine implements.
type Kind uint8

const (
	RawTCP Kind = iota
	HTTP
	JSONRPCOverTCP
	JSONRPCOverHTTP
	REST
)

func (k Kind) String() string {
	switch k {
	case RawTCP:
		return "raw-tcp"
	case HTTP:
		return "http"
	case JSONRPCOverTCP:
		return "jsonrpc/tcp"
	case JSONRPCOverHTTP:
		return "jsonrpc/http"
	case REST:
		return "rest"
	default:
		return "unknown"
	}
}

// RequestKind selects which handler table a request dispatches against
// (spec section 4.5): JSON-RPC requests are always treated as Call, REST
// requests carry their HTTP verb.
type RequestKind uint8

const (
	Call RequestKind = iota
	Get
	Put
	Post
	Delete
)

// ValueKind tags the dynamic type carried by a Value.
type ValueKind uint8

const (
	Null ValueKind = iota
	Bool
	Int64
	Float64
	String
)

// Value is a tagged parameter value returned by GetParam/GetParamAt, mirroring
// the source's "tagged value" contract (null / bool / int64 / float64 /
// string-view).
type Value struct {
	Kind ValueKind
	B    bool
	I    int64
	F    float64
	S    string
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.Kind == Null }

// Engine is the common contract implemented by every wire protocol
// (spec section 4.4). A single Engine instance is owned by a connection
// record and reused across exchanges via Reset.
type Engine interface {
	// IsInputComplete reports whether span holds one whole framed request.
	IsInputComplete(span []byte) bool

	// ParseHeaders populates transport-level fields from span. Returns a
	// Fault classified as a framing error on malformed input.
	ParseHeaders(span []byte) *Fault

	// ParseContent decodes the payload into a navigable tree. Returns a
	// Fault classified as a parse error or out-of-memory.
	ParseContent() *Fault

	// Calls returns the individual calls framed in this exchange: one for
	// everything except a JSON-RPC batch, which may hold several.
	Calls() []Call

	// PrepareResponse writes any framing prefix (HTTP status/header block
	// with a reserved Content-Length placeholder, JSON-RPC batch opener,
	// nothing for raw TCP) into the outbound half of p.
	PrepareResponse(p *pipe.Pipe) error

	// AppendResponse wraps body in the protocol envelope for call c and
	// writes it into p.
	AppendResponse(p *pipe.Pipe, c Call, body []byte) error

	// AppendError wraps a protocol-level fault for call c into p.
	AppendError(p *pipe.Pipe, c Call, f *Fault) error

	// FinalizeResponse writes any framing suffix: HTTP Content-Length
	// back-patch, raw-TCP terminator, JSON-RPC batch closer.
	FinalizeResponse(p *pipe.Pipe) error

	// MustCloseAfterResponse reports whether the transport requires the
	// connection to close after this exchange (e.g. HTTP without
	// Keep-Alive).
	MustCloseAfterResponse() bool

	// HasOutput reports whether this exchange produced any response bytes
	// at all (false for an all-notification JSON-RPC batch).
	HasOutput() bool

	// Reset clears per-exchange state while preserving parser capacity.
	Reset()

	// Kind reports which protocol variant this engine implements.
	Kind() Kind
}

// Call is one decoded request within an exchange: a JSON-RPC single
// request, one element of a JSON-RPC batch, a REST request, or the sole
// implicit call of a raw-TCP/HTTP exchange.
type Call interface {
	// MethodName is the JSON-RPC method or the matched REST template name.
	MethodName() string

	// RequestKind selects GET/PUT/POST/DELETE for REST, Call otherwise.
	RequestKind() RequestKind

	// IsNotification reports whether a reply must be suppressed (JSON-RPC
	// requests that omit "id").
	IsNotification() bool

	// Param returns a named parameter (JSON-RPC object params, REST
	// template placeholders).
	Param(name string) Value

	// ParamAt returns a positional parameter (JSON-RPC array params).
	ParamAt(index int) Value

	// Header returns a string view into the parsed transport headers.
	Header(name string) string

	// Body returns the raw payload bytes for this call: the whole
	// null-terminated frame for raw TCP, the request body for REST, the
	// raw JSON text of "params" for JSON-RPC.
	Body() []byte
}
