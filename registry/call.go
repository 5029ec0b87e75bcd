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

package registry

import (
	"github/sabouaram/ucall/pipe"
	"github/sabouaram/ucall/protocol"
)

// Call is the opaque call handle passed to a handler (spec section 4.5).
// A handler must produce exactly one reply through it before returning and
// must not retain it beyond the call.
type Call struct {
	req     protocol.Call
	engine  protocol.Engine
	out     *pipe.Pipe
	replied bool
}

// NewCall wraps a decoded protocol.Call for dispatch to a handler. Used by
// the engine package's dispatch transition (spec section 4.7); not
// intended for handler code to construct directly.
func NewCall(req protocol.Call, engine protocol.Engine, out *pipe.Pipe) *Call {
	return &Call{req: req, engine: engine, out: out}
}

// Replied reports whether a reply method has already been called.
func (c *Call) Replied() bool { return c.replied }

// MethodName returns the JSON-RPC method or REST template name.
func (c *Call) MethodName() string { return c.req.MethodName() }

// IsNotification reports whether a reply must be suppressed.
func (c *Call) IsNotification() bool { return c.req.IsNotification() }

// Header returns a string view into the parsed transport headers.
func (c *Call) Header(name string) string { return c.req.Header(name) }

// Body returns the raw payload bytes for this call.
func (c *Call) Body() []byte { return c.req.Body() }

// ParamNamedBool returns the named boolean parameter, or false if absent
// or of another type.
func (c *Call) ParamNamedBool(name string) bool {
	v := c.req.Param(name)
	return v.Kind == protocol.Bool && v.B
}

// ParamNamedI64 returns the named integer parameter.
func (c *Call) ParamNamedI64(name string) int64 {
	v := c.req.Param(name)
	return v.I
}

// ParamNamedF64 returns the named floating point parameter.
func (c *Call) ParamNamedF64(name string) float64 {
	v := c.req.Param(name)
	if v.Kind == protocol.Int64 {
		return float64(v.I)
	}

	return v.F
}

// ParamNamedStr returns the named string parameter.
func (c *Call) ParamNamedStr(name string) string {
	v := c.req.Param(name)
	return v.S
}

// ParamPositionalBool returns the positional boolean parameter.
func (c *Call) ParamPositionalBool(index int) bool {
	v := c.req.ParamAt(index)
	return v.Kind == protocol.Bool && v.B
}

// ParamPositionalI64 returns the positional integer parameter.
func (c *Call) ParamPositionalI64(index int) int64 {
	v := c.req.ParamAt(index)
	return v.I
}

// ParamPositionalF64 returns the positional floating point parameter.
func (c *Call) ParamPositionalF64(index int) float64 {
	v := c.req.ParamAt(index)
	if v.Kind == protocol.Int64 {
		return float64(v.I)
	}

	return v.F
}

// ParamPositionalStr returns the positional string parameter.
func (c *Call) ParamPositionalStr(index int) string {
	v := c.req.ParamAt(index)
	return v.S
}

// ReplyContent appends body as the successful result of this call.
func (c *Call) ReplyContent(body []byte) error {
	if c.replied {
		return ErrorAlreadyReplied.Error(nil)
	}

	c.replied = true

	return c.engine.AppendResponse(c.out, c.req, body)
}

// ReplyError appends a protocol-framed error for this call.
func (c *Call) ReplyError(code protocol.FaultCode, msg string) error {
	if c.replied {
		return ErrorAlreadyReplied.Error(nil)
	}

	c.replied = true

	return c.engine.AppendError(c.out, c.req, protocol.NewFault(code, msg, nil))
}

// ReplyErrorInvalidParams appends the canned invalid-params error.
func (c *Call) ReplyErrorInvalidParams() error {
	if c.replied {
		return ErrorAlreadyReplied.Error(nil)
	}

	c.replied = true

	return c.engine.AppendError(c.out, c.req, protocol.FaultInvalidParams())
}

// ReplyErrorUnknown appends the canned unknown-error reply.
func (c *Call) ReplyErrorUnknown() error {
	if c.replied {
		return ErrorAlreadyReplied.Error(nil)
	}

	c.replied = true

	return c.engine.AppendError(c.out, c.req, protocol.FaultUnknown())
}

// ReplyErrorOutOfMemory appends the canned out-of-memory reply.
func (c *Call) ReplyErrorOutOfMemory() error {
	if c.replied {
		return ErrorAlreadyReplied.Error(nil)
	}

	c.replied = true

	return c.engine.AppendError(c.out, c.req, protocol.FaultOutOfMemory())
}
