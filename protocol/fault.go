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

package protocol

import "fmt"

// FaultCode is a wire-level error code. Unlike errors.CodeError (an
// internal, traceable Go error taxonomy, uint16-ranged), FaultCode carries
// the protocol's own numeric space verbatim: JSON-RPC's negative codes
// (spec section 4.4) and REST's HTTP status numerics share this single
// signed type because both are framed directly onto the wire rather than
// logged.
type FaultCode int32

// JSON-RPC 2.0 error codes used by the core (spec section 4.4 / 7).
const (
	CodeParseError     FaultCode = -32700
	CodeInvalidRequest FaultCode = -32600
	CodeMethodNotFound FaultCode = -32601
	CodeInvalidParams  FaultCode = -32602
	CodeInternalError  FaultCode = -32603
	CodeOutOfMemory    FaultCode = -32000
)

// REST / HTTP status numerics used by the core (spec section 4.4 / 7).
const (
	CodeNotFound            FaultCode = 404
	CodeUnsupportedMedia    FaultCode = 415
	CodeInternalServerError FaultCode = 500
)

// Fault is a protocol-framed error: the thing a handler, a parser or the
// dispatch loop produces when a request cannot be answered normally. It
// composes with the internal errors.Error taxonomy by wrapping one as
// Cause, rather than replacing it.
type Fault struct {
	Code    FaultCode
	Message string
	Cause   error
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}

	if f.Cause != nil {
		return fmt.Sprintf("%s (code %d): %v", f.Message, f.Code, f.Cause)
	}

	return fmt.Sprintf("%s (code %d)", f.Message, f.Code)
}

func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}

	return f.Cause
}

// NewFault builds a Fault from a code and message, optionally wrapping a
// Go-level cause.
func NewFault(code FaultCode, message string, cause error) *Fault {
	return &Fault{Code: code, Message: message, Cause: cause}
}

// Canned faults, mirroring the reply API's three canned errors
// (spec section 4.5/6).
func FaultInvalidParams() *Fault {
	return &Fault{Code: CodeInvalidParams, Message: "Invalid method param(s)."}
}

func FaultUnknown() *Fault {
	return &Fault{Code: CodeInternalError, Message: "Unknown error."}
}

func FaultOutOfMemory() *Fault {
	return &Fault{Code: CodeOutOfMemory, Message: "Out of memory."}
}

func FaultMethodNotFound() *Fault {
	return &Fault{Code: CodeMethodNotFound, Message: "Method not found"}
}

func FaultParseError(cause error) *Fault {
	return &Fault{Code: CodeParseError, Message: "Parse error", Cause: cause}
}

func FaultInvalidRequest(cause error) *Fault {
	return &Fault{Code: CodeInvalidRequest, Message: "Invalid Request", Cause: cause}
}
