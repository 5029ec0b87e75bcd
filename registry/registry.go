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

// Package registry implements the append-only handler table described in
// spec section 4.5: callbacks are registered once at server construction
// and looked up by linear scan of (name, method-kind) on every dispatch.
package registry

import (
	"sync"

	"github/sabouaram/ucall/protocol"
)

// HandlerFunc is a user-registered callback. It receives the in-flight
// Call and must produce exactly one reply through it before returning.
type HandlerFunc func(call *Call, tag any)

type entry struct {
	name string
	kind protocol.RequestKind
	fn   HandlerFunc
	tag  any
}

// Registry is the fixed-capacity, append-only handler table.
type Registry struct {
	mu       sync.RWMutex
	entries  []entry
	capacity int
}

// New returns a Registry with room for at most capacity handlers
// (max_callbacks, spec section 6).
func New(capacity int) *Registry {
	return &Registry{entries: make([]entry, 0, capacity), capacity: capacity}
}

// Register appends a handler. Returns false once the registry is full;
// per spec section 4.5 further appends are silently ignored, so callers
// that care about capacity exhaustion should check the return value
// themselves.
func (r *Registry) Register(name string, kind protocol.RequestKind, fn HandlerFunc, tag any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.capacity {
		return false
	}

	r.entries = append(r.entries, entry{name: name, kind: kind, fn: fn, tag: tag})

	return true
}

// Lookup performs the linear scan by (name, kind) described in spec
// section 4.5. The registry is read-only after construction, so Lookup
// takes a read lock only to be safe against a Register racing during
// startup; once serving begins this is effectively uncontended.
func (r *Registry) Lookup(name string, kind protocol.RequestKind) (fn HandlerFunc, tag any, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.name == name && e.kind == kind {
			return e.fn, e.tag, true
		}
	}

	return nil, nil, false
}

// Len reports how many handlers are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
