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

// Package pool implements the fixed-capacity connection pool (spec
// section 4.3): every Connection record is preallocated at construction,
// and admission/release is an O(1) index-stack operation behind a single
// mutex, backstopped by a weighted semaphore admission gate.
package pool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github/sabouaram/ucall/conn"
)

// Pool is the fixed-capacity bag of preallocated connection records.
type Pool struct {
	mu       sync.Mutex
	records  []*conn.Connection
	free     []int
	admitted uint32

	gate *semaphore.Weighted

	// dismissed counts admissions rejected because the pool (or its
	// semaphore gate) was already at capacity -- the engine's lifetime
	// rule (c) closes every live connection once this becomes non-zero.
	dismissed uint64
}

// New preallocates capacity Connection records and their admission gate.
func New(capacity int) *Pool {
	p := &Pool{
		records: make([]*conn.Connection, capacity),
		free:    make([]int, capacity),
		gate:    semaphore.NewWeighted(int64(capacity)),
	}

	for i := 0; i < capacity; i++ {
		p.records[i] = conn.New(i)
		p.free[i] = capacity - 1 - i
	}

	return p
}

// Capacity reports the fixed number of connection slots.
func (p *Pool) Capacity() int { return len(p.records) }

// Acquire admits one connection, returning its record reset and ready for
// use, or ErrorExhausted if the pool is already at capacity. The
// semaphore gate is tried first as the documented "single-CAS reserved
// fast path" backstop; a TryAcquire failure never blocks.
func (p *Pool) Acquire(baseWakeup time.Duration) (*conn.Connection, error) {
	if !p.gate.TryAcquire(1) {
		p.mu.Lock()
		p.dismissed++
		p.mu.Unlock()

		return nil, ErrorExhausted.Error(nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		p.gate.Release(1)
		p.dismissed++

		return nil, ErrorExhausted.Error(nil)
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.admitted++

	rec := p.records[idx]
	rec.Reset(baseWakeup)

	return rec, nil
}

// Release returns a record to the free list. Per the connection record's
// invariant (a), callers must ensure no kernel operation is outstanding
// on it before calling Release.
func (p *Pool) Release(c *conn.Connection) {
	p.mu.Lock()
	p.free = append(p.free, c.Offset())
	p.admitted--
	p.mu.Unlock()

	p.gate.Release(1)
}

// Admitted reports the number of currently active connections.
func (p *Pool) Admitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return int(p.admitted)
}

// Dismissed reports how many admissions have been rejected for capacity
// since the pool was created; a non-zero value is lifetime rule (c) from
// spec section 4.7.
func (p *Pool) Dismissed() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.dismissed
}

// TryAcquireContext blocks until a slot is free or ctx is done, for
// callers that prefer to wait briefly rather than reject immediately
// (e.g. a listener backstop atop golang.org/x/net/netutil.LimitListener).
func (p *Pool) TryAcquireContext(ctx context.Context, baseWakeup time.Duration) (*conn.Connection, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return nil, ErrorExhausted.Error(err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		p.gate.Release(1)
		p.dismissed++

		return nil, ErrorExhausted.Error(nil)
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.admitted++

	rec := p.records[idx]
	rec.Reset(baseWakeup)

	return rec, nil
}
