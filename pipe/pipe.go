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

// Package pipe implements the per-connection exchange pipe: a byte buffer
// that starts life in a fixed embedded region and spills to a heap-backed
// dynamic region once a single message outgrows it.
//
// A Pipe owns two independent half-pipes, one for inbound bytes and one for
// outbound bytes. They never alias each other's storage. Each half-pipe
// exposes a single logical contiguous span regardless of whether it is
// currently backed by its embedded array or its dynamic buffer.
package pipe

const (
	// PageSize is the size of one kernel-facing receive chunk.
	PageSize = 4096

	// ParserPadding is extra capacity reserved past the logical length of an
	// embedded buffer so that vectorized JSON scanning (see the scratch
	// package) may over-read a few bytes without bounds-checking every byte.
	ParserPadding = 32

	embeddedCapacity = PageSize + ParserPadding
)

// halfPipe is one direction (input or output) of an exchange Pipe.
type halfPipe struct {
	embedded    [embeddedCapacity]byte
	used        int
	dynamic     []byte
	dynamicUsed bool
}

// Pipe is the per-connection inbound/outbound byte buffer described in
// spec section 4.1.
type Pipe struct {
	in  halfPipe
	out halfPipe
}

// New returns a Pipe with both half-pipes empty.
func New() *Pipe {
	return &Pipe{}
}

// NextInputRegion returns a writable region of exactly one page for the next
// receive submission, along with its address as a byte slice.
func (p *Pipe) NextInputRegion() []byte {
	return p.in.embedded[:PageSize]
}

// AbsorbInput integrates n freshly-received bytes (written into the region
// returned by NextInputRegion) into the logical input span. If the input
// half-pipe already holds dynamic overflow, the embedded prefix is moved
// into it immediately so the logical span stays in one place.
func (p *Pipe) AbsorbInput(n int) error {
	if n <= 0 {
		return nil
	}

	if p.in.dynamicUsed {
		if err := p.in.growDynamic(p.in.embedded[:n]); err != nil {
			return err
		}

		return nil
	}

	if p.in.used+n <= PageSize {
		p.in.used += n
		return nil
	}

	// The received bytes do not fit embedded alongside what is already
	// there: spill everything collected so far, plus the new bytes.
	if err := p.in.growDynamic(p.in.embedded[:p.in.used]); err != nil {
		return err
	}

	return p.in.growDynamic(p.in.embedded[:n])
}

// ShiftInputToDynamic moves the embedded input prefix into the dynamic
// overflow buffer. Called when a protocol engine reports that more data is
// needed than the embedded region alone can hold.
func (p *Pipe) ShiftInputToDynamic() error {
	if p.in.dynamicUsed {
		return nil
	}

	return p.in.growDynamic(p.in.embedded[:p.in.used])
}

// InputSpan returns the current logical input bytes: the dynamic buffer if
// present, otherwise the embedded prefix.
func (p *Pipe) InputSpan() []byte {
	return p.in.span()
}

// ReleaseInput resets the input half-pipe, freeing any dynamic storage.
func (p *Pipe) ReleaseInput() {
	p.in.reset()
}

// AppendOutput appends bytes to the outbound pipe. It stays embedded while
// the cumulative size fits; once it would overflow, the embedded content
// (if any) is moved into a freshly reserved dynamic buffer and the append
// continues there.
func (p *Pipe) AppendOutput(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	if !p.out.dynamicUsed && p.out.used+len(b) <= PageSize {
		copy(p.out.embedded[p.out.used:], b)
		p.out.used += len(b)
		return nil
	}

	if !p.out.dynamicUsed {
		if err := p.out.growDynamic(p.out.embedded[:p.out.used]); err != nil {
			return err
		}
	}

	return p.out.growDynamic(b)
}

// PrepareMoreOutput, when the outbound pipe is backed by dynamic storage,
// copies the next page-sized window into the embedded region so the next
// send submission can be issued against embedded memory only. Returns the
// region to send and whether more remains after it.
func (p *Pipe) PrepareMoreOutput() (region []byte, hasMore bool) {
	if !p.out.dynamicUsed {
		return p.out.embedded[:p.out.used], false
	}

	n := len(p.out.dynamic)
	if n > PageSize {
		n = PageSize
	}

	copy(p.out.embedded[:], p.out.dynamic[:n])

	return p.out.embedded[:n], len(p.out.dynamic) > n
}

// MarkOutputSubmitted advances the send cursor by n bytes: the region
// already handed to the kernel is dropped from whichever backing store is
// active.
func (p *Pipe) MarkOutputSubmitted(n int) {
	if n <= 0 {
		return
	}

	if p.out.dynamicUsed {
		if n >= len(p.out.dynamic) {
			p.out.dynamic = p.out.dynamic[:0]
		} else {
			p.out.dynamic = p.out.dynamic[n:]
		}

		return
	}

	if n >= p.out.used {
		p.out.used = 0
	} else {
		copy(p.out.embedded[:], p.out.embedded[n:p.out.used])
		p.out.used -= n
	}
}

// OutputSpan returns the current logical output bytes.
func (p *Pipe) OutputSpan() []byte {
	return p.out.span()
}

// OutputPending reports whether any outbound bytes remain unsent.
func (p *Pipe) OutputPending() bool {
	if p.out.dynamicUsed {
		return len(p.out.dynamic) > 0
	}

	return p.out.used > 0
}

// ReleaseOutput resets the output half-pipe, freeing any dynamic storage.
func (p *Pipe) ReleaseOutput() {
	p.out.reset()
}

// Reset clears both half-pipes. Used when a connection record is returned
// to the pool so it satisfies a freshly-allocated record's invariants.
func (p *Pipe) Reset() {
	p.ReleaseInput()
	p.ReleaseOutput()
}

func (h *halfPipe) span() []byte {
	if h.dynamicUsed {
		return h.dynamic
	}

	return h.embedded[:h.used]
}

// growDynamic appends b to the dynamic buffer, allocating it on first use
// and clearing the embedded prefix it replaces.
func (h *halfPipe) growDynamic(b []byte) error {
	if cap(h.dynamic)-len(h.dynamic) < len(b) {
		grown, err := reserve(h.dynamic, len(h.dynamic)+len(b))
		if err != nil {
			return ErrorOutOfMemory.Error(err)
		}

		h.dynamic = grown
	}

	h.dynamic = append(h.dynamic, b...)
	h.dynamicUsed = true
	h.used = 0

	return nil
}

func (h *halfPipe) reset() {
	h.used = 0
	h.dynamic = nil
	h.dynamicUsed = false
}

// reserve grows a dynamic buffer to at least n bytes of capacity, doubling
// from its current capacity (or PageSize*2 if empty) to amortize further
// growth. A real allocator failure cannot be simulated in Go, so this
// exists mainly to centralize the growth policy and give AppendOutput /
// AbsorbInput a single place to report pipe.ErrorOutOfMemory from, per the
// spec's "fails on OOM" contract for AbsorbInput/AppendOutput.
func reserve(buf []byte, n int) ([]byte, error) {
	newCap := cap(buf) * 2
	if newCap == 0 {
		newCap = PageSize * 2
	}

	for newCap < n {
		newCap *= 2
	}

	grown := make([]byte, len(buf), newCap)
	copy(grown, buf)

	return grown, nil
}
