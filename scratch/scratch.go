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

// Package scratch holds the per-worker JSON decode buffer used by the
// JSON-RPC and REST protocol engines (spec section 4.2). A Space is never
// shared across worker goroutines: each worker owns exactly one, reused
// across every exchange it handles, so decoding never allocates a fresh
// tree per request.
package scratch

import (
	jsoniter "github.com/json-iterator/go"

	"github/sabouaram/ucall/protocol"
)

// defaultCapacity is the initial number of decoded fields a Space
// pre-allocates room for before it must grow.
const defaultCapacity = 32

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// field is one decoded top-level JSON value, keyed by object field name
// (object member) or left unnamed (array element), addressable either way.
type field struct {
	name string
	val  protocol.Value
}

// Tree is a single decoded flat JSON object or array, addressable by name
// or position. Nested structures are not decoded into Tree: handlers that
// need nested params reach into Raw themselves.
type Tree struct {
	fields []field
	Raw    []byte
}

// Get returns the named member's value, or a Null Value if absent.
func (t *Tree) Get(name string) protocol.Value {
	for i := range t.fields {
		if t.fields[i].name == name {
			return t.fields[i].val
		}
	}

	return protocol.Value{}
}

// GetAt returns the value at a zero-based position, or a Null Value if out
// of range.
func (t *Tree) GetAt(index int) protocol.Value {
	if index < 0 || index >= len(t.fields) {
		return protocol.Value{}
	}

	return t.fields[index].val
}

// Len reports how many top-level members were decoded.
func (t *Tree) Len() int { return len(t.fields) }

// Space is the per-worker scratch buffer: one reusable Tree plus the
// jsoniter iterator bound to it.
type Space struct {
	tree Tree
	cap  int
}

// New returns a Space with room for defaultCapacity fields before growth.
func New() *Space {
	return &Space{cap: defaultCapacity}
}

// Reset clears the previously decoded tree so it can be reused for the
// next exchange without reallocating its backing array.
func (s *Space) Reset() {
	s.tree.fields = s.tree.fields[:0]
	s.tree.Raw = nil
}

// DecodeObject decodes a flat JSON object's members into the reusable
// Tree, growing its backing slice on demand up to maxFields. It returns
// ErrorOutOfMemory if raw would require more fields than maxFields, per
// the scratch space's bounded-growth contract (spec section 4.2).
func (s *Space) DecodeObject(raw []byte, maxFields int) (*Tree, error) {
	s.Reset()
	s.tree.Raw = raw

	it := jsonAPI.BorrowIterator(raw)
	defer jsonAPI.ReturnIterator(it)

	if it.WhatIsNext() != jsoniter.ObjectValue {
		return &s.tree, nil
	}

	it.ReadObjectCB(func(iter *jsoniter.Iterator, name string) bool {
		if len(s.tree.fields) >= maxFields {
			iter.Skip()
			return true
		}

		s.tree.fields = append(s.tree.fields, field{name: name, val: readValue(iter)})

		return true
	})

	if it.Error != nil && it.Error.Error() != "EOF" {
		return nil, ErrorDecodeFailed.Error(it.Error)
	}

	return &s.tree, nil
}

// DecodeArray decodes a flat JSON array's elements into the reusable
// Tree, addressable by position via GetAt.
func (s *Space) DecodeArray(raw []byte, maxFields int) (*Tree, error) {
	s.Reset()
	s.tree.Raw = raw

	it := jsonAPI.BorrowIterator(raw)
	defer jsonAPI.ReturnIterator(it)

	if it.WhatIsNext() != jsoniter.ArrayValue {
		return &s.tree, nil
	}

	it.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
		if len(s.tree.fields) >= maxFields {
			iter.Skip()
			return true
		}

		s.tree.fields = append(s.tree.fields, field{val: readValue(iter)})

		return true
	})

	if it.Error != nil && it.Error.Error() != "EOF" {
		return nil, ErrorDecodeFailed.Error(it.Error)
	}

	return &s.tree, nil
}

func readValue(it *jsoniter.Iterator) protocol.Value {
	switch it.WhatIsNext() {
	case jsoniter.BoolValue:
		return protocol.Value{Kind: protocol.Bool, B: it.ReadBool()}
	case jsoniter.NumberValue:
		n := it.ReadNumber()
		if i, err := n.Int64(); err == nil {
			return protocol.Value{Kind: protocol.Int64, I: i}
		}

		f, _ := n.Float64()

		return protocol.Value{Kind: protocol.Float64, F: f}
	case jsoniter.StringValue:
		return protocol.Value{Kind: protocol.String, S: it.ReadString()}
	case jsoniter.NilValue:
		it.ReadNil()
		return protocol.Value{Kind: protocol.Null}
	default:
		it.Skip()
		return protocol.Value{Kind: protocol.Null}
	}
}
