// The MIT License (MIT)
//
// Copyright (c) 2024 flesnet-sub001 contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package ring holds the owner-local, power-of-two-sized slot store that
// every other component addresses by masked index instead of modulo.
package ring

import "fmt"

// Buffer is a fixed-capacity, power-of-two-sized slot store addressed by a
// masked 64-bit index. It performs no internal synchronization: callers are
// responsible for ensuring a single writer and coordinating readers via the
// credit/ack protocol layered on top (see package credit).
type Buffer[T any] struct {
	slots    []T
	sizeExp  uint32
	sizeMask uint64
}

// New creates a Buffer of 1<<sizeExp slots. sizeExp must be >= 0.
func New[T any](sizeExp uint32) *Buffer[T] {
	size := uint64(1) << sizeExp
	return &Buffer[T]{
		slots:    make([]T, size),
		sizeExp:  sizeExp,
		sizeMask: size - 1,
	}
}

// SizeExp returns the fixed size exponent k, where the buffer holds 1<<k slots.
func (b *Buffer[T]) SizeExp() uint32 { return b.sizeExp }

// Size returns the fixed number of slots, 1<<k.
func (b *Buffer[T]) Size() uint64 { return b.sizeMask + 1 }

// Mask returns size_mask = (1<<k) - 1.
func (b *Buffer[T]) Mask() uint64 { return b.sizeMask }

// At returns a pointer to slot(n) = buf[n & size_mask]. Always valid: no
// bounds check can fail since the mask confines every index to range.
func (b *Buffer[T]) At(n uint64) *T {
	return &b.slots[n&b.sizeMask]
}

// Slots exposes the raw backing storage, standing in for the RDMA-registerable
// memory region a real Transport would pin: a real one-sided write target is
// always a contiguous []T. The transports in internal/transport do not use
// it: they carry write payloads in stream frames, and the memory regions in
// the connect handshake are not filled from this slice.
func (b *Buffer[T]) Slots() []T { return b.slots }

func (b *Buffer[T]) String() string {
	return fmt.Sprintf("ring.Buffer[size=%d]", b.Size())
}
