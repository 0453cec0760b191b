package ring

import "errors"

// ErrNoSpace is returned by Append/AppendSlice/SkipBufferWrap when the precondition
// on available space is violated.
var ErrNoSpace = errors.New("ring: insufficient space available")

// Managed extends Buffer with write_index/read_index bookkeeping, giving
// every producer/consumer pair a shared notion of how much of the ring is
// live. Mirrors smux's per-stream numWritten/peerConsumed pair (see
// vendor smux/stream.go) generalized from a byte count to an arbitrary item
// count.
type Managed[T any] struct {
	*Buffer[T]

	writeIndex uint64
	readIndex  uint64
}

// NewManaged creates a Managed ring of 1<<sizeExp slots with both indexes at 0.
func NewManaged[T any](sizeExp uint32) *Managed[T] {
	return &Managed[T]{Buffer: New[T](sizeExp)}
}

// WriteIndex returns the next slot index that Append will use.
func (m *Managed[T]) WriteIndex() uint64 { return m.writeIndex }

// ReadIndex returns the first slot index still considered live.
func (m *Managed[T]) ReadIndex() uint64 { return m.readIndex }

// SizeUsed returns write_index - read_index.
func (m *Managed[T]) SizeUsed() uint64 { return m.writeIndex - m.readIndex }

// SizeAvailable returns (1<<k) - size_used.
func (m *Managed[T]) SizeAvailable() uint64 { return m.Size() - m.SizeUsed() }

// SizeAvailableContiguous returns the larger of the two contiguous runs
// available for append: the tail-to-wrap run, and (once wrapped) the
// run from slot 0 up to read_index's masked position.
func (m *Managed[T]) SizeAvailableContiguous() uint64 {
	avail := m.SizeAvailable()
	tailRun := m.Size() - (m.writeIndex & m.Mask())
	if tailRun > avail {
		tailRun = avail
	}
	headRun := avail - tailRun
	if tailRun >= headRun {
		return tailRun
	}
	return headRun
}

// Append writes item at write_index & mask and advances write_index by one.
// Precondition: SizeAvailable() >= 1.
func (m *Managed[T]) Append(item T) error {
	if m.SizeAvailable() < 1 {
		return ErrNoSpace
	}
	*m.At(m.writeIndex) = item
	m.writeIndex++
	return nil
}

// AppendSlice copies items starting at write_index, splitting the copy into
// two chunks across the wrap boundary when necessary. Precondition:
// SizeAvailable() >= len(items).
func (m *Managed[T]) AppendSlice(items []T) error {
	n := uint64(len(items))
	if n == 0 {
		return nil
	}
	if m.SizeAvailable() < n {
		return ErrNoSpace
	}

	start := m.writeIndex & m.Mask()
	size := m.Size()
	firstChunk := size - start
	if firstChunk > n {
		firstChunk = n
	}
	copy(m.slots[start:start+firstChunk], items[:firstChunk])
	if firstChunk < n {
		remaining := n - firstChunk
		copy(m.slots[0:remaining], items[firstChunk:])
	}
	m.writeIndex += n
	return nil
}

// SkipBufferWrap advances write_index to the next wrap boundary if the next
// n items would otherwise span it, padding the skipped slots. It is a no-op
// if the next n items already fit contiguously before the boundary.
// Precondition: SizeAvailable() >= n (n counted against the post-pad index).
func (m *Managed[T]) SkipBufferWrap(n uint64) error {
	start := m.writeIndex & m.Mask()
	size := m.Size()
	remaining := size - start
	if n <= remaining {
		return nil // no wrap crossed, nothing to pad
	}
	if m.SizeAvailable() < remaining {
		return ErrNoSpace
	}
	m.writeIndex += remaining
	return nil
}

// SetReadIndex is the only way read_index changes; it may only move forward.
func (m *Managed[T]) SetReadIndex(x uint64) error {
	if x < m.readIndex {
		return errors.New("ring: read_index may only advance")
	}
	if x > m.writeIndex {
		return errors.New("ring: read_index may not pass write_index")
	}
	m.readIndex = x
	return nil
}
