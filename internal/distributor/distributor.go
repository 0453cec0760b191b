// Package distributor implements the process-local hand-off between a
// ComputeBuilder and its local analysis workers (spec §4.6): a bounded
// work-item queue and a completion queue, modeled as the shared-memory
// `<id>_work_items`/`<id>_completions` message queues of spec §6 but
// realized in-process as buffered Go channels -- the same "wakeup channel"
// shape smux uses per-stream (vendor smux/stream.go: chReaderWakeup,
// chWriterWakeup, chUpdate) generalized from one flow-control signal to a
// full item queue.
package distributor

import (
	"errors"

	"github.com/cbm-fles/flesnet-sub001/internal/compute"
)

// ErrDistributorBackpressure is returned by PostWorkItem when the queue is
// full. The queue is sized >= desc_cap so this should not occur in steady
// state (spec §4.6).
var ErrDistributorBackpressure = errors.New("distributor: work item queue full")

// Completion is what a worker returns after consuming a timeslice in place.
// A zero-length/zero-value Completion with Sentinel set is the end-of-stream
// marker (spec §6).
type Completion struct {
	TsPos     uint64
	Sentinel  bool
}

// ItemDistributor is the shared-memory-queue stand-in of spec §4.6.
type ItemDistributor struct {
	workItems   chan compute.WorkItem
	completions chan Completion

	shutdownOnce bool
}

// New creates an ItemDistributor whose queues are sized depth (spec §6:
// "depth >= desc_cap").
func New(depth int) *ItemDistributor {
	return &ItemDistributor{
		workItems:   make(chan compute.WorkItem, depth),
		completions: make(chan Completion, depth),
	}
}

// PostWorkItem enqueues w for a worker to pick up. It never blocks: a full
// queue is reported as ErrDistributorBackpressure rather than stalling the
// compute builder's completion thread (spec §5: "the builder must not hold
// the channel-state lock across this call" -- a blocking post would risk
// exactly that).
func (d *ItemDistributor) PostWorkItem(w compute.WorkItem) error {
	select {
	case d.workItems <- w:
		return nil
	default:
		return ErrDistributorBackpressure
	}
}

// ReceiveWorkItem blocks until a work item is available or the queue is
// shut down, in which case it returns the zero value and ok=false (the
// sentinel translated into Go channel-close semantics).
func (d *ItemDistributor) ReceiveWorkItem() (compute.WorkItem, bool) {
	w, ok := <-d.workItems
	return w, ok
}

// PostCompletion is called by a worker once it has consumed a timeslice.
func (d *ItemDistributor) PostCompletion(c Completion) error {
	select {
	case d.completions <- c:
		return nil
	default:
		return ErrDistributorBackpressure
	}
}

// TryReceiveCompletion is a non-blocking pop of a completion returned by a
// worker (spec §4.6).
func (d *ItemDistributor) TryReceiveCompletion() (Completion, bool) {
	select {
	case c := <-d.completions:
		return c, true
	default:
		return Completion{}, false
	}
}

// Shutdown wakes any blocked workers with a sentinel zero-length message so
// they return to their caller cleanly (spec §4.6). Safe to call once;
// subsequent calls are no-ops.
func (d *ItemDistributor) Shutdown() {
	if d.shutdownOnce {
		return
	}
	d.shutdownOnce = true
	close(d.workItems)
}
