// Package compute implements the per-compute-node aggregate (spec §4.4):
// N_in ComputeChannels, the red-lantern ordering algorithm that turns
// out-of-order per-channel write progress into a monotonically advancing
// completely-written pointer, and the out-of-order completion folding that
// drives per-channel ack release.
package compute

import (
	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// WorkItem is handed to ItemDistributor for every newly completed
// timeslice (spec §4.4, §4.6).
type WorkItem struct {
	TsPos         uint64
	TsIndex       uint64 // desc_ring[0].at(tpos).ts_num
	TimesliceSize uint64
	NumComponents int
	DataSizeExp   uint32
	DescSizeExp   uint32
}

// ItemPoster is the capability Builder needs from an ItemDistributor: the
// ability to enqueue a work item. Kept local to avoid compute depending on
// internal/distributor.
type ItemPoster interface {
	PostWorkItem(WorkItem) error
}

// Builder is the per-compute-node aggregate of spec §4.4.
type Builder struct {
	channels   []*channel.ComputeChannel
	redLantern int

	completelyWritten uint64
	acked             uint64

	ackRing     []bool // out-of-order completion markers, indexed by tsPos & ackRingMask
	ackRingMask uint64

	timesliceSize uint64
	dataSizeExp   uint32
	descSizeExp   uint32

	dropMode bool // synthesize completions immediately: no local worker pool configured
}

// New creates a Builder over the given per-input-node channels. ackRingSize
// must be a power of two and should be >= desc_cap (spec §4.4 invariant:
// "ack_ring holds at most desc_cap pending out-of-order markers").
func New(channels []*channel.ComputeChannel, ackRingSize uint64, timesliceSize uint64, dataSizeExp, descSizeExp uint32, dropMode bool) *Builder {
	return &Builder{
		channels:      channels,
		ackRing:       make([]bool, ackRingSize),
		ackRingMask:   ackRingSize - 1,
		timesliceSize: timesliceSize,
		dataSizeExp:   dataSizeExp,
		descSizeExp:   descSizeExp,
		dropMode:      dropMode,
	}
}

// CompletelyWritten returns the current completely_written pointer.
func (b *Builder) CompletelyWritten() uint64 { return b.completelyWritten }

// Acked returns the current acked pointer.
func (b *Builder) Acked() uint64 { return b.acked }

// RedLantern returns the index of the currently lagging channel.
func (b *Builder) RedLantern() int { return b.redLantern }

// Channels exposes the underlying channel slice for tests/diagnostics.
func (b *Builder) Channels() []*channel.ComputeChannel { return b.channels }

// argmin returns the index and value of the minimum cn_wp.desc among
// non-Failed channels, breaking ties toward the lowest index (spec §4.4:
// "stable: lowest index on tie").
func (b *Builder) argmin() (int, uint64) {
	j := -1
	var min uint64
	for k, c := range b.channels {
		if c.State() == channel.ComputeFailed {
			continue
		}
		wp := c.WP().Desc
		if j == -1 || wp < min {
			j = k
			min = wp
		}
	}
	return j, min
}

// OnWPRecv implements the red-lantern algorithm of spec §4.4. It must be
// called for every channel whose cn_wp advances; the expensive argmin scan
// only runs when the advancing channel is the current red lantern, since by
// construction only the lagging channel's advance can move the minimum.
func (b *Builder) OnWPRecv(i int, newWP wire.ComputeNodeBufferPosition, dist ItemPoster) error {
	b.channels[i].OnWPRecv(newWP)
	if i != b.redLantern {
		return nil
	}

	j, newMin := b.argmin()
	if j == -1 {
		return nil // every channel failed; builder progress is stuck (spec §4.4 failure semantics)
	}

	for t := b.completelyWritten; t < newMin; t++ {
		item := b.buildWorkItem(t)
		if err := dist.PostWorkItem(item); err != nil {
			return err
		}
		if b.dropMode {
			b.OnCompletion(t)
		}
	}
	b.redLantern = j
	b.completelyWritten = newMin
	return nil
}

// AdvancePastFailed allows completely_written to advance past tpos values
// assigned to a channel the heartbeat layer has declared Failed and
// redistributed, per spec §4.4's failure semantics. newCompletelyWritten
// must be >= the current value; it is the caller's (heartbeat/redistribution
// protocol's) responsibility to only ever pass a value consistent with the
// failure decision's timeslice_trigger invariant (spec §4.7).
func (b *Builder) AdvancePastFailed(newCompletelyWritten int, dist ItemPoster) error {
	target := uint64(newCompletelyWritten)
	if target <= b.completelyWritten {
		return nil
	}
	for t := b.completelyWritten; t < target; t++ {
		if err := dist.PostWorkItem(b.buildWorkItem(t)); err != nil {
			return err
		}
		if b.dropMode {
			b.OnCompletion(t)
		}
	}
	b.completelyWritten = target
	return nil
}

// OnChannelFailed marks channel i Failed and lets completely_written advance
// past any tpos values it was still lagging on, the compute-side half of
// spec §4.4's failure semantics ("a transport-level disconnect on channel i
// is fatal to builder progress unless ... channels[i] is marked Failed and
// the argmin above excludes it"). Unlike OnWPRecv this is driven directly by
// the transport layer's own disconnect event rather than a heartbeat
// decision: once a channel's connection is gone there is nothing left to
// wait for, so there is no separate consensus step on this side (this repo
// models no inter-compute-node gossip transport, the same Open Question
// decision recorded for heartbeat.Consensus on the input side).
func (b *Builder) OnChannelFailed(i int, dist ItemPoster) error {
	if i < 0 || i >= len(b.channels) {
		return nil
	}
	b.channels[i].MarkFailed()

	j, newMin := b.argmin()
	if j == -1 {
		return nil // every channel failed; builder progress is stuck
	}
	b.redLantern = j
	return b.AdvancePastFailed(int(newMin), dist)
}

func (b *Builder) buildWorkItem(tpos uint64) WorkItem {
	var tsIndex uint64
	if len(b.channels) > 0 {
		tsIndex = b.channels[0].DescRing.At(tpos).TsNum
	}
	return WorkItem{
		TsPos:         tpos,
		TsIndex:       tsIndex,
		TimesliceSize: b.timesliceSize,
		NumComponents: len(b.channels),
		DataSizeExp:   b.dataSizeExp,
		DescSizeExp:   b.descSizeExp,
	}
}

// OnCompletion folds a worker's completion report into the acked pointer
// (spec §4.4's out-of-order ack handler):
//
//	if ts_pos == acked: acked += 1 while ack_ring[acked] marks a pending
//	  out-of-order completion; fold the new acked into every channel's ack.
//	else: remember ts_pos as an out-of-order completion in ack_ring.
func (b *Builder) OnCompletion(tsPos uint64) {
	if tsPos != b.acked {
		b.ackRing[tsPos&b.ackRingMask] = true
		return
	}

	b.acked++
	for b.ackRing[b.acked&b.ackRingMask] {
		b.ackRing[b.acked&b.ackRingMask] = false
		b.acked++
	}

	for _, c := range b.channels {
		c.IncAck(b.acked)
	}
}
