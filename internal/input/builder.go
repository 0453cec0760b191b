package input

import (
	"log"
	"sort"

	"github.com/pkg/errors"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// tsExtent is what Builder remembers about a timeslice it has sent, so that
// once its descriptor write is acknowledged in order the builder can fold
// the byte extent into acked_data/acked_desc (spec §4.5 poll_transport).
type tsExtent struct {
	channelIdx int
	descEnd    uint64 // source desc_buffer read_index once this timeslice is consumable
	dataEnd    uint64 // source data_buffer read_index once this timeslice is consumable
}

// Builder is the sending-side counterpart to compute.Builder (spec §4.5).
type Builder struct {
	channels  []*channel.InputChannel
	scheduler Scheduler
	source    Source
	poster    channel.Poster

	timesliceSize uint64
	overlap       uint64
	maxTimeslice  uint64 // 0 = unbounded

	nextTimeslice uint64

	// pendingRedistribute holds timeslices rewound by RedistributeFailed
	// (spec §4.7 "rewinds outstanding sends beyond timeslice_trigger, and
	// redistributes the affected timeslices"), oldest first; MaybeSend
	// drains this ahead of nextTimeslice so a failed channel's abandoned
	// work is resent before any new timeslice is attempted.
	pendingRedistribute []uint64

	// completion reordering, same shape as compute.Builder's ack ring
	// (spec §4.4/§4.5): a posted timeslice's descriptor write may complete
	// out of order across channels, but acked_data/acked_desc must only
	// advance once every lower-numbered timeslice has also completed.
	completed map[uint64]struct{}
	acked     uint64
	extents   map[uint64]tsExtent
	ackedData uint64
	ackedDesc uint64

	cachedAckedData uint64
	cachedAckedDesc uint64
	minAckedData    uint64
	minAckedDesc    uint64

	stats *IntervalStats

	abortRequested  bool
	finalizeStarted bool
}

// NewBuilder creates a Builder sending timesliceSize-microslice timeslices
// (plus overlap trailing microslices) from source across channels, using
// scheduler to pick a destination channel per timeslice. minAckedData/
// minAckedDesc gate how often sync_source_if_due actually publishes new read
// indexes back to the source (spec §4.5 step 3).
func NewBuilder(channels []*channel.InputChannel, scheduler Scheduler, source Source, poster channel.Poster, timesliceSize, overlap uint64, minAckedData, minAckedDesc uint64, stats *IntervalStats) *Builder {
	return &Builder{
		channels:      channels,
		scheduler:     scheduler,
		source:        source,
		poster:        poster,
		timesliceSize: timesliceSize,
		overlap:       overlap,
		completed:     make(map[uint64]struct{}),
		extents:       make(map[uint64]tsExtent),
		minAckedData:  minAckedData,
		minAckedDesc:  minAckedDesc,
		stats:         stats,
	}
}

// SetMaxTimeslice bounds the run to timeslices [0, max) (spec §4.5
// finalization: "once ts > max_timeslice_number").
func (b *Builder) SetMaxTimeslice(max uint64) { b.maxTimeslice = max }

// RequestAbort requests an immediate finalize-with-abort on every channel.
func (b *Builder) RequestAbort() { b.abortRequested = true }

// NextTimeslice exposes the next timeslice number to be attempted, for
// diagnostics/tests.
func (b *Builder) NextTimeslice() uint64 { return b.nextTimeslice }

// AckedData/AckedDesc expose the builder's confirmed-delivered byte/desc
// counters, for diagnostics/tests.
func (b *Builder) AckedData() uint64 { return b.ackedData }
func (b *Builder) AckedDesc() uint64 { return b.ackedDesc }

// MaybeSend implements spec §4.5 step 1: if the source has produced enough
// microslices for the next timeslice and the assigned channel has room, post
// the transfer. Returns sent=true if a timeslice was posted this call;
// sent=false with err=nil means "nothing to do yet", a normal steady-state
// outcome the scheduler tick should not treat as an error.
func (b *Builder) MaybeSend() (sent bool, err error) {
	if b.abortRequested {
		return false, nil
	}

	if len(b.pendingRedistribute) > 0 {
		ts := b.pendingRedistribute[0]
		if err := b.sendTimeslice(ts); err != nil {
			if errors.Is(err, channel.ErrBackpressureFull) {
				return false, nil
			}
			return false, errors.Wrapf(err, "input: resend redistributed timeslice %d", ts)
		}
		b.pendingRedistribute = b.pendingRedistribute[1:]
		return true, nil
	}

	if b.maxTimeslice > 0 && b.nextTimeslice >= b.maxTimeslice {
		return false, nil
	}

	ts := b.nextTimeslice
	endDesc := ts*b.timesliceSize + b.timesliceSize + b.overlap
	if b.source.DescBuffer().WriteIndex() < endDesc {
		return false, nil // not enough microslices produced yet
	}

	if err := b.sendTimeslice(ts); err != nil {
		if errors.Is(err, channel.ErrBackpressureFull) {
			return false, nil
		}
		return false, errors.Wrapf(err, "input: send timeslice %d", ts)
	}
	b.nextTimeslice++
	return true, nil
}

// sendTimeslice packages timeslice ts out of the source's rings and hands it
// to whichever channel the scheduler currently assigns, recording the extent
// needed to fold its eventual completion into acked_data/acked_desc. Shared
// by MaybeSend's normal forward path and its redistribution-drain path, so a
// resent timeslice is indistinguishable on the wire from a first send.
func (b *Builder) sendTimeslice(ts uint64) error {
	startDesc := ts * b.timesliceSize
	endDesc := startDesc + b.timesliceSize + b.overlap

	descBuf := b.source.DescBuffer()
	first := descBuf.At(startDesc)
	last := descBuf.At(endDesc - 1)
	startByte := first.Offset
	endByte := last.Offset + uint64(last.Size)

	cn := b.scheduler.Assign(ts)
	if cn < 0 || cn >= len(b.channels) {
		return errors.Errorf("input: scheduler assigned out-of-range channel %d for ts=%d", cn, ts)
	}
	ch := b.channels[cn]

	contentBytes := readBytes(b.source.DataBuffer(), startByte, endByte-startByte)
	descPayload := wire.TimesliceComponentDescriptor{
		TsNum:          ts,
		Offset:         startByte,
		Size:           endByte - startByte,
		NumMicroslices: b.timesliceSize,
	}
	descBytes, err := descPayload.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "input: marshal timeslice component descriptor")
	}

	if err := ch.SendTimeslice(b.poster, descBytes, contentBytes, ts); err != nil {
		return errors.Wrapf(err, "channel %d", cn)
	}

	b.extents[ts] = tsExtent{channelIdx: cn, descEnd: endDesc, dataEnd: endByte}
	if b.stats != nil {
		b.stats.RecordSend(endByte-startByte, 1)
	}
	return nil
}

// RedistributeFailed implements spec §4.7's rewind/reassign step once a
// heartbeat failure decision against channel failedIdx has been reached:
// every timeslice already sent to it with ts >= trigger is treated as never
// sent -- its extent is dropped (so a late completion from the dead channel
// can no longer advance acked_data/acked_desc) and it is queued for resend,
// oldest first, through whichever channel the scheduler now assigns
// (failedIdx itself having just been excluded via the Scheduler's own
// MarkFailed). The caller is responsible for excluding failedIdx from the
// scheduler before or after calling this -- order does not matter, since
// resends only happen on a later MaybeSend call.
func (b *Builder) RedistributeFailed(failedIdx int, trigger uint64) {
	var rewound []uint64
	for ts, ext := range b.extents {
		if ext.channelIdx != failedIdx || ts < trigger {
			continue
		}
		rewound = append(rewound, ts)
		delete(b.extents, ts)
		delete(b.completed, ts)
	}
	if len(rewound) == 0 {
		return
	}
	sort.Slice(rewound, func(i, j int) bool { return rewound[i] < rewound[j] })
	log.Printf("input: redistributing %d timeslice(s) >= %d away from failed channel %d", len(rewound), trigger, failedIdx)
	b.pendingRedistribute = append(b.pendingRedistribute, rewound...)
}

// OnWriteDescComplete implements the ID_WRITE_DESC half of spec §4.5 step 2:
// fold a single channel's completed write into pendingWrites and into the
// builder-wide completion order, advancing acked_desc/acked_data only once
// every lower-numbered timeslice has also completed.
func (b *Builder) OnWriteDescComplete(channelIdx int, ts uint64) {
	if channelIdx >= 0 && channelIdx < len(b.channels) {
		b.channels[channelIdx].OnCompleteWrite()
	}

	if ts != b.acked {
		b.completed[ts] = struct{}{}
		return
	}
	b.acked++
	for {
		if _, ok := b.completed[b.acked]; !ok {
			break
		}
		delete(b.completed, b.acked)
		b.acked++
	}

	// acked now holds one past the highest contiguously-completed
	// timeslice; fold every extent up to it into acked_data/acked_desc.
	for t := ts; t < b.acked; t++ {
		if ext, ok := b.extents[t]; ok {
			if ext.dataEnd > b.ackedData {
				b.ackedData = ext.dataEnd
			}
			if ext.descEnd > b.ackedDesc {
				b.ackedDesc = ext.descEnd
			}
			delete(b.extents, t)
		}
	}
}

// SyncSourceIfDue implements spec §4.5 step 3: once acked_data/acked_desc
// have advanced by at least the configured minimum since the last publish,
// push the source's read indexes forward and call Proceed.
func (b *Builder) SyncSourceIfDue() bool {
	dataDue := b.ackedData >= b.cachedAckedData+b.minAckedData
	descDue := b.ackedDesc >= b.cachedAckedDesc+b.minAckedDesc
	if !dataDue && !descDue {
		return false
	}

	if err := b.source.DataBuffer().SetReadIndex(b.ackedData); err != nil {
		log.Printf("input: sync_source: data read_index rewind to %d rejected: %v", b.ackedData, err)
	}
	if err := b.source.DescBuffer().SetReadIndex(b.ackedDesc); err != nil {
		log.Printf("input: sync_source: desc read_index rewind to %d rejected: %v", b.ackedDesc, err)
	}
	b.source.Proceed()

	b.cachedAckedData = b.ackedData
	b.cachedAckedDesc = b.ackedDesc
	return true
}

// Finalize tells every channel to finalize (spec §4.5 finalization:
// "once ts > max_timeslice_number or abort is requested, every InputChannel
// is told to finalize").
func (b *Builder) Finalize() {
	if b.finalizeStarted {
		return
	}
	b.finalizeStarted = true
	for _, ch := range b.channels {
		ch.Finalize(b.abortRequested)
	}
}

// Done reports whether every channel has reached InputDone, the builder's
// exit condition (spec §4.5: "once every channel's final status has been
// acknowledged, the builder exits its loop").
func (b *Builder) Done() bool {
	if !b.finalizeStarted {
		return false
	}
	for _, ch := range b.channels {
		if ch.State() != channel.InputDone && ch.State() != channel.InputDisconnected {
			return false
		}
	}
	return true
}

// readBytes copies length bytes starting at the absolute offset start out
// of a managed byte ring, wrapping through ring.Buffer.At exactly as the
// transport's remote write would have addressed them (spec §4.1).
func readBytes(buf *ring.Managed[byte], start, length uint64) []byte {
	out := make([]byte, length)
	for i := uint64(0); i < length; i++ {
		out[i] = *buf.At(start + i)
	}
	return out
}
