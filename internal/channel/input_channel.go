// Package channel implements the per-destination sender (InputChannel) and
// per-source receiver (ComputeChannel) endpoints of spec §4.2/§4.3. Both are
// values, not base-class instances with virtual callbacks -- dispatch is by
// an explicit wr_id decode in the completion loop (see internal/transport),
// recast per spec §9 from the original's on_complete_send/on_complete_recv
// virtual methods.
package channel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/cbm-fles/flesnet-sub001/internal/credit"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// ErrBackpressureFull is returned by SendTimeslice when either the credit
// window or the in-flight write budget is exhausted. It is advisory, not
// fatal (spec §4.2, §7): callers retry on the next scheduler tick.
var ErrBackpressureFull = errors.New("channel: backpressure full")

// WriteRequest is one one-sided write posted against a Poster. Splitting a
// content block across the destination ring's wrap boundary produces two
// WriteRequests: WriteData up to the boundary, then WriteDataWrap from
// offset 0.
type WriteRequest struct {
	WRID         uint64
	Kind         wire.RequestKind
	Fence        bool // FENCE ordering: payload strictly precedes descriptor visibility
	Notify       bool // only the final write of a send_timeslice carries a completion
	Bytes        []byte
	TargetOffset uint64 // byte or item offset into the remote ring this write targets
}

// Poster is the minimal capability SendTimeslice needs from a Transport: the
// ability to queue a one-sided write. Kept minimal and local to this package
// so channel has no dependency on internal/transport (which depends on
// channel instead), avoiding the cyclic pointer graphs spec §9 flags.
type Poster interface {
	PostWrite(WriteRequest) error
}

// InputState is the lifecycle state of an InputChannel.
type InputState int

const (
	InputConnecting InputState = iota
	InputActive
	InputFinalizing
	InputDone
	InputDisconnected
)

// InputChannel is the per-destination sender endpoint on the input side
// (spec §4.2).
type InputChannel struct {
	Index uint16 // this channel's index within its owning InputBuilder

	Window *credit.Window

	RemoteInfo wire.ComputeNodeInfo

	state InputState

	ourTurn         bool
	finalizeReq     bool
	abortReq        bool
	pendingWrites   uint32
	maxPendingWrites uint32

	descRingSize uint64 // 1<<desc_size_exp of the remote desc ring, for wrap splitting
}

// NewInputChannel creates an InputChannel gated by the given remote
// capacities, with maxPendingWrites concurrent one-sided writes allowed
// in flight (spec §4.5 InputChannel.pending_writes).
func NewInputChannel(index uint16, dataSizeExp, descSizeExp uint32, maxPendingWrites uint32) *InputChannel {
	return &InputChannel{
		Index:            index,
		Window:           credit.New(dataSizeExp, descSizeExp),
		maxPendingWrites: maxPendingWrites,
		descRingSize:     1 << descSizeExp,
		ourTurn:          true, // sender speaks first per the ping-pong protocol
	}
}

// State returns the channel's current lifecycle state.
func (c *InputChannel) State() InputState { return c.state }

// HasCredit reports whether a send_timeslice of the given sizes would fit
// within the remote window (spec §4.2).
func (c *InputChannel) HasCredit(dataBytes, descItems uint64) bool {
	return c.Window.HasCredit(dataBytes, descItems)
}

// SkipRequired reports the pad bytes needed before a dataBytes content write
// (spec §4.2).
func (c *InputChannel) SkipRequired(dataBytes uint64) uint64 {
	return c.Window.SkipRequired(dataBytes)
}

// SendTimeslice issues one or two one-sided writes of contentBytes (after
// any SkipRequired padding; split at the data-ring wrap), then one fenced
// small one-sided write of descBytes (a TimesliceComponentDescriptor) to the
// correct slot in the remote desc ring. No separate microslice-descriptor
// block is written: contentBytes is the only data-ring payload. Only the
// final write carries a completion notification (WriteDesc). Preconditions: HasCredit(totalBytes, 1) and
// pendingWrites < maxPendingWrites (spec §4.2).
func (c *InputChannel) SendTimeslice(p Poster, descBytes, contentBytes []byte, tsNum uint64) error {
	if c.state != InputActive && c.state != InputConnecting {
		return errors.Wrapf(ErrBackpressureFull, "channel %d not active (state=%d)", c.Index, c.state)
	}
	totalDescBytes := uint64(len(descBytes))
	totalContentBytes := uint64(len(contentBytes))
	pad := c.Window.SkipRequired(totalContentBytes)

	if !c.Window.HasCredit(pad+totalContentBytes, 1) {
		return errors.Wrapf(ErrBackpressureFull, "channel %d: no data/desc credit for %d/%d bytes", c.Index, totalContentBytes, totalDescBytes)
	}
	if c.pendingWrites >= c.maxPendingWrites {
		return errors.Wrapf(ErrBackpressureFull, "channel %d: %d writes already in flight", c.Index, c.pendingWrites)
	}

	wp := c.Window.WP()

	// content block, split at the data-ring wrap boundary
	contentOffset := wp.Data + pad
	requests := splitAcrossWrap(contentBytes, contentOffset, c.Window.DataCap(), wire.WriteData, wire.WriteDataWrap)
	for i := range requests {
		requests[i].WRID = wire.EncodeWRID(tsNum, c.Index, requests[i].Kind)
	}

	// final fenced descriptor write: exactly one slot in the remote desc ring
	descSlot := wp.Desc % c.descRingSize
	descReq := WriteRequest{
		WRID:         wire.EncodeWRID(tsNum, c.Index, wire.WriteDesc),
		Kind:         wire.WriteDesc,
		Fence:        true,
		Notify:       true,
		Bytes:        descBytes,
		TargetOffset: descSlot,
	}
	requests = append(requests, descReq)

	for i := range requests {
		if err := p.PostWrite(requests[i]); err != nil {
			return errors.Wrapf(err, "channel %d: post write %s failed", c.Index, requests[i].Kind)
		}
	}

	c.pendingWrites++
	c.Window.Advance(pad+totalContentBytes, 1)
	return nil
}

// splitAcrossWrap produces 1 or 2 WriteRequests covering data written
// starting at offset into a data_cap-sized remote ring, splitting the copy
// at the wrap boundary exactly as ManagedRingBuffer.append_slice would
// (spec §4.1).
func splitAcrossWrap(data []byte, offset, dataCap uint64, kind, wrapKind wire.RequestKind) []WriteRequest {
	if len(data) == 0 {
		return nil
	}
	start := offset & (dataCap - 1)
	firstChunk := dataCap - start
	if firstChunk >= uint64(len(data)) {
		return []WriteRequest{{Kind: kind, Bytes: data, TargetOffset: start}}
	}
	return []WriteRequest{
		{Kind: kind, Bytes: data[:firstChunk], TargetOffset: start},
		{Kind: wrapKind, Bytes: data[firstChunk:], TargetOffset: 0},
	}
}

// TrySyncPositions posts a status message carrying the current cn_wp if it
// is this channel's turn to speak, clearing ourTurn (spec §4.2 ping-pong).
// The caller supplies the send function; TrySyncPositions only decides
// whether to call it and updates the turn flag.
func (c *InputChannel) TrySyncPositions(send func(wire.InputChannelStatusMessage) error) (bool, error) {
	if !c.ourTurn {
		return false, nil
	}
	msg := wire.InputChannelStatusMessage{WP: c.Window.WP()}
	if c.finalizeReq && (c.Window.WP() == c.Window.Ack() || c.abortReq) {
		msg.Final = true
		msg.Abort = c.abortReq
	}
	if err := send(msg); err != nil {
		return false, err
	}
	c.ourTurn = false
	if msg.Final {
		c.state = InputDone
	}
	return true, nil
}

// Finalize marks the channel for finalization. The next status message
// will set final=true (and abort=abort) once cn_wp==cn_ack or abort is set
// (spec §4.2).
func (c *InputChannel) Finalize(abort bool) {
	c.finalizeReq = true
	c.abortReq = abort
	if c.state == InputConnecting || c.state == InputActive {
		c.state = InputFinalizing
	}
}

// OnCompleteWrite decrements pendingWrites once a posted write's completion
// has been observed.
func (c *InputChannel) OnCompleteWrite() {
	if c.pendingWrites > 0 {
		c.pendingWrites--
	}
}

// OnStatusRecv absorbs msg.ack into cn_ack. If msg.final, the channel is
// marked done; otherwise ourTurn is set so the next scheduler tick replies
// (spec §4.2).
func (c *InputChannel) OnStatusRecv(msg wire.ComputeNodeStatusMessage) {
	c.Window.AbsorbAck(msg.Ack)
	if msg.Final {
		c.state = InputDone
		return
	}
	c.ourTurn = true
}

// MarkConnected transitions a newly-handshaked channel to Active and
// records the peer's advertised remote keys/index.
func (c *InputChannel) MarkConnected(info wire.ComputeNodeInfo) {
	c.RemoteInfo = info
	c.state = InputActive
}

// MarkDisconnected is the terminal transition on a transport-level failure
// of this channel (spec §4.2 failure conditions).
func (c *InputChannel) MarkDisconnected() {
	c.state = InputDisconnected
}

// PendingWrites exposes the in-flight write count for diagnostics/tests.
func (c *InputChannel) PendingWrites() uint32 { return c.pendingWrites }

// OurTurn exposes the ping-pong flag for diagnostics/tests.
func (c *InputChannel) OurTurn() bool { return c.ourTurn }

func (c InputState) String() string {
	switch c {
	case InputConnecting:
		return "Connecting"
	case InputActive:
		return "Active"
	case InputFinalizing:
		return "Finalizing"
	case InputDone:
		return "Done"
	case InputDisconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("InputState(%d)", int(c))
	}
}
