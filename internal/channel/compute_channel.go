package channel

import (
	"fmt"

	"github.com/cbm-fles/flesnet-sub001/internal/credit"
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// ComputeState is the lifecycle state of a ComputeChannel (spec §4.3).
type ComputeState int

const (
	ComputeConnecting ComputeState = iota
	ComputeEstablished
	ComputeDraining
	ComputeDone
	ComputeFailed
)

func (s ComputeState) String() string {
	switch s {
	case ComputeConnecting:
		return "Connecting"
	case ComputeEstablished:
		return "Established"
	case ComputeDraining:
		return "Draining"
	case ComputeDone:
		return "Done"
	case ComputeFailed:
		return "Failed"
	default:
		return fmt.Sprintf("ComputeState(%d)", int(s))
	}
}

// ComputeChannel is the per-source receiver endpoint on the compute side
// (spec §4.3). The compute node owns the destination memory (DataRing,
// DescRing) that the input node writes into; inc_ack consults DescRing to
// translate a descriptor count into the byte offset of the last
// fully-consumed descriptor.
type ComputeChannel struct {
	Index int // this channel's index among a ComputeBuilder's N_in channels

	Window   *credit.Window
	DataRing *ring.Buffer[byte]
	DescRing *ring.Buffer[wire.TimesliceComponentDescriptor]

	state ComputeState
}

// NewComputeChannel creates a ComputeChannel over the given descriptor ring,
// whose size exponent fixes desc_cap, plus a freshly allocated data ring of
// dataSizeExp bytes (data_cap) -- the two destination buffers a real
// Transport's one-sided writes would target directly (spec §4.3, §6).
func NewComputeChannel(index int, dataSizeExp uint32, descRing *ring.Buffer[wire.TimesliceComponentDescriptor]) *ComputeChannel {
	return &ComputeChannel{
		Index:    index,
		Window:   credit.New(dataSizeExp, descRing.SizeExp()),
		DataRing: ring.New[byte](dataSizeExp),
		DescRing: descRing,
	}
}

// WriteContent copies payload into DataRing starting at the given byte
// offset, standing in for the compute node's passive role in a one-sided
// content write (spec §4.3: the compute node owns this memory, the input
// node writes into it). The caller (the transport's message-dispatch loop)
// is responsible for ensuring offset+len(payload) never spans DataRing's
// wrap boundary, exactly as the sender's splitAcrossWrap guarantees.
func (c *ComputeChannel) WriteContent(offset uint64, payload []byte) {
	for i, b := range payload {
		*c.DataRing.At(offset + uint64(i)) = b
	}
}

// WriteDescriptor stores desc at the given ring slot (the sender's
// wp.Desc-at-time-of-send, already reduced mod desc_cap), making it visible
// to the red-lantern algorithm's desc_ring[i].at(tpos) lookups (spec §4.3,
// §4.4).
func (c *ComputeChannel) WriteDescriptor(slot uint64, desc wire.TimesliceComponentDescriptor) {
	*c.DescRing.At(slot) = desc
}

// State returns the channel's current lifecycle state.
func (c *ComputeChannel) State() ComputeState { return c.state }

// MarkEstablished transitions Connecting -> Established on a successful
// connect handshake.
func (c *ComputeChannel) MarkEstablished() {
	if c.state == ComputeConnecting {
		c.state = ComputeEstablished
	}
}

// MarkFailed transitions any state to Failed -- used by
// compute.Builder.OnChannelFailed when the transport reports this channel's
// peer disconnected (spec §4.4 failure semantics).
func (c *ComputeChannel) MarkFailed() { c.state = ComputeFailed }

// OnWPRecv updates the local cn_wp snapshot from a peer status message; this
// is what feeds the red-lantern update (spec §4.3, §4.4).
func (c *ComputeChannel) OnWPRecv(newWP wire.ComputeNodeBufferPosition) {
	c.Window.SetWP(newWP)
	if c.state == ComputeConnecting {
		c.state = ComputeEstablished
	}
}

// OnFinalStatus transitions Established -> Draining on receipt of a final
// InputChannelStatusMessage.
func (c *ComputeChannel) OnFinalStatus() {
	if c.state == ComputeEstablished {
		c.state = ComputeDraining
	}
}

// OnFinalAckConfirmed transitions Draining -> Done once the final
// ComputeNodeStatusMessage has been confirmed sent to the peer.
func (c *ComputeChannel) OnFinalAckConfirmed() {
	if c.state == ComputeDraining {
		c.state = ComputeDone
	}
}

// IncAck sets cn_ack.desc = newAckDesc and derives cn_ack.data from the last
// fully-consumed descriptor's offset+size (spec §4.3):
//
//	cn_ack.data = desc_ring[(new_ack_desc-1) & mask].offset + .size
//
// When newAckDesc is 0, cn_ack.data is also 0 (nothing consumed yet).
func (c *ComputeChannel) IncAck(newAckDesc uint64) {
	ack := wire.ComputeNodeBufferPosition{Desc: newAckDesc}
	if newAckDesc > 0 {
		last := c.DescRing.At(newAckDesc - 1)
		ack.Data = last.Offset + last.Size
	}
	c.Window.SetAck(ack)
}

// PostAck returns the current cn_ack for transmission to the peer via a
// ComputeNodeStatusMessage (spec §4.3). The caller is responsible for
// actually sending it and, on success, calling MarkAckSent.
func (c *ComputeChannel) PostAck() wire.ComputeNodeBufferPosition {
	return c.Window.Ack()
}

// MarkAckSent records the ack value just transmitted as the remote-known
// value, mirroring InputChannel's remote_ack bookkeeping.
func (c *ComputeChannel) MarkAckSent(ack wire.ComputeNodeBufferPosition) {
	c.Window.MarkRemoteAckSent(ack)
}

// WP returns the last snapshot of the peer's write pointer.
func (c *ComputeChannel) WP() wire.ComputeNodeBufferPosition { return c.Window.WP() }
