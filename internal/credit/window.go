// Package credit implements the 64-bit write/ack/cached-ack pointer
// arithmetic that gates how far an InputChannel may get ahead of a
// ComputeChannel's consumption (spec §3, §4.2). The shape mirrors smux's
// per-stream peerConsumed/peerWindow credit (vendor smux/stream.go,
// frame.go: cmdUPD) generalized from a single byte-window to the two
// independent item/byte windows (desc, data) spec §3 requires.
package credit

import "github.com/cbm-fles/flesnet-sub001/internal/wire"

// Window tracks one channel's remote capacities and the three pointers that
// gate how much further it may post before the receiver acknowledges
// consumption: cn_wp (local, next-to-write), cn_ack (local mirror of the
// receiver's read pointer), and remote_ack (the last cn_ack value actually
// sent over the wire, i.e. what the sender believes the receiver knows).
type Window struct {
	dataCap uint64 // 1 << k_d
	descCap uint64 // 1 << k_c

	cnWP      wire.ComputeNodeBufferPosition
	cnAck     wire.ComputeNodeBufferPosition
	remoteAck wire.ComputeNodeBufferPosition
}

// New creates a Window for a peer advertising 1<<dataSizeExp bytes of data
// capacity and 1<<descSizeExp items of descriptor capacity.
func New(dataSizeExp, descSizeExp uint32) *Window {
	return &Window{
		dataCap: 1 << dataSizeExp,
		descCap: 1 << descSizeExp,
	}
}

// WP returns the current local write pointer.
func (w *Window) WP() wire.ComputeNodeBufferPosition { return w.cnWP }

// Ack returns the current local mirror of the receiver's ack pointer.
func (w *Window) Ack() wire.ComputeNodeBufferPosition { return w.cnAck }

// DataCap and DescCap expose the negotiated remote capacities.
func (w *Window) DataCap() uint64 { return w.dataCap }
func (w *Window) DescCap() uint64 { return w.descCap }

// HasCredit reports whether both a dataBytes-sized write and a
// descItems-sized descriptor append remain within the outstanding window:
// (cap - (cn_wp - cn_ack)) >= requested, for both data and desc.
func (w *Window) HasCredit(dataBytes, descItems uint64) bool {
	dataOutstanding := w.cnWP.Data - w.cnAck.Data
	descOutstanding := w.cnWP.Desc - w.cnAck.Desc
	if w.dataCap-dataOutstanding < dataBytes {
		return false
	}
	if w.descCap-descOutstanding < descItems {
		return false
	}
	return true
}

// SkipRequired returns the number of pad bytes needed so a dataBytes write
// does not span the remote data-ring wrap boundary: data_cap minus the
// tail position, when the write would cross it, else 0 (spec §4.2).
func (w *Window) SkipRequired(dataBytes uint64) uint64 {
	tailPos := w.cnWP.Data & (w.dataCap - 1)
	remaining := w.dataCap - tailPos
	if dataBytes > remaining {
		return remaining
	}
	return 0
}

// Advance moves the local write pointer forward by dataBytes/descItems after
// a successful post. It never checks credit itself -- callers must have
// already verified HasCredit (and applied any SkipRequired padding) before
// calling Advance, same as InputChannel.send_timeslice precondition in §4.2.
func (w *Window) Advance(dataBytes, descItems uint64) {
	w.cnWP.Data += dataBytes
	w.cnWP.Desc += descItems
}

// AbsorbAck folds a peer's reported cn_ack into the local mirror. The ack
// pointer only ever moves forward; spec invariants never require this to be
// monotone-enforced defensively since InputChannel.on_status_recv is the
// sole caller and the compute side only ever reports non-decreasing acks,
// but we clamp here anyway since acks arrive over an unordered-completion
// transport and a stale duplicate must not roll credit backward.
func (w *Window) AbsorbAck(ack wire.ComputeNodeBufferPosition) {
	if ack.Data > w.cnAck.Data {
		w.cnAck.Data = ack.Data
	}
	if ack.Desc > w.cnAck.Desc {
		w.cnAck.Desc = ack.Desc
	}
}

// RemoteAck returns the last cn_ack value actually sent to the peer.
func (w *Window) RemoteAck() wire.ComputeNodeBufferPosition { return w.remoteAck }

// MarkRemoteAckSent records that cn_ack (receiver side) has just been sent
// to the peer as of this call.
func (w *Window) MarkRemoteAckSent(ack wire.ComputeNodeBufferPosition) {
	w.remoteAck = ack
}

// SetAck directly sets the local ack pointer -- used on the receiver side
// (ComputeChannel.inc_ack) where cn_ack is authoritative rather than a
// mirror of a remote report.
func (w *Window) SetAck(ack wire.ComputeNodeBufferPosition) {
	w.cnAck = ack
}

// SetWP directly sets the local write-pointer snapshot -- used on the
// receiver side (ComputeChannel.on_wp_recv) where cn_wp is a snapshot of the
// peer's reported position rather than something this side advances.
func (w *Window) SetWP(wp wire.ComputeNodeBufferPosition) {
	w.cnWP = wp
}

// InRange reports whether the current cn_wp/cn_ack distance for both data
// and desc remains within capacity -- the sender-side safety invariant from
// spec §8 ("cn_wp - cn_ack <= {data_cap, desc_cap}").
func (w *Window) InRange() bool {
	return w.cnWP.Data-w.cnAck.Data <= w.dataCap && w.cnWP.Desc-w.cnAck.Desc <= w.descCap
}
