// Package transport implements the Transport trait of spec §6: posting
// one-sided writes and two-sided tagged messages, delivering completions in
// FIFO order per channel, and reporting connection-lifecycle events. The
// verbs/libfabric one-sided RDMA write of the original is realized here as a
// small framed message over a multiplexed reliable-UDP stream (kcp-go/v5 +
// smux, see kcp_transport.go) -- every WriteRequest/two-sided send still
// becomes exactly one ordered, reliably-delivered frame, preserving the
// "selective completion, FIFO per channel" contract the builders depend on.
package transport

import (
	"github.com/pkg/errors"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// Error kinds of spec §7 not already carried by a narrower package.
var (
	ErrTransportFailed    = errors.New("transport: connection failed")
	ErrConnectionRejected = errors.New("transport: connection rejected by peer")
	ErrProtocolViolation  = errors.New("transport: protocol violation")
	ErrAllocationFailed   = errors.New("transport: buffer allocation failed")
	ErrHeartbeatTimeout   = errors.New("transport: heartbeat timeout")
	ErrWorkerAbsent       = errors.New("transport: worker absent")
	ErrAbortRequested     = errors.New("transport: abort requested")
)

// CompletionStatus is the outcome of a posted write or send.
type CompletionStatus int

const (
	StatusOK CompletionStatus = iota
	StatusError
)

// Completion is one (wr_id, status, bytes) tuple (spec §6).
type Completion struct {
	WRID   uint64
	Status CompletionStatus
	Bytes  int
	Err    error
}

// ConnEventKind enumerates the connection-lifecycle signals a Transport must
// be able to raise (spec §6).
type ConnEventKind int

const (
	EventConnected ConnEventKind = iota
	EventDisconnected
	EventRejected
	EventUnreachable
	EventRouteError
	EventAddrError
)

func (k ConnEventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventDisconnected:
		return "Disconnected"
	case EventRejected:
		return "Rejected"
	case EventUnreachable:
		return "Unreachable"
	case EventRouteError:
		return "RouteError"
	case EventAddrError:
		return "AddrError"
	default:
		return "Unknown"
	}
}

// ConnEvent is delivered once per channel lifecycle transition.
type ConnEvent struct {
	ChannelIndex int
	Kind         ConnEventKind
	Err          error
}

// TaggedMessage is a two-sided send/recv payload against a pre-registered
// memory region (spec §6). Tag distinguishes message classes (status,
// heartbeat, finalize) sharing one channel's control path. For a relayed
// one-sided write (Tag one of wire.WriteData/WriteDataWrap/WriteDesc), WRID
// and TargetOffset carry the sender's wr_id and destination ring offset so
// the receiver can place Payload into the right slot of its local data/desc
// ring (spec §4.3); for a genuine two-sided send both are zero.
type TaggedMessage struct {
	ChannelIndex int
	Tag          wire.RequestKind
	Payload      []byte
	WRID         uint64
	TargetOffset uint64
}

// Channel is one established transport endpoint: a Poster for one-sided
// writes plus the ability to exchange tagged two-sided messages. It
// satisfies channel.Poster directly so an InputChannel can post writes
// straight through it.
type Channel interface {
	channel.Poster

	// PostSend issues a two-sided tagged send (spec §6).
	PostSend(tag wire.RequestKind, payload []byte) error

	Index() int
}

// Transport is the capability surface the builders require of the
// underlying fabric (spec §6 "Transport trait").
type Transport interface {
	// Connect establishes a new channel, exchanging localInfo (up to 255
	// bytes) as private connect data and returning the peer's private data.
	Connect(channelIndex int, localInfo []byte) (remoteInfo []byte, ch Channel, err error)

	// Accept blocks until a peer connects a new channel, exchanging
	// localInfo as this side's private connect data.
	Accept(localInfo []byte) (remoteInfo []byte, ch Channel, err error)

	// Completions delivers one-sided write completions in FIFO order per
	// channel (spec §6).
	Completions() <-chan Completion

	// Messages delivers received two-sided tagged messages.
	Messages() <-chan TaggedMessage

	// Events delivers connection-lifecycle signals (spec §6).
	Events() <-chan ConnEvent

	Close() error
}
