package transport

import (
	"sync"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// Memory is an in-process Transport backed by Go channels instead of a real
// socket, standing in for the kcp/smux substrate in tests that only need the
// Transport contract (FIFO completions, tagged two-sided messages, connect
// handshake) without a real network. Grounded on the same one-pair-of-pipes
// shape vendor/.../smux's own test harness uses to connect two in-process
// Sessions (vendor github.com/xtaci/smux/session_test.go: net.Pipe-backed
// sessions) generalized from a raw byte pipe to this package's typed
// Completion/TaggedMessage/ConnEvent channels.
type Memory struct {
	mu       sync.Mutex
	channels map[int]*memoryChannel

	peer *Memory // the other end of the pair

	completions chan Completion
	messages    chan TaggedMessage
	events      chan ConnEvent

	connectReqs chan memoryConnectReq
}

type memoryConnectReq struct {
	index     int
	localInfo []byte
	reply     chan []byte
}

// NewMemoryPair creates two connected Memory transports, a and b, each able
// to Connect/Accept channels against the other.
func NewMemoryPair() (a, b *Memory) {
	a = newMemory()
	b = newMemory()
	a.peer = b
	b.peer = a
	return a, b
}

func newMemory() *Memory {
	return &Memory{
		channels:    make(map[int]*memoryChannel),
		completions: make(chan Completion, 256),
		messages:    make(chan TaggedMessage, 256),
		events:      make(chan ConnEvent, 16),
		connectReqs: make(chan memoryConnectReq, 16),
	}
}

// Connect implements Transport.Connect by handing localInfo to the peer's
// Accept call and blocking for its reply.
func (m *Memory) Connect(channelIndex int, localInfo []byte) ([]byte, Channel, error) {
	reply := make(chan []byte, 1)
	m.peer.connectReqs <- memoryConnectReq{index: channelIndex, localInfo: localInfo, reply: reply}
	remoteInfo := <-reply

	ch := &memoryChannel{index: channelIndex, owner: m}
	m.mu.Lock()
	m.channels[channelIndex] = ch
	m.mu.Unlock()

	m.events <- ConnEvent{ChannelIndex: channelIndex, Kind: EventConnected}
	return remoteInfo, ch, nil
}

// Accept implements Transport.Accept by waiting for a Connect call from the
// peer and replying with localInfo.
func (m *Memory) Accept(localInfo []byte) ([]byte, Channel, error) {
	req := <-m.connectReqs
	req.reply <- localInfo

	ch := &memoryChannel{index: req.index, owner: m}
	m.mu.Lock()
	m.channels[req.index] = ch
	m.mu.Unlock()

	m.events <- ConnEvent{ChannelIndex: req.index, Kind: EventConnected}
	return req.localInfo, ch, nil
}

func (m *Memory) Completions() <-chan Completion { return m.completions }
func (m *Memory) Messages() <-chan TaggedMessage { return m.messages }
func (m *Memory) Events() <-chan ConnEvent       { return m.events }

// Close reports a Disconnected event for every channel on this side.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx := range m.channels {
		m.events <- ConnEvent{ChannelIndex: idx, Kind: EventDisconnected}
	}
	return nil
}

// memoryChannel is one endpoint's view of a connected channel pair.
type memoryChannel struct {
	index int
	owner *Memory
}

func (c *memoryChannel) Index() int { return c.index }

// PostWrite delivers w's payload to the peer as a tagged message (so a
// compute-side test fixture can observe it) and immediately completes it
// locally if w.Notify is set, matching the one-sided-write/selective-
// completion contract of spec §6.
func (c *memoryChannel) PostWrite(w channel.WriteRequest) error {
	c.owner.peer.messages <- TaggedMessage{ChannelIndex: c.index, Tag: w.Kind, Payload: w.Bytes, WRID: w.WRID, TargetOffset: w.TargetOffset}
	if w.Notify {
		c.owner.completions <- Completion{WRID: w.WRID, Status: StatusOK, Bytes: len(w.Bytes)}
	}
	return nil
}

// PostSend delivers payload to the peer's Messages channel and completes
// locally (two-sided sends always notify, unlike one-sided writes).
func (c *memoryChannel) PostSend(tag wire.RequestKind, payload []byte) error {
	c.owner.peer.messages <- TaggedMessage{ChannelIndex: c.index, Tag: tag, Payload: payload}
	c.owner.completions <- Completion{WRID: wire.EncodeWRID(0, uint16(c.index), tag), Status: StatusOK, Bytes: len(payload)}
	return nil
}
