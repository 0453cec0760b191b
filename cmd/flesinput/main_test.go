package main

import (
	"testing"
	"time"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/heartbeat"
	"github.com/cbm-fles/flesnet-sub001/internal/input"
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/transport"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

// emptySource is a Source with nothing produced, enough to construct an
// input.Builder for tests that only exercise sendHeartbeats' scheduling side
// effects and never call MaybeSend.
type emptySource struct {
	desc *ring.Managed[wire.MicrosliceDescriptor]
	data *ring.Managed[byte]
}

func newEmptySource() *emptySource {
	return &emptySource{desc: ring.NewManaged[wire.MicrosliceDescriptor](4), data: ring.NewManaged[byte](10)}
}

func (s *emptySource) DescBuffer() *ring.Managed[wire.MicrosliceDescriptor] { return s.desc }
func (s *emptySource) DataBuffer() *ring.Managed[byte]                     { return s.data }
func (s *emptySource) Proceed()                                            {}

func TestSplitAddrsTrimsAndDropsEmpty(t *testing.T) {
	got := splitAddrs(" 10.0.0.1:9000 , 10.0.0.2:9000,,10.0.0.3:9000 ")
	want := []string{"10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000"}
	if len(got) != len(want) {
		t.Fatalf("expected %d addresses, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("addr %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitAddrsEmptyInput(t *testing.T) {
	if got := splitAddrs("   "); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

// fakeLink is a minimal transport.Channel recording every write it receives,
// standing in for a real kcp-backed channel in tests that only need to
// observe routing decisions.
type fakeLink struct {
	index  int
	writes []channel.WriteRequest
	sends  []wire.RequestKind
}

func (f *fakeLink) Index() int { return f.index }
func (f *fakeLink) PostWrite(w channel.WriteRequest) error {
	f.writes = append(f.writes, w)
	return nil
}
func (f *fakeLink) PostSend(tag wire.RequestKind, payload []byte) error {
	f.sends = append(f.sends, tag)
	return nil
}

func TestFanoutPosterRoutesByWRIDChannelIndex(t *testing.T) {
	a, b := &fakeLink{index: 0}, &fakeLink{index: 1}
	p := &fanoutPoster{links: []transport.Channel{a, b}}

	w0 := channel.WriteRequest{WRID: wire.EncodeWRID(5, 0, wire.WriteDesc)}
	w1 := channel.WriteRequest{WRID: wire.EncodeWRID(5, 1, wire.WriteDesc)}
	if err := p.PostWrite(w0); err != nil {
		t.Fatalf("PostWrite to channel 0: %v", err)
	}
	if err := p.PostWrite(w1); err != nil {
		t.Fatalf("PostWrite to channel 1: %v", err)
	}

	if len(a.writes) != 1 || len(b.writes) != 1 {
		t.Fatalf("expected exactly one write routed to each channel, got a=%d b=%d", len(a.writes), len(b.writes))
	}
}

func TestFanoutPosterRejectsOutOfRangeChannel(t *testing.T) {
	p := &fanoutPoster{links: []transport.Channel{&fakeLink{index: 0}}}
	w := channel.WriteRequest{WRID: wire.EncodeWRID(0, 3, wire.WriteDesc)}
	if err := p.PostWrite(w); err == nil {
		t.Fatal("expected an error for a channel index beyond the link table")
	}
}

func TestSendHeartbeatsExcludesChannelOnceQuorumAgrees(t *testing.T) {
	links := []transport.Channel{&fakeLink{index: 0}, &fakeLink{index: 1}}
	chans := []*channel.InputChannel{
		channel.NewInputChannel(0, 10, 4, 8),
		channel.NewInputChannel(1, 10, 4, 8),
	}
	for _, c := range chans {
		c.MarkConnected(wire.ComputeNodeInfo{})
	}

	clk := time.Unix(0, 0)
	layer := heartbeat.NewLayer(4, 2.0, 4.0, 1, func() time.Time { return clk })
	consensus := heartbeat.NewConsensus(1) // single reporter: this node's own observation is authoritative
	scheduler := input.NewFailover(input.NewRoundRobin(2), 2)
	poster := &fanoutPoster{links: links}
	builder := input.NewBuilder(chans, scheduler, newEmptySource(), poster, 2, 0, 1, 1, input.NewIntervalStats(clk))

	// warm up channel 1's latency history so Classify has a baseline, then
	// let enough time pass (with no further heartbeats acked) to time it out.
	for i := 0; i < 5; i++ {
		layer.OnHeartbeatRecv(1)
		clk = clk.Add(time.Millisecond)
	}
	layer.OnHeartbeatSent(1, 1)
	layer.OnHeartbeatSent(1, 2)
	clk = clk.Add(time.Second)

	sendHeartbeats(links, chans, layer, consensus, scheduler, builder, 3, 0, 42)

	if !scheduler.Failed(1) {
		t.Fatal("expected channel 1 to be excluded after its own observation reached quorum")
	}
	if scheduler.Failed(0) {
		t.Fatal("expected channel 0 to remain in rotation")
	}
}
