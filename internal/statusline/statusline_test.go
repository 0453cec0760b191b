package statusline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/heartbeat"
	"github.com/cbm-fles/flesnet-sub001/internal/input"
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

func newTestChannels(n int) []*channel.InputChannel {
	chans := make([]*channel.InputChannel, n)
	for i := 0; i < n; i++ {
		chans[i] = channel.NewInputChannel(uint16(i), 10, 4, 8)
		chans[i].MarkConnected(wire.ComputeNodeInfo{})
	}
	return chans
}

type fakeSource struct {
	desc *ring.Managed[wire.MicrosliceDescriptor]
	data *ring.Managed[byte]
}

func (s *fakeSource) DescBuffer() *ring.Managed[wire.MicrosliceDescriptor] { return s.desc }
func (s *fakeSource) DataBuffer() *ring.Managed[byte]                     { return s.data }
func (s *fakeSource) Proceed()                                            {}

type fakePoster struct{}

func (p *fakePoster) PostWrite(w channel.WriteRequest) error { return nil }

func TestInputSourceReportsBuilderProgress(t *testing.T) {
	chans := newTestChannels(1)
	src := &fakeSource{desc: ring.NewManaged[wire.MicrosliceDescriptor](2), data: ring.NewManaged[byte](8)}
	poster := &fakePoster{}
	b := input.NewBuilder(chans, input.NewRoundRobin(1), src, poster, 2, 0, 1, 1, input.NewIntervalStats(time.Unix(0, 0)))

	s := &InputSource{Builder: b, Stats: input.NewIntervalStats(time.Unix(0, 0)), Now: func() time.Time { return time.Unix(1, 0) }}
	counters := s.Sample()

	found := map[string]string{}
	for _, c := range counters {
		found[c.Name] = c.Value
	}
	if found["next_ts"] != "0" {
		t.Fatalf("expected next_ts=0 on a fresh builder, got %q", found["next_ts"])
	}
	if _, ok := found["mb_per_sec"]; !ok {
		t.Fatal("expected a mb_per_sec counter")
	}
}

func TestInputChannelHealthReflectsClassification(t *testing.T) {
	chans := newTestChannels(2)
	clk := time.Unix(0, 0)
	layer := heartbeat.NewLayer(4, 2.0, 4.0, 3, func() time.Time { return clk })

	layer.OnHeartbeatRecv(0)
	layer.OnHeartbeatRecv(1)

	h := &InputChannelHealth{Layer: layer, Channels: chans}
	health := h.Health()
	if len(health) != 2 {
		t.Fatalf("expected health for 2 channels, got %d", len(health))
	}
	for _, entry := range health {
		if entry.Inactive || entry.TimedOut {
			t.Fatalf("expected a freshly-seen channel to be healthy, got %+v", entry)
		}
		if !entry.Connected {
			t.Fatalf("expected channel %d to be reported connected", entry.Index)
		}
	}
}

func TestPrinterTickWritesColoredSummary(t *testing.T) {
	chans := newTestChannels(1)
	src := &fakeSource{desc: ring.NewManaged[wire.MicrosliceDescriptor](2), data: ring.NewManaged[byte](8)}
	poster := &fakePoster{}
	b := input.NewBuilder(chans, input.NewRoundRobin(1), src, poster, 2, 0, 1, 1, input.NewIntervalStats(time.Unix(0, 0)))
	layer := heartbeat.NewLayer(4, 2.0, 4.0, 3, func() time.Time { return time.Unix(0, 0) })
	layer.OnHeartbeatRecv(0)

	var buf bytes.Buffer
	p := NewPrinter(&buf, "input-0", false, &InputSource{Builder: b, Stats: input.NewIntervalStats(time.Unix(0, 0))}, &InputChannelHealth{Layer: layer, Channels: chans})
	p.tick()

	out := buf.String()
	if !strings.Contains(out, "input-0") {
		t.Fatalf("expected the label in the summary line, got %q", out)
	}
	if !strings.Contains(out, "channel 0: ok") {
		t.Fatalf("expected a healthy channel line, got %q", out)
	}
}

func TestPrinterQuietSuppressesOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, "input-0", true, &InputSource{Builder: nil, Stats: input.NewIntervalStats(time.Unix(0, 0))}, nil)
	p.tick()
	if buf.Len() != 0 {
		t.Fatalf("expected no output while quiet, got %q", buf.String())
	}
}
