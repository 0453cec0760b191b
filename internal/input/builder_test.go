package input

import (
	"testing"
	"time"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

type fakeSource struct {
	desc        *ring.Managed[wire.MicrosliceDescriptor]
	data        *ring.Managed[byte]
	proceedCalls int
}

func (s *fakeSource) DescBuffer() *ring.Managed[wire.MicrosliceDescriptor] { return s.desc }
func (s *fakeSource) DataBuffer() *ring.Managed[byte]                     { return s.data }
func (s *fakeSource) Proceed()                                            { s.proceedCalls++ }

type fakePoster struct {
	writes []channel.WriteRequest
}

func (p *fakePoster) PostWrite(w channel.WriteRequest) error {
	p.writes = append(p.writes, w)
	return nil
}

// newTestSource fills desc/data buffers with n microslices of size bytes
// each, back to back starting at offset 0, and fills the data ring with
// distinguishable byte content.
func newTestSource(n int, size uint32) *fakeSource {
	desc := ring.NewManaged[wire.MicrosliceDescriptor](2) // 4 slots
	data := ring.NewManaged[byte](8)                      // 256 bytes
	offset := uint64(0)
	for i := 0; i < n; i++ {
		_ = desc.Append(wire.MicrosliceDescriptor{Idx: uint64(i), Size: size, Offset: offset})
		content := make([]byte, size)
		for j := range content {
			content[j] = byte(i)
		}
		_ = data.AppendSlice(content)
		offset += uint64(size)
	}
	return &fakeSource{desc: desc, data: data}
}

func newTestChannels(n int) []*channel.InputChannel {
	chans := make([]*channel.InputChannel, n)
	for i := 0; i < n; i++ {
		chans[i] = channel.NewInputChannel(uint16(i), 10, 4, 8)
		chans[i].MarkConnected(wire.ComputeNodeInfo{})
	}
	return chans
}

func TestMaybeSendWaitsForMicroslices(t *testing.T) {
	source := newTestSource(1, 10) // only 1 microslice produced
	chans := newTestChannels(2)
	poster := &fakePoster{}
	b := NewBuilder(chans, NewRoundRobin(2), source, poster, 2, 0, 1, 1, NewIntervalStats(time.Unix(0, 0)))

	sent, err := b.MaybeSend()
	if err != nil {
		t.Fatal(err)
	}
	if sent {
		t.Fatal("expected MaybeSend to decline: only 1 of 2 required microslices produced")
	}
	if b.NextTimeslice() != 0 {
		t.Fatalf("expected next_timeslice to stay at 0, got %d", b.NextTimeslice())
	}
}

func TestMaybeSendAssignsRoundRobin(t *testing.T) {
	source := newTestSource(4, 10)
	chans := newTestChannels(2)
	poster := &fakePoster{}
	b := NewBuilder(chans, NewRoundRobin(2), source, poster, 2, 0, 1, 1, NewIntervalStats(time.Unix(0, 0)))

	for i := 0; i < 2; i++ {
		sent, err := b.MaybeSend()
		if err != nil {
			t.Fatal(err)
		}
		if !sent {
			t.Fatalf("expected timeslice %d to send", i)
		}
	}

	if chans[0].PendingWrites() != 1 {
		t.Fatalf("expected channel 0 (ts=0) to have 1 pending write, got %d", chans[0].PendingWrites())
	}
	if chans[1].PendingWrites() != 1 {
		t.Fatalf("expected channel 1 (ts=1) to have 1 pending write, got %d", chans[1].PendingWrites())
	}
	if len(poster.writes) == 0 {
		t.Fatal("expected at least one write posted")
	}
}

func TestOnWriteDescCompleteFoldsOutOfOrder(t *testing.T) {
	source := newTestSource(4, 10)
	chans := newTestChannels(2)
	poster := &fakePoster{}
	b := NewBuilder(chans, NewRoundRobin(2), source, poster, 2, 0, 1, 1, NewIntervalStats(time.Unix(0, 0)))

	if _, err := b.MaybeSend(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.MaybeSend(); err != nil {
		t.Fatal(err)
	}

	// ts=1 completes first; nothing should fold yet
	b.OnWriteDescComplete(1, 1)
	if b.AckedData() != 0 || b.AckedDesc() != 0 {
		t.Fatalf("expected no folding before ts=0 completes, got data=%d desc=%d", b.AckedData(), b.AckedDesc())
	}

	// ts=0 completes; both ts=0 and ts=1 should now fold in order
	b.OnWriteDescComplete(0, 0)
	if b.AckedDesc() != 4 {
		t.Fatalf("expected acked_desc=4 (both timeslices' microslices), got %d", b.AckedDesc())
	}
	if b.AckedData() != 40 {
		t.Fatalf("expected acked_data=40 (4 microslices * 10 bytes), got %d", b.AckedData())
	}
}

func TestSyncSourceIfDuePublishesReadIndexes(t *testing.T) {
	source := newTestSource(4, 10)
	chans := newTestChannels(2)
	poster := &fakePoster{}
	b := NewBuilder(chans, NewRoundRobin(2), source, poster, 2, 0, 1, 1, NewIntervalStats(time.Unix(0, 0)))

	if _, err := b.MaybeSend(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.MaybeSend(); err != nil {
		t.Fatal(err)
	}
	b.OnWriteDescComplete(0, 0)
	b.OnWriteDescComplete(1, 1)

	if !b.SyncSourceIfDue() {
		t.Fatal("expected sync to be due after acked progress exceeded the minimum")
	}
	if source.desc.ReadIndex() != 4 {
		t.Fatalf("expected source desc read_index=4, got %d", source.desc.ReadIndex())
	}
	if source.data.ReadIndex() != 40 {
		t.Fatalf("expected source data read_index=40, got %d", source.data.ReadIndex())
	}
	if source.proceedCalls != 1 {
		t.Fatalf("expected Proceed to be called once, got %d", source.proceedCalls)
	}

	if b.SyncSourceIfDue() {
		t.Fatal("expected no further sync due until acked advances again")
	}
}

func TestRedistributeFailedResendsToSurvivingChannel(t *testing.T) {
	source := newTestSource(4, 10)
	chans := newTestChannels(2)
	poster := &fakePoster{}
	scheduler := NewFailover(NewRoundRobin(2), 2)
	b := NewBuilder(chans, scheduler, source, poster, 2, 0, 1, 1, NewIntervalStats(time.Unix(0, 0)))

	if _, err := b.MaybeSend(); err != nil { // ts=0 -> channel 0
		t.Fatal(err)
	}
	if _, err := b.MaybeSend(); err != nil { // ts=1 -> channel 1
		t.Fatal(err)
	}
	if chans[1].PendingWrites() != 1 {
		t.Fatalf("expected ts=1 sent to channel 1 before failure, got %d pending writes", chans[1].PendingWrites())
	}

	scheduler.MarkFailed(1)
	b.RedistributeFailed(1, 0)

	sent, err := b.MaybeSend()
	if err != nil {
		t.Fatal(err)
	}
	if !sent {
		t.Fatal("expected MaybeSend to drain the redistributed timeslice before any new one")
	}
	if chans[0].PendingWrites() != 2 {
		t.Fatalf("expected the rewound ts=1 resent to the surviving channel 0, got %d pending writes", chans[0].PendingWrites())
	}
	if b.NextTimeslice() != 2 {
		t.Fatalf("expected next_timeslice to stay at 2 (no new timeslice attempted during redistribution drain), got %d", b.NextTimeslice())
	}
}

func TestFinalizeAndDoneLifecycle(t *testing.T) {
	chans := newTestChannels(2)
	source := newTestSource(0, 10)
	poster := &fakePoster{}
	b := NewBuilder(chans, NewRoundRobin(2), source, poster, 2, 0, 1, 1, NewIntervalStats(time.Unix(0, 0)))

	if b.Done() {
		t.Fatal("expected Done()==false before Finalize is called")
	}
	b.Finalize()
	if b.Done() {
		t.Fatal("expected Done()==false before channels have actually reached InputDone")
	}

	for _, ch := range chans {
		_, _ = ch.TrySyncPositions(func(wire.InputChannelStatusMessage) error { return nil })
		ch.OnStatusRecv(wire.ComputeNodeStatusMessage{Final: true})
	}
	if !b.Done() {
		t.Fatal("expected Done()==true once every channel reports InputDone")
	}
}
