package compute

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

type fakeDistributor struct {
	posted []WorkItem
}

func (d *fakeDistributor) PostWorkItem(w WorkItem) error {
	d.posted = append(d.posted, w)
	return nil
}

func newTestChannels(n int, descSizeExp uint32) []*channel.ComputeChannel {
	chans := make([]*channel.ComputeChannel, n)
	for i := 0; i < n; i++ {
		descRing := ring.New[wire.TimesliceComponentDescriptor](descSizeExp)
		for t := uint64(0); t < descRing.Size(); t++ {
			*descRing.At(t) = wire.TimesliceComponentDescriptor{TsNum: t}
		}
		chans[i] = channel.NewComputeChannel(i, 20, descRing)
	}
	return chans
}

func TestRedLanternProgressScenario(t *testing.T) {
	// spec §8 scenario 4: N_in=3, senders reach cn_wp.desc={5,3,4}.
	chans := newTestChannels(3, 4)
	b := New(chans, 16, 4, 20, 4, false)
	dist := &fakeDistributor{}

	if err := b.OnWPRecv(0, wire.ComputeNodeBufferPosition{Desc: 5}, dist); err != nil {
		t.Fatal(err)
	}
	if err := b.OnWPRecv(1, wire.ComputeNodeBufferPosition{Desc: 3}, dist); err != nil {
		t.Fatal(err)
	}
	if err := b.OnWPRecv(2, wire.ComputeNodeBufferPosition{Desc: 4}, dist); err != nil {
		t.Fatal(err)
	}
	if b.RedLantern() != 1 {
		t.Fatalf("expected red lantern at index 1 (the lagging channel), got %d", b.RedLantern())
	}
	if b.CompletelyWritten() != 3 {
		t.Fatalf("expected completely_written=3, got %d", b.CompletelyWritten())
	}
	if len(dist.posted) != 3 {
		t.Fatalf("expected 3 work items emitted for t in [0,3), got %d", len(dist.posted))
	}

	// sender 1 (the red lantern) advances to 6; new min=4 at index 2
	if err := b.OnWPRecv(1, wire.ComputeNodeBufferPosition{Desc: 6}, dist); err != nil {
		t.Fatal(err)
	}
	if b.CompletelyWritten() != 4 {
		t.Fatalf("expected completely_written=4, got %d", b.CompletelyWritten())
	}
	if b.RedLantern() != 2 {
		t.Fatalf("expected red lantern to move to index 2, got %d", b.RedLantern())
	}
	if len(dist.posted) != 4 {
		t.Fatalf("expected exactly 1 new work item (t=3) emitted, got total %d", len(dist.posted))
	}
	if dist.posted[3].TsPos != 3 {
		t.Fatalf("expected the new work item to be for ts_pos=3, got %d", dist.posted[3].TsPos)
	}
}

func TestNonRedLanternAdvanceDoesNotEmit(t *testing.T) {
	chans := newTestChannels(2, 4)
	b := New(chans, 16, 4, 20, 4, false)
	dist := &fakeDistributor{}

	// channel 0 is red lantern by default (index 0); advancing channel 1
	// (not the lantern) must not move completely_written even though it is
	// now ahead, since the lagging channel hasn't moved.
	if err := b.OnWPRecv(1, wire.ComputeNodeBufferPosition{Desc: 10}, dist); err != nil {
		t.Fatal(err)
	}
	if b.CompletelyWritten() != 0 {
		t.Fatalf("expected completely_written to stay at 0, got %d", b.CompletelyWritten())
	}
	if len(dist.posted) != 0 {
		t.Fatalf("expected no work items emitted, got %d", len(dist.posted))
	}
}

func TestWorkItemEveryComponentSeesSameTsNum(t *testing.T) {
	// spec §8 invariant: for every emitted tpos, desc_ring[i].at(tpos).ts_num
	// is equal for all i.
	chans := newTestChannels(2, 4)
	b := New(chans, 16, 4, 20, 4, false)
	dist := &fakeDistributor{}
	_ = b.OnWPRecv(0, wire.ComputeNodeBufferPosition{Desc: 1}, dist)
	_ = b.OnWPRecv(1, wire.ComputeNodeBufferPosition{Desc: 1}, dist)
	if len(dist.posted) != 1 {
		t.Fatalf("expected 1 work item, got %d", len(dist.posted))
	}
	for _, c := range chans {
		if c.DescRing.At(0).TsNum != dist.posted[0].TsIndex {
			t.Fatalf("channel disagrees on ts_num for tpos=0")
		}
	}
}

func TestOnCompletionOutOfOrder(t *testing.T) {
	// spec §8 scenario 2: t=0,1 dispatched; worker returns t=1 first then t=0.
	chans := newTestChannels(2, 4)
	b := New(chans, 16, 4, 20, 4, false)

	b.OnCompletion(1)
	if b.Acked() != 0 {
		t.Fatalf("expected acked to stay 0 after out-of-order completion, got %d", b.Acked())
	}
	b.OnCompletion(0)
	if b.Acked() != 2 {
		t.Fatalf("expected acked=2 after in-order fold, got %d", b.Acked())
	}
	for _, c := range chans {
		if c.PostAck().Desc != 2 {
			t.Fatalf("expected channel ack.desc=2, got %d", c.PostAck().Desc)
		}
	}
}

func TestArgminExcludesFailedChannels(t *testing.T) {
	chans := newTestChannels(3, 4)
	b := New(chans, 16, 4, 20, 4, false)
	dist := &fakeDistributor{}

	_ = b.OnWPRecv(0, wire.ComputeNodeBufferPosition{Desc: 5}, dist) // redLantern becomes 1
	_ = b.OnWPRecv(2, wire.ComputeNodeBufferPosition{Desc: 3}, dist) // not the lantern, no recompute
	chans[1].MarkFailed()

	// channel 1 is both the tracked red lantern and (if not excluded) would
	// still be the argmin at desc=1 < channel2's desc=3; MarkFailed must
	// remove it from consideration so progress is driven by channel 2.
	if err := b.OnWPRecv(1, wire.ComputeNodeBufferPosition{Desc: 1}, dist); err != nil {
		t.Fatal(err)
	}
	if b.RedLantern() != 2 {
		t.Fatalf("expected red lantern to move to channel 2 (lowest non-failed), got %d", b.RedLantern())
	}
	if b.CompletelyWritten() != 3 {
		t.Fatalf("expected completely_written=3 (channel 2's position), got %d", b.CompletelyWritten())
	}
}

func TestOnChannelFailedAdvancesPastDisconnectedChannel(t *testing.T) {
	chans := newTestChannels(3, 4)
	b := New(chans, 16, 4, 20, 4, false)
	dist := &fakeDistributor{}

	_ = b.OnWPRecv(0, wire.ComputeNodeBufferPosition{Desc: 5}, dist) // redLantern becomes 1
	_ = b.OnWPRecv(2, wire.ComputeNodeBufferPosition{Desc: 3}, dist)
	if b.CompletelyWritten() != 0 {
		t.Fatalf("expected completely_written to stay at 0 while channel 1 (desc=0) lags, got %d", b.CompletelyWritten())
	}

	// channel 1's transport connection drops before it ever reports progress:
	// a direct disconnect, not a heartbeat-driven decision.
	if err := b.OnChannelFailed(1, dist); err != nil {
		t.Fatal(err)
	}
	if chans[1].State() != channel.ComputeFailed {
		t.Fatalf("expected channel 1 marked Failed, got %s", chans[1].State())
	}
	if b.RedLantern() != 2 {
		t.Fatalf("expected red lantern to move to channel 2 (lowest surviving), got %d", b.RedLantern())
	}
	if b.CompletelyWritten() != 3 {
		t.Fatalf("expected completely_written to advance to channel 2's position (3) once channel 1 is excluded, got %d", b.CompletelyWritten())
	}
	if len(dist.posted) != 3 {
		t.Fatalf("expected 3 work items emitted for the newly unblocked range, got %d", len(dist.posted))
	}
}

func TestDropModeSynthesizesImmediateCompletion(t *testing.T) {
	chans := newTestChannels(1, 4)
	b := New(chans, 16, 4, 20, 4, true)
	dist := &fakeDistributor{}
	if err := b.OnWPRecv(0, wire.ComputeNodeBufferPosition{Desc: 2}, dist); err != nil {
		t.Fatal(err)
	}
	if b.Acked() != 2 {
		t.Fatalf("expected drop-mode to fold completions immediately, acked=%d", b.Acked())
	}
}
