package channel

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/ring"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

func TestComputeChannelIncAckDerivesBytePosition(t *testing.T) {
	descRing := ring.New[wire.TimesliceComponentDescriptor](4)
	*descRing.At(0) = wire.TimesliceComponentDescriptor{TsNum: 0, Offset: 0, Size: 100}
	*descRing.At(1) = wire.TimesliceComponentDescriptor{TsNum: 1, Offset: 100, Size: 50}

	cc := NewComputeChannel(0, 20, descRing)
	cc.IncAck(2) // consumed descriptors 0 and 1
	if got := cc.PostAck(); got.Desc != 2 || got.Data != 150 {
		t.Fatalf("expected ack {desc:2 data:150}, got %+v", got)
	}
}

func TestComputeChannelStateMachine(t *testing.T) {
	descRing := ring.New[wire.TimesliceComponentDescriptor](4)
	cc := NewComputeChannel(0, 20, descRing)
	if cc.State() != ComputeConnecting {
		t.Fatalf("expected initial state Connecting, got %s", cc.State())
	}
	cc.OnWPRecv(wire.ComputeNodeBufferPosition{Desc: 1})
	if cc.State() != ComputeEstablished {
		t.Fatalf("expected Established after first wp, got %s", cc.State())
	}
	cc.OnFinalStatus()
	if cc.State() != ComputeDraining {
		t.Fatalf("expected Draining after final status, got %s", cc.State())
	}
	cc.OnFinalAckConfirmed()
	if cc.State() != ComputeDone {
		t.Fatalf("expected Done after final ack confirmed, got %s", cc.State())
	}
}

func TestComputeChannelWriteContentAndDescriptor(t *testing.T) {
	descRing := ring.New[wire.TimesliceComponentDescriptor](4)
	cc := NewComputeChannel(0, 10, descRing) // 1KB data ring

	cc.WriteContent(1000, []byte("hello"))
	for i, want := range []byte("hello") {
		if got := *cc.DataRing.At(1000 + uint64(i)); got != want {
			t.Fatalf("data ring byte %d: got %q want %q", i, got, want)
		}
	}

	desc := wire.TimesliceComponentDescriptor{TsNum: 42, Offset: 1000, Size: 5}
	cc.WriteDescriptor(3, desc)
	if got := *cc.DescRing.At(3); got != desc {
		t.Fatalf("desc ring slot 3: got %+v want %+v", got, desc)
	}
}
