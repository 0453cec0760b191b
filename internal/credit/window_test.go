package credit

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

func TestHasCreditWithinCapacity(t *testing.T) {
	w := New(10, 5) // data_cap=1024, desc_cap=32
	if !w.HasCredit(100, 1) {
		t.Fatal("expected credit available at start")
	}
	w.Advance(1024, 32)
	if w.HasCredit(1, 1) {
		t.Fatal("expected no credit once fully outstanding")
	}
	w.AbsorbAck(wire.ComputeNodeBufferPosition{Data: 1024, Desc: 32})
	if !w.HasCredit(1024, 32) {
		t.Fatal("expected full credit restored after full ack")
	}
}

func TestSkipRequiredWrapScenario(t *testing.T) {
	// scenario 3 from spec §8: data_buffer_size_exp=10 (1024), cn_wp.data=1020, needs 40 bytes
	w := New(10, 5)
	w.Advance(1020, 0)
	if got := w.SkipRequired(40); got != 4 {
		t.Fatalf("expected skip_required=4, got %d", got)
	}
}

func TestSkipRequiredNoWrap(t *testing.T) {
	w := New(10, 5)
	w.Advance(100, 0)
	if got := w.SkipRequired(40); got != 0 {
		t.Fatalf("expected skip_required=0, got %d", got)
	}
}

func TestInRangeInvariant(t *testing.T) {
	w := New(4, 4) // data_cap=16 desc_cap=16
	w.Advance(16, 16)
	if !w.InRange() {
		t.Fatal("expected exactly-at-capacity to remain in range")
	}
	w.Advance(1, 0)
	if w.InRange() {
		t.Fatal("expected over-capacity to be out of range")
	}
}

func TestAbsorbAckNeverRollsBack(t *testing.T) {
	w := New(10, 5)
	w.AbsorbAck(wire.ComputeNodeBufferPosition{Data: 500, Desc: 10})
	w.AbsorbAck(wire.ComputeNodeBufferPosition{Data: 100, Desc: 2}) // stale/duplicate
	if w.Ack().Data != 500 || w.Ack().Desc != 10 {
		t.Fatalf("expected ack to stay at high-water mark, got %+v", w.Ack())
	}
}
