package channel

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

type fakePoster struct {
	posted []WriteRequest
	fail   bool
}

func (f *fakePoster) PostWrite(r WriteRequest) error {
	if f.fail {
		return errInjected
	}
	f.posted = append(f.posted, r)
	return nil
}

var errInjected = fakeErr("injected")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestSendTimesliceIssuesContentThenFencedDesc(t *testing.T) {
	c := NewInputChannel(0, 10, 5, 4) // data_cap=1024, desc_cap=32
	c.state = InputActive
	p := &fakePoster{}

	desc := make([]byte, wire.SizeOfTimesliceComponentDescriptor)
	content := make([]byte, 40)

	if err := c.SendTimeslice(p, desc, content, 7); err != nil {
		t.Fatalf("send_timeslice: %v", err)
	}
	if len(p.posted) != 2 {
		t.Fatalf("expected 2 writes (content + fenced desc), got %d", len(p.posted))
	}
	last := p.posted[len(p.posted)-1]
	if last.Kind != wire.WriteDesc || !last.Fence || !last.Notify {
		t.Fatalf("expected final write to be fenced+notifying WriteDesc, got %+v", last)
	}
	if c.PendingWrites() != 1 {
		t.Fatalf("expected 1 pending send_timeslice op, got %d", c.PendingWrites())
	}
}

func TestSendTimeslicePadsToWrapBoundary(t *testing.T) {
	c := NewInputChannel(0, 10, 5, 4) // data_cap=1024
	c.state = InputActive
	c.Window.Advance(1020, 0) // cn_wp.data = 1020
	c.Window.AbsorbAck(wire.ComputeNodeBufferPosition{Data: 1020, Desc: 0}) // receiver has consumed up to the same point, so full window is free
	p := &fakePoster{}

	desc := make([]byte, wire.SizeOfTimesliceComponentDescriptor)
	content := make([]byte, 40)
	if err := c.SendTimeslice(p, desc, content, 1); err != nil {
		t.Fatalf("send_timeslice: %v", err)
	}
	// 40 bytes do not fit the 4 left before the wrap: 4 pad bytes are skipped
	// and the content lands whole at ring offset 0, plus fenced desc write = 2
	if len(p.posted) != 2 {
		t.Fatalf("expected 2 writes after padding to the wrap, got %d: %+v", len(p.posted), p.posted)
	}
	if p.posted[0].Kind != wire.WriteData || len(p.posted[0].Bytes) != 40 || p.posted[0].TargetOffset != 0 {
		t.Fatalf("expected one 40-byte content write at offset 0, got %+v", p.posted[0])
	}
	if p.posted[1].Kind != wire.WriteDesc {
		t.Fatalf("expected fenced desc write second, got %+v", p.posted[1])
	}
	if got := c.Window.WP().Data; got != 1064 {
		t.Fatalf("expected cn_wp.data=1064 post-write, got %d", got)
	}
}

func TestSendTimesliceRejectsWhenBackpressureFull(t *testing.T) {
	c := NewInputChannel(0, 4, 4, 4) // data_cap=16, desc_cap=16
	c.state = InputActive
	p := &fakePoster{}
	big := make([]byte, 17) // exceeds data_cap
	if err := c.SendTimeslice(p, make([]byte, wire.SizeOfTimesliceComponentDescriptor), big, 0); err == nil {
		t.Fatal("expected backpressure error")
	}
}

func TestSendTimesliceRejectsWhenTooManyPending(t *testing.T) {
	c := NewInputChannel(0, 10, 10, 1)
	c.state = InputActive
	p := &fakePoster{}
	small := make([]byte, 8)
	descBuf := make([]byte, wire.SizeOfTimesliceComponentDescriptor)
	if err := c.SendTimeslice(p, descBuf, small, 0); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.SendTimeslice(p, descBuf, small, 1); err == nil {
		t.Fatal("expected backpressure from exhausted pending-write budget")
	}
}

func TestPingPongOnlyOneOutstanding(t *testing.T) {
	c := NewInputChannel(0, 10, 10, 4)
	c.state = InputActive
	sent := 0
	send := func(wire.InputChannelStatusMessage) error { sent++; return nil }

	ok, err := c.TrySyncPositions(send)
	if err != nil || !ok {
		t.Fatalf("expected first sync to post, got ok=%v err=%v", ok, err)
	}
	if c.OurTurn() {
		t.Fatal("expected ourTurn cleared after posting")
	}
	ok, err = c.TrySyncPositions(send)
	if err != nil || ok {
		t.Fatalf("expected second sync to be suppressed (ping-pong), got ok=%v err=%v", ok, err)
	}
	if sent != 1 {
		t.Fatalf("expected exactly 1 status message in flight, got %d", sent)
	}

	c.OnStatusRecv(wire.ComputeNodeStatusMessage{Ack: wire.ComputeNodeBufferPosition{}})
	if !c.OurTurn() {
		t.Fatal("expected ourTurn restored after non-final status reply")
	}
}

func TestFinalizeOnlySetsFinalWhenCreditDrained(t *testing.T) {
	c := NewInputChannel(0, 10, 10, 4)
	c.state = InputActive
	c.Window.Advance(10, 1) // outstanding, unacked
	c.Finalize(false)

	var lastMsg wire.InputChannelStatusMessage
	send := func(m wire.InputChannelStatusMessage) error { lastMsg = m; return nil }
	if _, err := c.TrySyncPositions(send); err != nil {
		t.Fatal(err)
	}
	if lastMsg.Final {
		t.Fatal("expected final=false while cn_wp != cn_ack")
	}

	c.OnStatusRecv(wire.ComputeNodeStatusMessage{Ack: wire.ComputeNodeBufferPosition{Data: 10, Desc: 1}})
	if _, err := c.TrySyncPositions(send); err != nil {
		t.Fatal(err)
	}
	if !lastMsg.Final {
		t.Fatal("expected final=true once cn_wp == cn_ack")
	}
	if c.State() != InputDone {
		t.Fatalf("expected Done state after self-posted final, got %s", c.State())
	}
}
