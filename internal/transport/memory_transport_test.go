package transport

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

func TestMemoryPairConnectExchangesPrivateData(t *testing.T) {
	a, b := NewMemoryPair()

	done := make(chan struct{})
	var acceptRemote []byte
	go func() {
		defer close(done)
		remote, _, err := b.Accept([]byte("compute-info"))
		if err != nil {
			t.Error(err)
			return
		}
		acceptRemote = remote
	}()

	remote, _, err := a.Connect(0, []byte("input-info"))
	if err != nil {
		t.Fatal(err)
	}
	<-done

	if string(remote) != "compute-info" {
		t.Fatalf("expected dialer to see acceptor's info, got %q", remote)
	}
	if string(acceptRemote) != "input-info" {
		t.Fatalf("expected acceptor to see dialer's info, got %q", acceptRemote)
	}

	select {
	case ev := <-a.Events():
		if ev.Kind != EventConnected {
			t.Fatalf("expected Connected event, got %v", ev.Kind)
		}
	default:
		t.Fatal("expected a Connected event on the dialer side")
	}
}

func TestMemoryPostWriteDeliversPayloadAndCompletion(t *testing.T) {
	a, b := NewMemoryPair()

	go func() { _, _, _ = b.Accept(nil) }()
	_, ch, err := a.Connect(0, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := channel.WriteRequest{
		WRID:   wire.EncodeWRID(1, 0, wire.WriteDesc),
		Kind:   wire.WriteDesc,
		Notify: true,
		Bytes:  []byte("descriptor"),
	}
	if err := ch.PostWrite(req); err != nil {
		t.Fatal(err)
	}

	msg := <-b.Messages()
	if string(msg.Payload) != "descriptor" {
		t.Fatalf("expected peer to receive the write's payload, got %q", msg.Payload)
	}

	comp := <-a.Completions()
	if comp.WRID != req.WRID || comp.Status != StatusOK {
		t.Fatalf("expected a local completion for the notified write, got %+v", comp)
	}
}

func TestMemoryPostWritePropagatesWRIDAndTargetOffset(t *testing.T) {
	a, b := NewMemoryPair()

	go func() { _, _, _ = b.Accept(nil) }()
	_, ch, err := a.Connect(0, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := channel.WriteRequest{
		WRID:         wire.EncodeWRID(7, 0, wire.WriteData),
		Kind:         wire.WriteData,
		TargetOffset: 4096,
		Bytes:        []byte("content"),
	}
	if err := ch.PostWrite(req); err != nil {
		t.Fatal(err)
	}

	msg := <-b.Messages()
	if msg.WRID != req.WRID {
		t.Fatalf("expected peer message to carry the write's wr_id, got %d want %d", msg.WRID, req.WRID)
	}
	if msg.TargetOffset != req.TargetOffset {
		t.Fatalf("expected peer message to carry the write's target offset, got %d want %d", msg.TargetOffset, req.TargetOffset)
	}
}

func TestMemoryPostSendDeliversToMessagesAndCompletions(t *testing.T) {
	a, b := NewMemoryPair()
	go func() { _, _, _ = b.Accept(nil) }()
	_, ch, err := a.Connect(0, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := ch.PostSend(wire.HeartbeatSend, []byte("ping")); err != nil {
		t.Fatal(err)
	}

	msg := <-b.Messages()
	if msg.Tag != wire.HeartbeatSend || string(msg.Payload) != "ping" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	comp := <-a.Completions()
	if comp.Status != StatusOK {
		t.Fatalf("expected OK completion for a two-sided send, got %+v", comp)
	}
}
