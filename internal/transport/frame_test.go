package transport

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/channel"
	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

func TestWriteFrameRoundTrip(t *testing.T) {
	w := channel.WriteRequest{
		WRID:         wire.EncodeWRID(7, 2, wire.WriteDesc),
		Kind:         wire.WriteDesc,
		Fence:        true,
		Notify:       true,
		TargetOffset: 42,
		Bytes:        []byte("timeslice-component-descriptor"),
	}

	buf := make([]byte, 0, 1+8+1+1+1+8+4+len(w.Bytes))
	buf = append(buf, frameKindWrite)
	buf = appendUint64(buf, w.WRID)
	buf = append(buf, byte(w.Kind))
	buf = appendBool(buf, w.Fence)
	buf = appendBool(buf, w.Notify)
	buf = appendUint64(buf, w.TargetOffset)
	buf = appendUint32(buf, uint32(len(w.Bytes)))
	buf = append(buf, w.Bytes...)

	msg, ok := decodeFrame(3, buf)
	if !ok {
		t.Fatal("expected decodeFrame to succeed")
	}
	if msg.ChannelIndex != 3 {
		t.Fatalf("expected channel index 3, got %d", msg.ChannelIndex)
	}
	if msg.Tag != wire.WriteDesc {
		t.Fatalf("expected tag WriteDesc, got %v", msg.Tag)
	}
	if string(msg.Payload) != "timeslice-component-descriptor" {
		t.Fatalf("unexpected payload: %q", msg.Payload)
	}
}

func TestSendFrameRoundTrip(t *testing.T) {
	buf := make([]byte, 0, 1+1+4+4)
	buf = append(buf, frameKindSend)
	buf = append(buf, byte(wire.HeartbeatSend))
	buf = appendUint32(buf, 4)
	buf = append(buf, []byte("ping")...)

	msg, ok := decodeFrame(1, buf)
	if !ok {
		t.Fatal("expected decodeFrame to succeed")
	}
	if msg.Tag != wire.HeartbeatSend {
		t.Fatalf("expected tag HeartbeatSend, got %v", msg.Tag)
	}
	if string(msg.Payload) != "ping" {
		t.Fatalf("unexpected payload: %q", msg.Payload)
	}
}

func TestDecodeFrameRejectsTruncated(t *testing.T) {
	if _, ok := decodeFrame(0, []byte{frameKindWrite, 1, 2}); ok {
		t.Fatal("expected truncated write frame to be rejected")
	}
	if _, ok := decodeFrame(0, nil); ok {
		t.Fatal("expected empty frame to be rejected")
	}
	if _, ok := decodeFrame(0, []byte{0xFF}); ok {
		t.Fatal("expected unknown frame kind to be rejected")
	}
}
