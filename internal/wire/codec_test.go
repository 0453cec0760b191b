package wire

import "testing"

func TestMicrosliceDescriptorRoundTrip(t *testing.T) {
	d := MicrosliceDescriptor{HdrID: 1, HdrVer: 2, EqID: 3, Flags: 4, SysID: 5, SysVer: 6, Idx: 7, CRC: 8, Size: 9, Offset: 10}
	buf, err := d.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != SizeOfMicrosliceDescriptor {
		t.Fatalf("expected %d bytes, got %d", SizeOfMicrosliceDescriptor, len(buf))
	}
	var got MicrosliceDescriptor
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestTimesliceComponentDescriptorRoundTrip(t *testing.T) {
	d := TimesliceComponentDescriptor{TsNum: 42, Offset: 100, Size: 200, NumMicroslices: 4}
	buf, _ := d.MarshalBinary()
	var got TimesliceComponentDescriptor
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestInputChannelStatusMessageRoundTrip(t *testing.T) {
	m := InputChannelStatusMessage{
		WP:      ComputeNodeBufferPosition{Data: 1024, Desc: 8},
		Abort:   false,
		Final:   true,
		Connect: false,
		Info:    InputNodeInfo{Index: 3},
	}
	buf, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got InputChannelStatusMessage
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestComputeNodeStatusMessageRoundTrip(t *testing.T) {
	m := ComputeNodeStatusMessage{
		Ack:          ComputeNodeBufferPosition{Data: 55, Desc: 2},
		RequestAbort: true,
		Final:        false,
		Connect:      true,
		Info: ComputeNodeInfo{
			Data:              MemoryRegion{Addr: 1, Rkey: 2},
			Desc:              MemoryRegion{Addr: 3, Rkey: 4},
			Index:             1,
			DataBufferSizeExp: 20,
			DescBufferSizeExp: 10,
		},
	}
	buf, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got ComputeNodeStatusMessage
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestHeartbeatMessageRoundTrip(t *testing.T) {
	m := HeartbeatMessage{
		SenderIndex: 2,
		MessageID:   99,
		Ack:         true,
		FailureInfo: FailureInfo{Valid: true, Index: 1, LastCompletedDesc: 17, TimesliceTrigger: 20},
	}
	buf, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var got HeartbeatMessage
	if err := got.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestUnmarshalRejectsShortBuffer(t *testing.T) {
	var m HeartbeatMessage
	if err := m.UnmarshalBinary([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error on short buffer")
	}
}
