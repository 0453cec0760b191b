package input

import (
	"testing"
	"time"
)

func TestGeneratorFillsUntilRingsFull(t *testing.T) {
	g := NewGenerator(4, 10, 64, 7) // 16 desc slots, 1024 data bytes, 64B microslices
	g.fill(make([]byte, 64))

	if got, want := g.desc.WriteIndex(), uint64(16); got != want {
		t.Fatalf("expected desc ring to fill to %d entries, got %d", want, got)
	}
	if got, want := g.data.WriteIndex(), uint64(16*64); got != want {
		t.Fatalf("expected data ring to fill to %d bytes, got %d", want, got)
	}
}

func TestGeneratorResumesAfterReadIndexAdvances(t *testing.T) {
	g := NewGenerator(2, 8, 32, 0) // 4 desc slots, 256 data bytes
	g.fill(make([]byte, 32))
	if got := g.desc.SizeAvailable(); got != 0 {
		t.Fatalf("expected desc ring full, got %d slots free", got)
	}

	if err := g.desc.SetReadIndex(2); err != nil {
		t.Fatalf("SetReadIndex: %v", err)
	}
	if err := g.data.SetReadIndex(2 * 32); err != nil {
		t.Fatalf("SetReadIndex: %v", err)
	}

	g.fill(make([]byte, 32))
	if got, want := g.desc.WriteIndex(), uint64(6); got != want {
		t.Fatalf("expected two more microslices appended, desc write_index=%d, want %d", got, want)
	}
}

func TestGeneratorRunStopsOnClose(t *testing.T) {
	g := NewGenerator(4, 10, 16, 0)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		g.Run(time.Millisecond, stop)
		close(done)
	}()
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after stop was closed")
	}
}
