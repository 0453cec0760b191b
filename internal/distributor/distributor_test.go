package distributor

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/compute"
)

func TestPostAndReceiveWorkItem(t *testing.T) {
	d := New(4)
	if err := d.PostWorkItem(compute.WorkItem{TsPos: 1}); err != nil {
		t.Fatal(err)
	}
	w, ok := d.ReceiveWorkItem()
	if !ok || w.TsPos != 1 {
		t.Fatalf("expected to receive ts_pos=1, got %+v ok=%v", w, ok)
	}
}

func TestBackpressureWhenFull(t *testing.T) {
	d := New(1)
	if err := d.PostWorkItem(compute.WorkItem{TsPos: 0}); err != nil {
		t.Fatal(err)
	}
	if err := d.PostWorkItem(compute.WorkItem{TsPos: 1}); err != ErrDistributorBackpressure {
		t.Fatalf("expected backpressure error, got %v", err)
	}
}

func TestShutdownWakesReceivers(t *testing.T) {
	d := New(1)
	done := make(chan bool)
	go func() {
		_, ok := d.ReceiveWorkItem()
		done <- ok
	}()
	d.Shutdown()
	if ok := <-done; ok {
		t.Fatal("expected receiver to observe closed queue (ok=false)")
	}
}

func TestCompletionRoundTrip(t *testing.T) {
	d := New(4)
	if err := d.PostCompletion(Completion{TsPos: 5}); err != nil {
		t.Fatal(err)
	}
	c, ok := d.TryReceiveCompletion()
	if !ok || c.TsPos != 5 {
		t.Fatalf("expected completion ts_pos=5, got %+v ok=%v", c, ok)
	}
	if _, ok := d.TryReceiveCompletion(); ok {
		t.Fatal("expected empty queue to report ok=false")
	}
}
