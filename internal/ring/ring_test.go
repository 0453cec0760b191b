package ring

import "testing"

func TestBufferAtWraps(t *testing.T) {
	b := New[int](2) // size 4
	if b.Size() != 4 {
		t.Fatalf("expected size 4, got %d", b.Size())
	}
	*b.At(0) = 10
	*b.At(4) = 99 // wraps to slot 0
	if got := *b.At(0); got != 99 {
		t.Fatalf("expected slot 0 to be overwritten via wrap, got %d", got)
	}
	if got := *b.At(8); got != 99 {
		t.Fatalf("At(8) should alias slot 0, got %d", got)
	}
}

func TestBufferMask(t *testing.T) {
	b := New[byte](10) // size 1024
	if b.Mask() != 1023 {
		t.Fatalf("expected mask 1023, got %d", b.Mask())
	}
}
