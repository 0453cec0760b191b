package input

import "testing"

func TestRoundRobinAssignsInOrder(t *testing.T) {
	s := NewRoundRobin(3)
	want := []int{0, 1, 2, 0, 1, 2}
	for ts, exp := range want {
		if got := s.Assign(uint64(ts)); got != exp {
			t.Fatalf("ts=%d: expected channel %d, got %d", ts, exp, got)
		}
	}
}

func TestFailoverRoutesAroundExcludedChannel(t *testing.T) {
	f := NewFailover(NewRoundRobin(3), 3)
	f.MarkFailed(1)

	want := []int{0, 2, 2, 0, 2, 2}
	for ts, exp := range want {
		if got := f.Assign(uint64(ts)); got != exp {
			t.Fatalf("ts=%d: expected channel %d, got %d", ts, exp, got)
		}
	}
}

func TestFailoverNoOpUntilMarked(t *testing.T) {
	f := NewFailover(NewRoundRobin(2), 2)
	if got := f.Assign(1); got != 1 {
		t.Fatalf("expected unmodified round robin before MarkFailed, got %d", got)
	}
}
