package input

import (
	"testing"
	"time"
)

func TestIntervalStatsComputesRate(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewIntervalStats(start)
	s.RecordSend(1000, 1)
	s.RecordSend(1000, 1)

	snap := s.Snapshot(start.Add(2 * time.Second))
	if snap.BytesSent != 2000 || snap.DescSent != 2 || snap.Timeslices != 2 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.BytesPerSec != 1000 {
		t.Fatalf("expected 1000 bytes/sec over 2s for 2000 bytes, got %v", snap.BytesPerSec)
	}
}

func TestIntervalStatsResetClearsCounters(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewIntervalStats(start)
	s.RecordSend(500, 1)
	s.Reset(start.Add(time.Second))

	snap := s.Snapshot(start.Add(time.Second))
	if snap.BytesSent != 0 || snap.DescSent != 0 {
		t.Fatalf("expected counters cleared after reset, got %+v", snap)
	}
}
