package input

import "time"

// IntervalStats accumulates throughput counters between two points in time
// and never feeds back into scheduling -- logging only (spec §4.5 run_scheduler
// periodic reporting; grounded on the original's InputIntervalInfo.hpp /
// IntervalMetaData.hpp, which the original's load-aware DDScheduler consumes
// but which this redesign deliberately keeps out of assign(T), per the
// supplemented-features list in SPEC_FULL.md: a diagnostics-only role here).
type IntervalStats struct {
	start      time.Time
	bytesSent  uint64
	descSent   uint64
	timeslices uint64
}

// NewIntervalStats begins a new interval at now.
func NewIntervalStats(now time.Time) *IntervalStats {
	return &IntervalStats{start: now}
}

// RecordSend folds one posted timeslice's byte/descriptor counts into the
// running interval.
func (s *IntervalStats) RecordSend(dataBytes, descItems uint64) {
	s.bytesSent += dataBytes
	s.descSent += descItems
	s.timeslices++
}

// Snapshot is an immutable copy of the interval's counters, suitable for a
// status line or log line.
type Snapshot struct {
	Elapsed     time.Duration
	BytesSent   uint64
	DescSent    uint64
	Timeslices  uint64
	BytesPerSec float64
	DescPerSec  float64
}

// Snapshot reports the interval's counters as of now without resetting them.
func (s *IntervalStats) Snapshot(now time.Time) Snapshot {
	elapsed := now.Sub(s.start)
	snap := Snapshot{
		Elapsed:    elapsed,
		BytesSent:  s.bytesSent,
		DescSent:   s.descSent,
		Timeslices: s.timeslices,
	}
	secs := elapsed.Seconds()
	if secs > 0 {
		snap.BytesPerSec = float64(s.bytesSent) / secs
		snap.DescPerSec = float64(s.descSent) / secs
	}
	return snap
}

// Reset starts a fresh interval at now, typically called right after
// Snapshot at a periodic reporting boundary.
func (s *IntervalStats) Reset(now time.Time) {
	s.start = now
	s.bytesSent = 0
	s.descSent = 0
	s.timeslices = 0
}
