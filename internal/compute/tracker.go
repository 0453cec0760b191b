package compute

import "time"

// Tracker is supplemental bookkeeping carried over from the original's
// ComputeTimesliceManager (original_source/lib/fles_libfabric/dfs/
// ComputeTimesliceManager.cpp: log_contribution_arrival,
// undo_log_contribution_arrival, log_timeout_timeslice). It is not the
// primary completion algorithm -- red-lantern (Builder.OnWPRecv) remains
// that -- but it keeps a per-timeslice view of which input indices have
// actually contributed, independent of the red-lantern's cheap "min"
// shortcut, and gives operators a timeout diagnostic the red lantern alone
// cannot. The heartbeat-driven redistribution decision does not consult it.
type Tracker struct {
	inputCount int
	timeout    time.Duration

	firstArrival map[uint64]time.Time
	arrived      map[uint64]map[int]struct{}
	timedOut     map[uint64]time.Duration

	now func() time.Time
}

// NewTracker creates a Tracker expecting contributions from inputCount
// input nodes per timeslice, declaring a timeslice timed out once timeout
// has elapsed since its first contribution arrived.
func NewTracker(inputCount int, timeout time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		inputCount:   inputCount,
		timeout:      timeout,
		firstArrival: make(map[uint64]time.Time),
		arrived:      make(map[uint64]map[int]struct{}),
		timedOut:     make(map[uint64]time.Duration),
		now:          now,
	}
}

// LogArrival records that connectionID contributed to timeslice, returning
// true exactly when this call observes the timeslice's final missing
// contribution (all inputCount inputs now accounted for).
func (t *Tracker) LogArrival(connectionID int, timeslice uint64) bool {
	if _, timedOut := t.timedOut[timeslice]; timedOut {
		return false
	}
	if _, ok := t.firstArrival[timeslice]; !ok {
		t.firstArrival[timeslice] = t.now()
	}
	set, ok := t.arrived[timeslice]
	if !ok {
		set = make(map[int]struct{})
		t.arrived[timeslice] = set
	}
	if _, already := set[connectionID]; already {
		return false
	}
	set[connectionID] = struct{}{}
	if len(set) == t.inputCount {
		delete(t.arrived, timeslice)
		delete(t.firstArrival, timeslice)
		return true
	}
	return false
}

// UndoArrival reverses a completion decision for a timeslice that must be
// replayed -- e.g. after a redistribution decision invalidates a prior
// red-lantern advance (original: undo_log_contribution_arrival).
func (t *Tracker) UndoArrival(connectionID int, timeslice uint64, completionAge time.Duration) {
	set := make(map[int]struct{}, t.inputCount)
	for i := 0; i < t.inputCount; i++ {
		if i != connectionID {
			set[i] = struct{}{}
		}
	}
	t.arrived[timeslice] = set
	t.firstArrival[timeslice] = t.now().Add(-completionAge)
	delete(t.timedOut, timeslice)
}

// CheckTimeouts scans pending (not-yet-complete) timeslices in ascending
// order and declares the leading run of them timed out once their age
// exceeds the configured timeout, mirroring the original's
// log_timeout_timeslice early-exit-on-first-non-expired behavior.
func (t *Tracker) CheckTimeouts(ordered []uint64) []uint64 {
	var declared []uint64
	now := t.now()
	for _, ts := range ordered {
		first, ok := t.firstArrival[ts]
		if !ok {
			continue
		}
		age := now.Sub(first)
		if age < t.timeout {
			break
		}
		t.timedOut[ts] = age
		delete(t.firstArrival, ts)
		delete(t.arrived, ts)
		declared = append(declared, ts)
	}
	return declared
}

// IsTimedOut reports whether timeslice was declared timed out.
func (t *Tracker) IsTimedOut(timeslice uint64) bool {
	_, ok := t.timedOut[timeslice]
	return ok
}
