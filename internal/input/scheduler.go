// Package input implements the sending side of the fabric: a Builder that
// walks a local microslice source, hands completed timeslices to one of
// N_out ComputeChannel peers, and reorders descriptor-write completions the
// same way ComputeBuilder reorders arrivals (spec §4.5). The scheduling
// policy is a separate interface (spec §9 REDESIGN FLAGS: assign(T) is
// pulled out of the monolithic DDScheduler the original ties it to -- see
// original_source/lib/fles_libfabric/dfs/DDScheduler.hpp -- so a future
// load-aware policy can replace round robin without touching the builder).
package input

// Scheduler decides which of the N_out compute channels a timeslice should
// be sent to.
type Scheduler interface {
	Assign(timeslice uint64) int
}

// RoundRobin is the default Scheduler: ts mod N_out (spec §4.5).
type RoundRobin struct {
	n int
}

// NewRoundRobin creates a RoundRobin scheduler over n output channels.
func NewRoundRobin(n int) *RoundRobin {
	return &RoundRobin{n: n}
}

func (r *RoundRobin) Assign(timeslice uint64) int {
	return int(timeslice % uint64(r.n))
}

// Failover wraps a Scheduler, steering timeslices away from channels marked
// Exclude once a heartbeat-driven redistribution decision (spec §4.7) has
// been reached for them. A timeslice that would have landed on an excluded
// channel goes to the next non-excluded index after it (wrapping), so all of
// an excluded channel's share lands on that one successor; it is not spread
// round-robin across the remaining channels. The assignment is deterministic
// for a given failed set.
type Failover struct {
	inner   Scheduler
	n       int
	exclude map[int]bool
}

// NewFailover wraps inner, an n-channel Scheduler, with the ability to
// exclude channels later via MarkFailed.
func NewFailover(inner Scheduler, n int) *Failover {
	return &Failover{inner: inner, n: n, exclude: make(map[int]bool)}
}

// MarkFailed excludes idx from future assignments. Idempotent.
func (f *Failover) MarkFailed(idx int) { f.exclude[idx] = true }

// Failed reports whether idx has been excluded.
func (f *Failover) Failed(idx int) bool { return f.exclude[idx] }

func (f *Failover) Assign(timeslice uint64) int {
	cn := f.inner.Assign(timeslice)
	if len(f.exclude) == 0 || !f.exclude[cn] {
		return cn
	}
	for step := 1; step <= f.n; step++ {
		candidate := (cn + step) % f.n
		if !f.exclude[candidate] {
			return candidate
		}
	}
	return cn // every channel excluded: fall back rather than misroute nowhere
}
