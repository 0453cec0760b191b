// Package heartbeat implements the liveness probing, inactivity/timeout
// classification, and failure-decision consensus of spec §4.7. It runs in
// both InputBuilder and ComputeBuilder, one Layer per connection group, with
// explicitly-passed state instead of the process-wide singleton managers
// spec §9 flags for redesign (ComputeHeartbeatManager/InputHeartbeatManager
// in original_source/lib/fles_libfabric/dfs/ were process-wide instance()
// singletons; here a builder simply constructs and owns its own Layer).
package heartbeat

import (
	"sort"
	"time"
)

// ChannelState is the per-channel liveness state of spec §3/§4.7.
type ChannelState struct {
	lastRecvTime time.Time
	hasRecv      bool

	latencyHistory []time.Duration // ring of H most recent inter-heartbeat gaps
	historyPos     int
	historyFull    bool
	sumLatency     time.Duration

	lastSentID uint64
	unackedIDs map[uint64]struct{}

	inactive bool
	timedOut bool
}

func newChannelState(h int) *ChannelState {
	return &ChannelState{
		latencyHistory: make([]time.Duration, h),
		unackedIDs:     make(map[uint64]struct{}),
	}
}

// Layer is one heartbeat connection group (spec §4.7).
type Layer struct {
	channels map[int]*ChannelState

	h              int
	inactiveFactor float64
	timeoutFactor  float64
	inactiveRetry  int

	now func() time.Time
}

// NewLayer creates a Layer tracking H recent latency samples per channel,
// classifying a channel inactive once the elapsed time since its last
// received heartbeat reaches avg_latency*inactiveFactor (while fewer than
// inactiveRetry pings remain unacked), and timed_out once it reaches
// avg_latency*timeoutFactor with at least inactiveRetry pings unacked.
// inactiveFactor must be < timeoutFactor (spec §4.7).
func NewLayer(h int, inactiveFactor, timeoutFactor float64, inactiveRetry int, now func() time.Time) *Layer {
	if now == nil {
		now = time.Now
	}
	return &Layer{
		channels:       make(map[int]*ChannelState),
		h:              h,
		inactiveFactor: inactiveFactor,
		timeoutFactor:  timeoutFactor,
		inactiveRetry:  inactiveRetry,
		now:            now,
	}
}

func (l *Layer) channel(idx int) *ChannelState {
	c, ok := l.channels[idx]
	if !ok {
		c = newChannelState(l.h)
		l.channels[idx] = c
	}
	return c
}

// OnHeartbeatSent records that a heartbeat with the given message id was
// just sent on channel idx, awaiting acknowledgement.
func (l *Layer) OnHeartbeatSent(idx int, id uint64) {
	c := l.channel(idx)
	c.lastSentID = id
	c.unackedIDs[id] = struct{}{}
}

// OnHeartbeatRecv records receipt of any heartbeat message (ping or ack)
// from the peer on channel idx, updating last_recv_time and folding the
// inter-arrival gap into latency_history (spec §4.7: "updates last_recv_time
// and latency_history").
func (l *Layer) OnHeartbeatRecv(idx int) {
	c := l.channel(idx)
	now := l.now()
	if c.hasRecv {
		gap := now.Sub(c.lastRecvTime)
		old := c.latencyHistory[c.historyPos]
		c.sumLatency += gap - old
		c.latencyHistory[c.historyPos] = gap
		c.historyPos = (c.historyPos + 1) % l.h
		if c.historyPos == 0 {
			c.historyFull = true
		}
	}
	c.lastRecvTime = now
	c.hasRecv = true
}

// OnAck prunes unacked ping ids up to and including id (spec §4.7: "older
// pending IDs are pruned when any higher ID is acknowledged") and records
// the ack as a received heartbeat.
func (l *Layer) OnAck(idx int, id uint64) {
	c := l.channel(idx)
	for pending := range c.unackedIDs {
		if pending <= id {
			delete(c.unackedIDs, pending)
		}
	}
	l.OnHeartbeatRecv(idx)
}

// sampleCount is the number of latency samples in the history ring: H once
// it has filled, otherwise the samples recorded so far. avgLatency divides
// sum_latency by this count, not by H, so before the ring fills the average
// is over the recorded samples only; it returns 0 when no sample has landed
// (in which case classification is deferred -- a channel that has never
// completed a round trip should not be judged inactive on its first tick).
func (c *ChannelState) sampleCount(h int) int {
	if c.historyFull {
		return h
	}
	return c.historyPos
}

func (c *ChannelState) avgLatency(h int) time.Duration {
	n := c.sampleCount(h)
	if n == 0 {
		return 0
	}
	return c.sumLatency / time.Duration(n)
}

// Classify re-evaluates and returns the inactive/timed_out status of
// channel idx (spec §4.7 classification rules).
func (l *Layer) Classify(idx int) (inactive, timedOut bool) {
	c := l.channel(idx)
	if !c.hasRecv || c.sampleCount(l.h) == 0 {
		return false, false
	}
	avg := c.avgLatency(l.h)
	elapsed := l.now().Sub(c.lastRecvTime)
	unacked := len(c.unackedIDs)

	inactive = elapsed >= time.Duration(float64(avg)*l.inactiveFactor) && unacked < l.inactiveRetry
	timedOut = elapsed >= time.Duration(float64(avg)*l.timeoutFactor) && unacked >= l.inactiveRetry
	c.inactive = inactive
	c.timedOut = timedOut
	return inactive, timedOut
}

// UnackedCount exposes the pending-ping count for diagnostics/tests.
func (l *Layer) UnackedCount(idx int) int {
	return len(l.channel(idx).unackedIDs)
}

// Indices returns the channel indices currently tracked by the Layer, sorted
// ascending, for callers that enumerate channel health (e.g. statusline).
func (l *Layer) Indices() []int {
	idx := make([]int, 0, len(l.channels))
	for i := range l.channels {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
