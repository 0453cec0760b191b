package heartbeat

import "github.com/cbm-fles/flesnet-sub001/internal/wire"

// Consensus folds the per-reporter FailureInfo broadcasts input nodes
// exchange about a compute node they have independently classified as timed
// out (spec §4.7): once every expected reporter has weighed in on the same
// failed index, the decision is last_completed_desc=max and
// timeslice_trigger=min across all reports, the most conservative choice
// that does not lose a contribution any single reporter actually observed.
type Consensus struct {
	expectedReporters int
	reports           map[uint32]map[int]wire.FailureInfo
}

// NewConsensus creates a Consensus expecting a decision to require reports
// from expectedReporters distinct input nodes before it is considered final.
func NewConsensus(expectedReporters int) *Consensus {
	return &Consensus{
		expectedReporters: expectedReporters,
		reports:           make(map[uint32]map[int]wire.FailureInfo),
	}
}

// AddReport records reporterIdx's FailureInfo for the compute node named by
// info.Index. Once expectedReporters distinct reporters have reported for
// that index, ready is true and decision holds the folded consensus.
func (c *Consensus) AddReport(reporterIdx int, info wire.FailureInfo) (decision wire.FailureInfo, ready bool) {
	byReporter, ok := c.reports[info.Index]
	if !ok {
		byReporter = make(map[int]wire.FailureInfo)
		c.reports[info.Index] = byReporter
	}
	byReporter[reporterIdx] = info

	if len(byReporter) < c.expectedReporters {
		return wire.FailureInfo{}, false
	}

	decision = wire.FailureInfo{Valid: true, Index: info.Index}
	first := true
	for _, r := range byReporter {
		if first {
			decision.LastCompletedDesc = r.LastCompletedDesc
			decision.TimesliceTrigger = r.TimesliceTrigger
			first = false
			continue
		}
		if r.LastCompletedDesc > decision.LastCompletedDesc {
			decision.LastCompletedDesc = r.LastCompletedDesc
		}
		if r.TimesliceTrigger < decision.TimesliceTrigger {
			decision.TimesliceTrigger = r.TimesliceTrigger
		}
	}
	delete(c.reports, info.Index)
	return decision, true
}

// Pending reports how many reporters have weighed in so far for index,
// for diagnostics.
func (c *Consensus) Pending(index uint32) int {
	return len(c.reports[index])
}
