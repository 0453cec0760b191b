package heartbeat

import (
	"testing"

	"github.com/cbm-fles/flesnet-sub001/internal/wire"
)

func TestConsensusFoldsMaxDescMinTrigger(t *testing.T) {
	// spec §8 scenario 5: two input nodes independently report compute node
	// k=2 timed out, input0 with {last_completed_desc:17, timeslice_trigger:20},
	// input1 with {15,22}; consensus must fold to {17,20}.
	c := NewConsensus(2)

	decision, ready := c.AddReport(0, wire.FailureInfo{Valid: true, Index: 2, LastCompletedDesc: 17, TimesliceTrigger: 20})
	if ready {
		t.Fatal("expected not ready after only one of two reporters")
	}

	decision, ready = c.AddReport(1, wire.FailureInfo{Valid: true, Index: 2, LastCompletedDesc: 15, TimesliceTrigger: 22})
	if !ready {
		t.Fatal("expected consensus to be ready once both reporters weighed in")
	}
	if decision.LastCompletedDesc != 17 {
		t.Fatalf("expected consensus last_completed_desc=max(17,15)=17, got %d", decision.LastCompletedDesc)
	}
	if decision.TimesliceTrigger != 20 {
		t.Fatalf("expected consensus timeslice_trigger=min(20,22)=20, got %d", decision.TimesliceTrigger)
	}
	if decision.Index != 2 {
		t.Fatalf("expected decision for index=2, got %d", decision.Index)
	}
}

func TestConsensusTracksDistinctFailedIndicesIndependently(t *testing.T) {
	c := NewConsensus(2)

	_, ready := c.AddReport(0, wire.FailureInfo{Valid: true, Index: 1, LastCompletedDesc: 5, TimesliceTrigger: 9})
	if ready {
		t.Fatal("index 1 should not be ready yet")
	}
	_, ready = c.AddReport(0, wire.FailureInfo{Valid: true, Index: 2, LastCompletedDesc: 1, TimesliceTrigger: 3})
	if ready {
		t.Fatal("index 2 should not be ready yet")
	}

	decision, ready := c.AddReport(1, wire.FailureInfo{Valid: true, Index: 2, LastCompletedDesc: 2, TimesliceTrigger: 3})
	if !ready {
		t.Fatal("index 2 should be ready after its second distinct reporter")
	}
	if decision.Index != 2 || decision.LastCompletedDesc != 2 {
		t.Fatalf("unexpected decision for index 2: %+v", decision)
	}
	if c.Pending(1) != 1 {
		t.Fatalf("expected index 1 to still have exactly 1 pending report, got %d", c.Pending(1))
	}
}

func TestConsensusDuplicateReporterDoesNotDoubleCount(t *testing.T) {
	c := NewConsensus(2)
	_, ready := c.AddReport(0, wire.FailureInfo{Valid: true, Index: 0, LastCompletedDesc: 1, TimesliceTrigger: 2})
	if ready {
		t.Fatal("should not be ready after one reporter")
	}
	// same reporter reports again (e.g. a retried broadcast) -- must not
	// count as a second distinct reporter
	_, ready = c.AddReport(0, wire.FailureInfo{Valid: true, Index: 0, LastCompletedDesc: 1, TimesliceTrigger: 2})
	if ready {
		t.Fatal("duplicate reporter must not trigger readiness on its own")
	}
}
