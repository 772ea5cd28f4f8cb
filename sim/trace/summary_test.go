package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	rt := NewRunTrace(TraceConfig{Level: TraceLevelEvents})

	// WHEN summarized
	summary := Summarize(rt)

	// THEN all counts are zero
	if summary.Transitions != 0 {
		t.Errorf("expected 0 transitions, got %d", summary.Transitions)
	}
	if summary.FinalStatus != "" {
		t.Errorf("expected no final status, got %q", summary.FinalStatus)
	}
	if summary.WatchdogTrips != 0 || summary.TrapEvents != 0 {
		t.Error("expected 0 trips and trap events")
	}
	if summary.MeanCPI != 0 || summary.MaxCPI != 0 {
		t.Error("expected 0 CPI values")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace of a watchdog-ended run on two cores
	rt := NewRunTrace(TraceConfig{Level: TraceLevelEvents})
	rt.RecordWatchdog(WatchdogRecord{Step: 10, Core: 0, InstrCnt: 0x101, CycleCnt: 0x202, CPI: 2.0})
	rt.RecordWatchdog(WatchdogRecord{Step: 14, Core: 1, InstrCnt: 0x102, CycleCnt: 0x102, CPI: 1.0})
	rt.RecordTransition(TransitionRecord{Step: 14, From: "RUNNING", To: "DONE", TrapCode: -1, Cause: "instr-limit"})

	// WHEN summarized
	summary := Summarize(rt)

	// THEN counts and CPI aggregates are correct
	if summary.Transitions != 1 {
		t.Errorf("expected 1 transition, got %d", summary.Transitions)
	}
	if summary.FinalStatus != "DONE" || summary.FinalCause != "instr-limit" {
		t.Errorf("expected DONE/instr-limit, got %s/%s", summary.FinalStatus, summary.FinalCause)
	}
	if summary.WatchdogTrips != 2 {
		t.Errorf("expected 2 watchdog trips, got %d", summary.WatchdogTrips)
	}
	if summary.MeanCPI != 1.5 {
		t.Errorf("expected mean CPI 1.5, got %f", summary.MeanCPI)
	}
	if summary.MaxCPI != 2.0 {
		t.Errorf("expected max CPI 2.0, got %f", summary.MaxCPI)
	}
	if summary.LastTripStep != 14 {
		t.Errorf("expected last trip at step 14, got %d", summary.LastTripStep)
	}
}

func TestSummarize_NilTrace_SafeZeroValues(t *testing.T) {
	// GIVEN a nil trace
	// WHEN summarized
	summary := Summarize(nil)

	// THEN returns zero values without panic
	if summary.Transitions != 0 {
		t.Errorf("expected 0, got %d", summary.Transitions)
	}
}
