// Package trace records the run-control decisions of a co-simulation run.
// This package has no dependencies on sim/: it stores pure data types.
package trace

// TransitionRecord captures a run status change.
type TransitionRecord struct {
	Step     uint64
	From     string
	To       string
	TrapCode int
	Cause    string
	Err      string // empty unless the run failed
}

// TrapRecord captures one core's trap event when a trap code ended the run.
type TrapRecord struct {
	Step     uint64
	Core     int
	Code     int
	PC       uint64
	InstrCnt uint64
	CycleCnt uint64
}

// WatchdogRecord captures one core crossing the instruction ceiling.
type WatchdogRecord struct {
	Step     uint64
	Core     int
	InstrCnt uint64
	CycleCnt uint64
	CPI      float64
}
