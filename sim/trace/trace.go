package trace

// TraceLevel controls the verbosity of run tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures status transitions, trap events and watchdog trips.
	TraceLevelEvents TraceLevel = "events"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// RunTrace collects run-control records. All Record methods are no-ops on a
// nil *RunTrace, so callers may hold a nil trace when tracing is off.
type RunTrace struct {
	Config        TraceConfig
	Transitions   []TransitionRecord
	Traps         []TrapRecord
	WatchdogTrips []WatchdogRecord
}

// NewRunTrace returns a RunTrace ready for recording, or nil when config
// disables tracing.
func NewRunTrace(config TraceConfig) *RunTrace {
	if config.Level == TraceLevelNone || config.Level == "" {
		return nil
	}
	return &RunTrace{
		Config:        config,
		Transitions:   make([]TransitionRecord, 0, 1),
		Traps:         make([]TrapRecord, 0),
		WatchdogTrips: make([]WatchdogRecord, 0),
	}
}

// RecordTransition appends a status transition record.
func (rt *RunTrace) RecordTransition(record TransitionRecord) {
	if rt == nil {
		return
	}
	rt.Transitions = append(rt.Transitions, record)
}

// RecordTrap appends a trap event record.
func (rt *RunTrace) RecordTrap(record TrapRecord) {
	if rt == nil {
		return
	}
	rt.Traps = append(rt.Traps, record)
}

// RecordWatchdog appends a watchdog trip record.
func (rt *RunTrace) RecordWatchdog(record WatchdogRecord) {
	if rt == nil {
		return
	}
	rt.WatchdogTrips = append(rt.WatchdogTrips, record)
}
