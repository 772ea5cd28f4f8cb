package trace

// TraceSummary aggregates statistics from a RunTrace.
type TraceSummary struct {
	Transitions   int     `yaml:"transitions"`
	FinalStatus   string  `yaml:"final_status,omitempty"`
	FinalCause    string  `yaml:"final_cause,omitempty"`
	TrapEvents    int     `yaml:"trap_events"`
	WatchdogTrips int     `yaml:"watchdog_trips"`
	MeanCPI       float64 `yaml:"mean_cpi"`
	MaxCPI        float64 `yaml:"max_cpi"`
	LastTripStep  uint64  `yaml:"last_trip_step"`
}

// Summarize computes aggregate statistics from a RunTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(rt *RunTrace) *TraceSummary {
	summary := &TraceSummary{}
	if rt == nil {
		return summary
	}

	summary.Transitions = len(rt.Transitions)
	if n := len(rt.Transitions); n > 0 {
		summary.FinalStatus = rt.Transitions[n-1].To
		summary.FinalCause = rt.Transitions[n-1].Cause
	}
	summary.TrapEvents = len(rt.Traps)

	if len(rt.WatchdogTrips) > 0 {
		totalCPI := 0.0
		for _, w := range rt.WatchdogTrips {
			totalCPI += w.CPI
			if w.CPI > summary.MaxCPI {
				summary.MaxCPI = w.CPI
			}
			if w.Step > summary.LastTripStep {
				summary.LastTripStep = w.Step
			}
		}
		summary.MeanCPI = totalCPI / float64(len(rt.WatchdogTrips))
	}
	summary.WatchdogTrips = len(rt.WatchdogTrips)

	return summary
}
