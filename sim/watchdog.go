package sim

import (
	"fmt"

	"github.com/difftest/simv/sim/diffstate"
)

// CoreEndInfo records which cores have independently reached their
// instruction ceiling, and their cycles per instruction at that point.
type CoreEndInfo struct {
	Trapped    []bool
	CPI        []float64
	TrappedNum int
}

func newCoreEndInfo(numCores int) CoreEndInfo {
	return CoreEndInfo{
		Trapped: make([]bool, numCores),
		CPI:     make([]float64, numCores),
	}
}

func (c CoreEndInfo) clone() CoreEndInfo {
	return CoreEndInfo{
		Trapped:    append([]bool(nil), c.Trapped...),
		CPI:        append([]float64(nil), c.CPI...),
		TrappedNum: c.TrappedNum,
	}
}

// WatchdogTrip is one core crossing the instruction ceiling.
type WatchdogTrip struct {
	Core  int
	Event diffstate.TrapEvent
	CPI   float64
}

// Watchdog ends a run once every core has retired more instructions than
// MaxInstrs. A zero ceiling disables it. Not safe for concurrent use; Simv
// calls it under its transition lock.
type Watchdog struct {
	maxInstrs uint64
	info      CoreEndInfo
}

// NewWatchdog creates a Watchdog for numCores cores.
func NewWatchdog(maxInstrs uint64, numCores int) *Watchdog {
	if numCores < 1 {
		panic(fmt.Sprintf("sim.NewWatchdog: numCores must be >= 1, got %d", numCores))
	}
	return &Watchdog{maxInstrs: maxInstrs, info: newCoreEndInfo(numCores)}
}

// MaxInstrs returns the configured ceiling.
func (w *Watchdog) MaxInstrs() uint64 { return w.maxInstrs }

// Enabled reports whether a ceiling is configured.
func (w *Watchdog) Enabled() bool { return w.maxInstrs != 0 }

// Check marks every core not yet trapped whose retired-instruction count
// exceeds the ceiling, and returns only the cores marked by this call.
func (w *Watchdog) Check(events func(core int) diffstate.TrapEvent) []WatchdogTrip {
	if !w.Enabled() {
		return nil
	}
	var trips []WatchdogTrip
	for core := range w.info.Trapped {
		if w.info.Trapped[core] {
			continue
		}
		ev := events(core)
		if ev.InstrCnt <= w.maxInstrs {
			continue
		}
		w.info.Trapped[core] = true
		w.info.CPI[core] = ev.CPI()
		w.info.TrappedNum++
		trips = append(trips, WatchdogTrip{Core: core, Event: ev, CPI: w.info.CPI[core]})
	}
	return trips
}

// AllTrapped reports whether every core has crossed the ceiling.
func (w *Watchdog) AllTrapped() bool {
	return w.Enabled() && w.info.TrappedNum == len(w.info.Trapped)
}

// Info returns a copy of the per-core end information.
func (w *Watchdog) Info() CoreEndInfo { return w.info.clone() }
