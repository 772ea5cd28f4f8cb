// Tracks run-wide and per-core figures reported at the end of a run.

package sim

import "fmt"

// Metrics aggregates statistics about the run for final reporting.
type Metrics struct {
	RecordsRead        uint64 // per-core records pulled off the hardware stream
	SnapshotsAssembled uint64 // complete multi-core snapshots handed to the checker
	StepsRun           uint64 // checker steps completed

	CoreInstrs []uint64  // retired instructions per core at the end of the run
	CoreCycles []uint64  // cycles per core at the end of the run
	CoreCPI    []float64 // cycles per instruction per core
}

// NewMetrics fills the per-core figures from the run's final trap events.
func NewMetrics(s *Simv) *Metrics {
	events := s.FinalEvents()
	m := &Metrics{
		StepsRun:   s.Outcome().Steps,
		CoreInstrs: make([]uint64, len(events)),
		CoreCycles: make([]uint64, len(events)),
		CoreCPI:    make([]float64, len(events)),
	}
	for i, ev := range events {
		m.CoreInstrs[i] = ev.InstrCnt
		m.CoreCycles[i] = ev.CycleCnt
		m.CoreCPI[i] = ev.CPI()
	}
	return m
}

// Print displays aggregated metrics at the end of the run.
func (m *Metrics) Print() {
	fmt.Println("=== Co-simulation Metrics ===")
	fmt.Printf("Records Read         : %d\n", m.RecordsRead)
	fmt.Printf("Snapshots Assembled  : %d\n", m.SnapshotsAssembled)
	fmt.Printf("Steps Run            : %d\n", m.StepsRun)
	for i := range m.CoreInstrs {
		fmt.Printf("Core %-2d              : instrCnt=%d cycleCnt=%d CPI=%.4f\n",
			i, m.CoreInstrs[i], m.CoreCycles[i], m.CoreCPI[i])
	}
}
