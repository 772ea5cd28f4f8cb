package sim

import (
	"context"
	"testing"

	"github.com/difftest/simv/sim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewMetrics_GoodTrap_PerCoreFiguresFromFinalEvents verifies that metrics
// report the trap events captured when the run ended.
//
// Given: a 2-core run that hits a good trap on step 4
// When: NewMetrics is built after the run ends
// Then: steps, instructions, cycles and CPI match the captured events
func TestNewMetrics_GoodTrap_PerCoreFiguresFromFinalEvents(t *testing.T) {
	// GIVEN a 2-core run where core 1 retires twice as fast as core 0
	dt := newScripted(2)
	dt.trapAt, dt.trapCode = 4, TrapGood
	dt.instrs = func(step, core int) uint64 { return uint64(step * (core + 1)) }
	s := NewSimv(dt, Config{})
	runUntilDone(t, s, 10)
	require.Equal(t, StatusDone, s.Status())

	// WHEN metrics are collected
	m := NewMetrics(s)

	// THEN they reflect the events captured at step 4
	assert.Equal(t, uint64(4), m.StepsRun)
	assert.Equal(t, []uint64{4, 8}, m.CoreInstrs)
	assert.Equal(t, []uint64{12, 24}, m.CoreCycles)
	for _, cpi := range m.CoreCPI {
		testutil.AssertFloat64Equal(t, "CPI", 3.0, cpi, 1e-9)
	}
}

func TestNewMetrics_WatchdogTrip_CapturesEventAtCrossing(t *testing.T) {
	// GIVEN a single core that crosses the 0x10 ceiling at step 17
	dt := newScripted(1)
	s := NewSimv(dt, Config{MaxInstrs: 0x10})

	// WHEN the run ends on the ceiling
	for i := 0; i < 30 && s.Status() == StatusRunning; i++ {
		s.Step(context.Background())
	}

	// THEN the captured event is the crossing one
	m := NewMetrics(s)
	assert.Equal(t, []uint64{17}, m.CoreInstrs)
	testutil.AssertFloat64Equal(t, "CPI", 3.0, m.CoreCPI[0], 1e-9)
}

func TestNewMetrics_NoEventsCaptured_ZeroFigures(t *testing.T) {
	s := NewSimv(newScripted(3), Config{})
	s.Abort(assert.AnError)

	m := NewMetrics(s)
	assert.Equal(t, uint64(0), m.StepsRun)
	assert.Equal(t, []uint64{0, 0, 0}, m.CoreInstrs)
	assert.Equal(t, []float64{0, 0, 0}, m.CoreCPI)
}
