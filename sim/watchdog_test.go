package sim

import (
	"testing"

	"github.com/difftest/simv/sim/diffstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventsOf(counts ...uint64) func(int) diffstate.TrapEvent {
	return func(core int) diffstate.TrapEvent {
		return diffstate.TrapEvent{InstrCnt: counts[core], CycleCnt: 2 * counts[core]}
	}
}

func TestWatchdog_CoreOverCeiling_MarkedExactlyOnce(t *testing.T) {
	// GIVEN a ceiling of 0x100 on two cores
	w := NewWatchdog(0x100, 2)

	// WHEN core 0 is over the ceiling for several consecutive checks
	first := w.Check(eventsOf(0x101, 0x10))
	second := w.Check(eventsOf(0x180, 0x20))
	third := w.Check(eventsOf(0x200, 0x30))

	// THEN core 0 is reported only by the first check
	require.Len(t, first, 1)
	assert.Equal(t, 0, first[0].Core)
	assert.InDelta(t, 2.0, first[0].CPI, 1e-12)
	assert.Empty(t, second)
	assert.Empty(t, third)

	info := w.Info()
	assert.Equal(t, 1, info.TrappedNum)
	assert.Equal(t, []bool{true, false}, info.Trapped)
	assert.False(t, w.AllTrapped())
}

func TestWatchdog_EqualToCeiling_NotTrapped(t *testing.T) {
	w := NewWatchdog(0x100, 1)
	assert.Empty(t, w.Check(eventsOf(0x100)))
	assert.Len(t, w.Check(eventsOf(0x101)), 1)
	assert.True(t, w.AllTrapped())
}

func TestWatchdog_ZeroCeiling_Disabled(t *testing.T) {
	w := NewWatchdog(0, 2)
	assert.False(t, w.Enabled())
	assert.Nil(t, w.Check(eventsOf(1<<40, 1<<40)))
	assert.False(t, w.AllTrapped())
}

func TestWatchdog_Info_ReturnsCopy(t *testing.T) {
	w := NewWatchdog(1, 1)
	w.Check(eventsOf(5))
	info := w.Info()
	info.Trapped[0] = false
	info.TrappedNum = 0
	assert.True(t, w.Info().Trapped[0])
	assert.Equal(t, 1, w.Info().TrappedNum)
}
