package sim

import (
	"context"
	"errors"

	"github.com/difftest/simv/sim/diffstate"
)

const (
	// TrapRunning is the trap-status code while every core is still executing.
	TrapRunning = -1
	// TrapGood is the trap-status code of a clean termination.
	TrapGood = 0
)

// ErrNoRefProxy is returned by NewRefProxy when no implementation is linked in.
var ErrNoRefProxy = errors.New("sim: no reference proxy registered")

// Difftest is the comparison engine consulted once per simulation step.
type Difftest interface {
	// Step advances the checker by one step and reports whether the DUT
	// diverged from the reference model.
	Step(ctx context.Context) (mismatch bool, err error)
	// State returns TrapRunning while the run continues, otherwise the trap code.
	State() int
	// TrapEvent returns the latest trap information of core.
	TrapEvent(core int) diffstate.TrapEvent
	// DisplayStats reports the execution statistics of core.
	DisplayStats(core int)
	// NumCores returns the number of cores under test.
	NumCores() int
}

// RefProxy compares one core's DUT state against the reference model.
type RefProxy interface {
	Compare(core int, dut *diffstate.CoreState) bool
	Close() error
}

// NewRefProxyFunc builds a RefProxy for the reference model at path.
// Set by sim/refproxy's init(); nil when nothing registered an implementation.
var NewRefProxyFunc func(path string, numCores int) (RefProxy, error)

// NewRefProxy builds the registered RefProxy for path.
func NewRefProxy(path string, numCores int) (RefProxy, error) {
	if NewRefProxyFunc == nil {
		return nil, ErrNoRefProxy
	}
	return NewRefProxyFunc(path, numCores)
}
