// Package difftest implements sim.Difftest on top of the snapshots assembled
// from the hardware stream. Each Step takes one complete Snapshot, keeps a
// copy of every core's state, and compares it against the reference proxy
// when one is configured.
package difftest

import (
	"context"
	"errors"
	"fmt"

	"github.com/difftest/simv/sim"
	"github.com/difftest/simv/sim/diffstate"
	"github.com/sirupsen/logrus"
)

// ErrStreamEnded is returned by Step when the hardware stream ended before
// the run reached a terminal state.
var ErrStreamEnded = errors.New("difftest: hardware stream ended")

// Source is where the checker takes complete snapshots from.
type Source interface {
	Take(ctx context.Context) (*diffstate.Snapshot, error)
	Drain(s *diffstate.Snapshot)
}

// Checker is the snapshot-driven comparison engine.
type Checker struct {
	src   Source
	proxy sim.RefProxy // nil runs without reference comparison

	cores   []diffstate.CoreState
	commits []uint64 // instructions committed per core, as counted by the checker
	steps   uint64
}

var _ sim.Difftest = (*Checker)(nil)

// New creates a Checker for numCores cores. proxy may be nil.
func New(src Source, numCores int, proxy sim.RefProxy) *Checker {
	if numCores < 1 {
		panic(fmt.Sprintf("difftest.New: numCores must be >= 1, got %d", numCores))
	}
	return &Checker{
		src:     src,
		proxy:   proxy,
		cores:   make([]diffstate.CoreState, numCores),
		commits: make([]uint64, numCores),
	}
}

// NumCores returns the number of cores under test.
func (c *Checker) NumCores() int { return len(c.cores) }

// Steps returns the number of snapshots checked.
func (c *Checker) Steps() uint64 { return c.steps }

// Step blocks for the next snapshot, copies it, hands the buffer back and
// compares every core against the reference.
func (c *Checker) Step(ctx context.Context) (bool, error) {
	snap, err := c.src.Take(ctx)
	if err != nil {
		if errors.Is(err, diffstate.ErrSealed) {
			return false, fmt.Errorf("%w after %d snapshots", ErrStreamEnded, c.steps)
		}
		return false, err
	}
	copy(c.cores, snap.Cores)
	seq := snap.Seq
	c.src.Drain(snap)
	c.steps++

	mismatch := false
	for core := range c.cores {
		st := &c.cores[core]
		if st.Commit.Valid {
			c.commits[core] += uint64(st.Commit.NCommit)
		}
		if c.proxy != nil && !c.proxy.Compare(core, st) {
			logrus.WithFields(logrus.Fields{"core": core, "snapshot": seq}).
				Errorf("mismatch against reference at pc = %#x", st.Trap.PC)
			mismatch = true
		}
	}
	return mismatch, nil
}

// State returns the trap code of the first trapped core, or sim.TrapRunning.
func (c *Checker) State() int {
	for core := range c.cores {
		if c.cores[core].Trap.HasTrap {
			return int(c.cores[core].Trap.Code)
		}
	}
	return sim.TrapRunning
}

// TrapEvent returns the latest trap information of core.
func (c *Checker) TrapEvent(core int) diffstate.TrapEvent {
	return c.cores[core].Trap
}

// DisplayStats logs the execution statistics of core.
func (c *Checker) DisplayStats(core int) {
	ev := c.cores[core].Trap
	ipc := 0.0
	if ev.CycleCnt != 0 {
		ipc = float64(ev.InstrCnt) / float64(ev.CycleCnt)
	}
	logrus.WithFields(logrus.Fields{
		"core":      core,
		"instrCnt":  ev.InstrCnt,
		"cycleCnt":  ev.CycleCnt,
		"ipc":       fmt.Sprintf("%.6f", ipc),
		"committed": c.commits[core],
	}).Info("core statistics")
}
