package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/difftest/simv/sim/diffstate"
	"github.com/difftest/simv/sim/trace"
	"github.com/sirupsen/logrus"
)

// RunStatus is the global state of a co-simulation run.
// It leaves StatusRunning at most once.
type RunStatus int32

const (
	// StatusRunning is the status while the run has not yet ended.
	StatusRunning RunStatus = iota
	// StatusDone is a clean end: good trap or every core over the instruction ceiling.
	StatusDone
	// StatusFailed is any other end: bad trap code, mismatch or fatal error.
	StatusFailed
)

func (s RunStatus) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusDone:
		return "DONE"
	case StatusFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("RunStatus(%d)", int32(s))
	}
}

// Causes recorded in Outcome.Cause.
const (
	CauseGoodTrap   = "good-trap"
	CauseTrapCode   = "trap-code"
	CauseMismatch   = "mismatch"
	CauseInstrLimit = "instr-limit"
	CauseFatal      = "fatal"
)

var (
	// ErrMismatch marks a run failed by a reported DUT/reference divergence.
	ErrMismatch = errors.New("sim: difftest mismatch")
	// ErrTrapCode marks a run failed by an unrecognised trap code.
	ErrTrapCode = errors.New("sim: unknown trap code")
	// ErrFatal marks a run failed by a pipeline or checker error.
	ErrFatal = errors.New("sim: fatal error")
)

// Outcome describes how a run ended.
type Outcome struct {
	Status   RunStatus
	TrapCode int    // TrapRunning unless a trap code ended the run
	Cause    string // one of the Cause constants, empty while running
	Err      error  // non-nil for StatusFailed
	Steps    uint64
}

// ExitCode maps the outcome to a process exit status: 0 while running or on
// DONE, trap code + 1 (at most 255) when a trap code failed the run, 1 for
// every other failure.
func (o Outcome) ExitCode() int {
	switch o.Status {
	case StatusRunning, StatusDone:
		return 0
	}
	if o.TrapCode >= 0 {
		return min(o.TrapCode+1, 255)
	}
	return 1
}

// Config configures run control.
type Config struct {
	MaxInstrs uint64          // per-core instruction ceiling, 0 disables the watchdog
	Trace     *trace.RunTrace // optional
}

// Simv is the run-control state machine. Step is driven by the simulation
// engine; Wait is used by the top-level driver. Every status change goes
// through one lock, so the trap path, the watchdog and Abort cannot race.
type Simv struct {
	dt       Difftest
	numCores int
	watchdog *Watchdog
	trace    *trace.RunTrace

	stepMu sync.Mutex // serialises Step and NStep

	mu       sync.Mutex // guards the fields below
	status   atomic.Int32
	trapCode int
	cause    string
	err      error
	steps    uint64
	final    []diffstate.TrapEvent
	dumped   bool // per-core stats shown for the terminal transition

	halt     context.Context // done once the run leaves RUNNING
	haltStop context.CancelFunc
}

// NewSimv creates a Simv supervising dt.
func NewSimv(dt Difftest, cfg Config) *Simv {
	n := dt.NumCores()
	s := &Simv{
		dt:       dt,
		numCores: n,
		watchdog: NewWatchdog(cfg.MaxInstrs, n),
		trace:    cfg.Trace,
		trapCode: TrapRunning,
		final:    make([]diffstate.TrapEvent, n),
	}
	s.halt, s.haltStop = context.WithCancel(context.Background())
	return s
}

// Status returns the current run status without blocking.
func (s *Simv) Status() RunStatus { return RunStatus(s.status.Load()) }

// Done is closed when the run leaves RUNNING.
func (s *Simv) Done() <-chan struct{} { return s.halt.Done() }

// Wait blocks until the run leaves RUNNING or ctx is done.
func (s *Simv) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return s.Outcome(), ctx.Err()
	case <-s.halt.Done():
		return s.Outcome(), nil
	}
}

// Outcome returns the current outcome.
func (s *Simv) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Outcome{
		Status:   s.Status(),
		TrapCode: s.trapCode,
		Cause:    s.cause,
		Err:      s.err,
		Steps:    s.steps,
	}
}

// EndInfo returns a copy of the watchdog's per-core end information.
func (s *Simv) EndInfo() CoreEndInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watchdog.Info()
}

// FinalEvents returns the per-core trap events captured when the run ended
// (or when each core crossed the instruction ceiling).
func (s *Simv) FinalEvents() []diffstate.TrapEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]diffstate.TrapEvent(nil), s.final...)
}

// Result is the deferred result: 0 while running, else the exit code.
func (s *Simv) Result() int { return s.Outcome().ExitCode() }

// NStep runs up to n steps, stopping early once the run has ended, and
// returns Result.
func (s *Simv) NStep(ctx context.Context, n int) int {
	for i := 0; i < n && s.Status() == StatusRunning && ctx.Err() == nil; i++ {
		s.Step(ctx)
	}
	return s.Result()
}

// Step advances the checker once, then classifies trap codes and runs the
// watchdog. It is a no-op once the run has ended.
func (s *Simv) Step(ctx context.Context) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	if s.Status() != StatusRunning {
		s.mu.Lock()
		s.dumpStatsLocked()
		s.mu.Unlock()
		return
	}

	// Abort must be able to interrupt a checker blocked on the pipeline.
	stepCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.halt, cancel)
	mismatch, err := s.dt.Step(stepCtx)
	stop()
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status() != StatusRunning {
		// Aborted while the checker was busy.
		s.dumpStatsLocked()
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.transitionLocked(StatusFailed, TrapRunning, CauseFatal, fmt.Errorf("%w: step %d: %w", ErrFatal, s.steps+1, err))
		s.dumpStatsLocked()
		return
	}
	s.steps++

	if mismatch {
		s.transitionLocked(StatusFailed, TrapRunning, CauseMismatch, fmt.Errorf("%w at step %d", ErrMismatch, s.steps))
		s.dumpStatsLocked()
		return
	}
	if code := s.dt.State(); code != TrapRunning {
		s.trapLocked(code)
		return
	}
	s.checkWatchdogLocked()
}

// Finish shows the per-core statistics of a run that was aborted between
// steps. Call it from the stepping goroutine once the run has ended; it is a
// no-op while running or when the statistics were already shown.
func (s *Simv) Finish() {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status() != StatusRunning {
		s.dumpStatsLocked()
	}
}

// dumpStatsLocked captures every core's final trap event and shows its
// statistics, once per run. Only the stepping goroutine may call it.
func (s *Simv) dumpStatsLocked() {
	if s.dumped {
		return
	}
	s.dumped = true
	for core := 0; core < s.numCores; core++ {
		s.final[core] = s.dt.TrapEvent(core)
		s.dt.DisplayStats(core)
	}
}

// Abort fails the run with err. Worker goroutines use it to report fatal
// pipeline errors. No-op once the run has ended.
func (s *Simv) Abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionLocked(StatusFailed, TrapRunning, CauseFatal, fmt.Errorf("%w: %w", ErrFatal, err))
}

func (s *Simv) trapLocked(code int) {
	s.dumped = true
	for core := 0; core < s.numCores; core++ {
		ev := s.dt.TrapEvent(core)
		s.final[core] = ev
		entry := logrus.WithFields(logrus.Fields{
			"core":     core,
			"instrCnt": ev.InstrCnt,
			"cycleCnt": ev.CycleCnt,
		})
		if code == TrapGood {
			entry.Infof("HIT GOOD TRAP at pc = %#x", ev.PC)
		} else {
			entry.Errorf("Unknown trap code: %d", code)
		}
		s.trace.RecordTrap(trace.TrapRecord{
			Step:     s.steps,
			Core:     core,
			Code:     code,
			PC:       ev.PC,
			InstrCnt: ev.InstrCnt,
			CycleCnt: ev.CycleCnt,
		})
		s.dt.DisplayStats(core)
	}
	if code == TrapGood {
		s.transitionLocked(StatusDone, code, CauseGoodTrap, nil)
		return
	}
	s.transitionLocked(StatusFailed, code, CauseTrapCode, fmt.Errorf("%w: %d", ErrTrapCode, code))
}

func (s *Simv) checkWatchdogLocked() {
	if !s.watchdog.Enabled() {
		return
	}
	for _, trip := range s.watchdog.Check(s.dt.TrapEvent) {
		s.final[trip.Core] = trip.Event
		logrus.WithFields(logrus.Fields{
			"core":     trip.Core,
			"instrCnt": trip.Event.InstrCnt,
			"cpi":      trip.CPI,
		}).Infof("EXCEEDED CORE-%d MAX INSTR: %#x", trip.Core, s.watchdog.MaxInstrs())
		s.trace.RecordWatchdog(trace.WatchdogRecord{
			Step:     s.steps,
			Core:     trip.Core,
			InstrCnt: trip.Event.InstrCnt,
			CycleCnt: trip.Event.CycleCnt,
			CPI:      trip.CPI,
		})
		s.dt.DisplayStats(trip.Core)
	}
	if s.watchdog.AllTrapped() {
		// every core showed its stats when it crossed the ceiling
		s.dumped = true
		s.transitionLocked(StatusDone, TrapRunning, CauseInstrLimit, nil)
	}
}

// transitionLocked moves the run out of RUNNING. Returns false, changing
// nothing, if the run already ended.
func (s *Simv) transitionLocked(to RunStatus, code int, cause string, err error) bool {
	from := s.Status()
	if from != StatusRunning {
		return false
	}
	s.trapCode = code
	s.cause = cause
	s.err = err
	s.status.Store(int32(to))

	rec := trace.TransitionRecord{Step: s.steps, From: from.String(), To: to.String(), TrapCode: code, Cause: cause}
	if err != nil {
		rec.Err = err.Error()
	}
	s.trace.RecordTransition(rec)

	entry := logrus.WithFields(logrus.Fields{"step": s.steps, "cause": cause})
	if to == StatusDone {
		entry.Info("simulation result::PASS")
	} else {
		entry.Errorf("simulation result::FAIL: %v", err)
	}
	s.haltStop()
	return true
}
