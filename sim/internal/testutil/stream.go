// Package testutil provides shared test infrastructure for the co-simulation
// packages: deterministic core states, hardware record streams and float
// assertion helpers used across sim/ test packages.
package testutil

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/difftest/simv/sim/diffstate"
)

// StepState returns a committed core state whose registers encode step and
// core, so a record from the wrong step or core never compares equal.
func StepState(step, core int) diffstate.CoreState {
	var s diffstate.CoreState
	s.Commit = diffstate.Commit{Valid: true, NCommit: 1}
	s.Trap.PC = 0x80000000 + uint64(step)*4
	s.Trap.InstrCnt = uint64(step)
	s.Trap.CycleCnt = 2 * uint64(step)
	for i := range s.Regs {
		s.Regs[i] = uint64(step)<<32 | uint64(core)<<8 | uint64(i)
	}
	return s
}

// Stream builds a hardware record stream step by step. Within a step, cores
// are emitted in descending order so assembly never sees them in index order.
type Stream struct {
	buf bytes.Buffer
}

// Add appends one chunk for core.
func (s *Stream) Add(core int, st diffstate.CoreState) *Stream {
	s.buf.Write(diffstate.EncodeChunk(uint8(core), st))
	return s
}

// Steps appends steps from..to (inclusive) of StepState for every core.
func (s *Stream) Steps(from, to, cores int) *Stream {
	for step := from; step <= to; step++ {
		for c := cores - 1; c >= 0; c-- {
			s.Add(c, StepState(step, c))
		}
	}
	return s
}

// Bytes returns the encoded stream.
func (s *Stream) Bytes() []byte { return s.buf.Bytes() }

// WriteFile writes the stream to name under a test temp dir and returns its path.
func (s *Stream) WriteFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, s.buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write stream: %v", err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
