// Package refproxy provides a RefProxy that replays a golden record stream
// captured from a reference run, in the same wire format the hardware emits.
//
// Blank-import this package to register it with sim.NewRefProxyFunc.
package refproxy

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/difftest/simv/sim"
	"github.com/difftest/simv/sim/diffstate"
	"github.com/sirupsen/logrus"
)

// ErrSharedObject is returned for a native reference model; loading one needs
// a cgo host.
var ErrSharedObject = errors.New("refproxy: shared-object reference models are not supported")

func init() {
	sim.NewRefProxyFunc = func(path string, numCores int) (sim.RefProxy, error) {
		return Open(path, numCores)
	}
}

// Golden compares DUT states with the next golden record of the same core.
type Golden struct {
	expected  [][]diffstate.CoreState
	next      []int
	exhausted []bool
}

var _ sim.RefProxy = (*Golden)(nil)

// Open loads the golden stream at path.
func Open(path string, numCores int) (*Golden, error) {
	if strings.HasSuffix(path, ".so") {
		return nil, fmt.Errorf("%w: %s", ErrSharedObject, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("refproxy: %w", err)
	}
	defer func() { _ = f.Close() }()
	g, err := Load(bufio.NewReader(f), numCores)
	if err != nil {
		return nil, fmt.Errorf("refproxy: %s: %w", path, err)
	}
	logrus.Infof("refproxy: loaded golden trace %s", path)
	return g, nil
}

// Load reads a golden stream from r, splitting records by core index.
func Load(r io.Reader, numCores int) (*Golden, error) {
	g := &Golden{
		expected:  make([][]diffstate.CoreState, numCores),
		next:      make([]int, numCores),
		exhausted: make([]bool, numCores),
	}
	buf := make([]byte, diffstate.ChunkSize)
	for n := 0; ; n++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return g, nil
			}
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		core := int(buf[diffstate.RecordSize])
		if core >= numCores {
			return nil, fmt.Errorf("record %d: core index %d with %d cores", n, core, numCores)
		}
		st, err := diffstate.Decode(buf[:diffstate.RecordSize])
		if err != nil {
			return nil, err
		}
		g.expected[core] = append(g.expected[core], st)
	}
}

// Remaining returns how many golden records of core have not been compared.
func (g *Golden) Remaining(core int) int {
	return len(g.expected[core]) - g.next[core]
}

// Compare checks the commit, the integer registers and the trap pc of dut
// against the next golden record of core. Once the golden records of a core
// run out, comparison for that core stops.
func (g *Golden) Compare(core int, dut *diffstate.CoreState) bool {
	if g.next[core] >= len(g.expected[core]) {
		if !g.exhausted[core] {
			g.exhausted[core] = true
			logrus.Warnf("refproxy: golden trace for core %d exhausted, comparison stopped", core)
		}
		return true
	}
	want := &g.expected[core][g.next[core]]
	g.next[core]++
	if want.Commit != dut.Commit || want.Regs != dut.Regs || want.Trap.PC != dut.Trap.PC {
		for i := range want.Regs {
			if want.Regs[i] != dut.Regs[i] {
				logrus.WithField("core", core).Errorf("x%d different: dut=%#x ref=%#x", i+1, dut.Regs[i], want.Regs[i])
			}
		}
		if want.Trap.PC != dut.Trap.PC {
			logrus.WithField("core", core).Errorf("pc different: dut=%#x ref=%#x", dut.Trap.PC, want.Trap.PC)
		}
		return false
	}
	return true
}

// Close releases the golden records.
func (g *Golden) Close() error {
	g.expected = nil
	return nil
}
