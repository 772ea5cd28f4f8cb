package refproxy

import (
	"bytes"
	"os"
	"testing"

	"github.com/difftest/simv/sim"
	"github.com/difftest/simv/sim/diffstate"
	"github.com/difftest/simv/sim/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.PanicLevel)
	}
	os.Exit(m.Run())
}

func golden(step uint64) diffstate.CoreState {
	var st diffstate.CoreState
	st.Commit = diffstate.Commit{Valid: true, NCommit: 1}
	st.Trap.PC = 0x80000000 + 4*step
	st.Regs[9] = step
	return st
}

func goldenStream(steps, cores int) []byte {
	s := new(testutil.Stream)
	for step := 1; step <= steps; step++ {
		for c := 0; c < cores; c++ {
			s.Add(c, golden(uint64(step)))
		}
	}
	return s.Bytes()
}

func TestGolden_MatchingStates_Accepted(t *testing.T) {
	g, err := Load(bytes.NewReader(goldenStream(3, 2)), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Remaining(0))

	for s := uint64(1); s <= 3; s++ {
		for c := 0; c < 2; c++ {
			st := golden(s)
			// cycle counts differ between runs and are not compared
			st.Trap.CycleCnt = 1000 * s
			assert.True(t, g.Compare(c, &st), "step %d core %d", s, c)
		}
	}
	assert.Equal(t, 0, g.Remaining(1))
}

func TestGolden_RegisterDiffers_Rejected(t *testing.T) {
	g, err := Load(bytes.NewReader(goldenStream(1, 1)), 1)
	require.NoError(t, err)

	st := golden(1)
	st.Regs[4] ^= 1
	assert.False(t, g.Compare(0, &st))
}

func TestGolden_Exhausted_StopsComparing(t *testing.T) {
	g, err := Load(bytes.NewReader(goldenStream(1, 1)), 1)
	require.NoError(t, err)
	first := golden(1)
	require.True(t, g.Compare(0, &first))

	other := golden(99)
	assert.True(t, g.Compare(0, &other))
	assert.True(t, g.Compare(0, &other))
}

func TestLoad_BadStream_ReturnsError(t *testing.T) {
	_, err := Load(bytes.NewReader(diffstate.EncodeChunk(3, golden(1))), 2)
	assert.Error(t, err, "core index out of range")

	_, err = Load(bytes.NewReader(make([]byte, diffstate.ChunkSize+5)), 1)
	assert.Error(t, err, "trailing partial record")
}

func TestOpen_SharedObject_Rejected(t *testing.T) {
	_, err := Open("/opt/nemu/riscv64-nemu-interpreter-so.so", 1)
	assert.ErrorIs(t, err, ErrSharedObject)
}

func TestRegistration_NewRefProxyUsesGolden(t *testing.T) {
	// GIVEN a golden file on disk
	path := new(testutil.Stream).Add(0, golden(1)).Add(0, golden(2)).WriteFile(t, "golden.bin")

	// WHEN the registered factory is used
	proxy, err := sim.NewRefProxy(path, 1)

	// THEN it returns a Golden proxy over that file
	require.NoError(t, err)
	g, ok := proxy.(*Golden)
	require.True(t, ok)
	assert.Equal(t, 2, g.Remaining(0))
	assert.NoError(t, proxy.Close())
}
