// Package diffstate defines the per-core state record produced by the
// hardware side every simulation step, and the Snapshot that groups one
// record per core.
//
// Wire layout of one record (little-endian):
//
//	offset  size  field
//	0       1     trap.hasTrap
//	1       1     trap.code
//	2       6     padding
//	8       8     trap.pc
//	16      8     trap.cycleCnt
//	24      8     trap.instrCnt
//	32      8     reserved
//	40      1     commit.valid
//	41      1     commit.nCommit
//	42      6     padding
//	48      248   x1..x31
//
// The hardware appends a one-byte core index after the record, so a DMA
// chunk is ChunkSize bytes.
package diffstate

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// NumIntRegs is the number of integer registers carried per core (x0 is not sent).
	NumIntRegs = 31

	trapEventSize = 40
	commitSize    = 8

	// RecordSize is the encoded size of one CoreState.
	RecordSize = trapEventSize + commitSize + NumIntRegs*8
	// ChunkSize is RecordSize plus the trailing core index byte.
	ChunkSize = RecordSize + 1
	// MaxCores bounds NumCores so presence fits in one bitmask word.
	MaxCores = 64
)

// ErrRecordSize is returned by Decode for a buffer that is not RecordSize bytes.
var ErrRecordSize = errors.New("diffstate: wrong record size")

// TrapEvent is the hardware-reported trap information of a core.
type TrapEvent struct {
	HasTrap  bool
	Code     uint8
	PC       uint64
	CycleCnt uint64
	InstrCnt uint64
}

// CPI returns cycles per retired instruction, or 0 before any instruction retires.
func (e TrapEvent) CPI() float64 {
	if e.InstrCnt == 0 {
		return 0
	}
	return float64(e.CycleCnt) / float64(e.InstrCnt)
}

// Commit summarises the instructions committed in this step.
type Commit struct {
	Valid   bool
	NCommit uint8
}

// CoreState is one core's architectural state for one step.
type CoreState struct {
	Trap   TrapEvent
	Commit Commit
	Regs   [NumIntRegs]uint64 // x1..x31
}

// Decode parses a record of exactly RecordSize bytes.
func Decode(b []byte) (CoreState, error) {
	var s CoreState
	if len(b) != RecordSize {
		return s, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(b), RecordSize)
	}
	le := binary.LittleEndian
	s.Trap = TrapEvent{
		HasTrap:  b[0] != 0,
		Code:     b[1],
		PC:       le.Uint64(b[8:]),
		CycleCnt: le.Uint64(b[16:]),
		InstrCnt: le.Uint64(b[24:]),
	}
	s.Commit = Commit{Valid: b[40] != 0, NCommit: b[41]}
	for i := range s.Regs {
		s.Regs[i] = le.Uint64(b[48+8*i:])
	}
	return s, nil
}

// Encode writes s into b, which must hold at least RecordSize bytes.
func (s *CoreState) Encode(b []byte) {
	_ = b[RecordSize-1]
	clear(b[:RecordSize])
	le := binary.LittleEndian
	if s.Trap.HasTrap {
		b[0] = 1
	}
	b[1] = s.Trap.Code
	le.PutUint64(b[8:], s.Trap.PC)
	le.PutUint64(b[16:], s.Trap.CycleCnt)
	le.PutUint64(b[24:], s.Trap.InstrCnt)
	if s.Commit.Valid {
		b[40] = 1
	}
	b[41] = s.Commit.NCommit
	for i, r := range s.Regs {
		le.PutUint64(b[48+8*i:], r)
	}
}

// EncodeChunk returns the ChunkSize wire form of s tagged with core.
func EncodeChunk(core uint8, s CoreState) []byte {
	b := make([]byte, ChunkSize)
	s.Encode(b)
	b[RecordSize] = core
	return b
}
