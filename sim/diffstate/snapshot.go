package diffstate

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrDuplicateCore is returned when a core index arrives twice for the same Snapshot.
	ErrDuplicateCore = errors.New("diffstate: duplicate core index in snapshot")
	// ErrCoreRange is returned for a core index outside [0, NumCores).
	ErrCoreRange = errors.New("diffstate: core index out of range")
	// ErrIncomplete is returned when an incomplete Snapshot is published or taken.
	ErrIncomplete = errors.New("diffstate: snapshot incomplete")
	// ErrSealed is returned by Take once no further Snapshot can be published.
	ErrSealed = errors.New("diffstate: exchange sealed")
)

// Snapshot holds one CoreState per core for a single simulation step.
// It is complete only when every core index in [0, NumCores) is present.
type Snapshot struct {
	Seq     uint64 // publish sequence number, starting at 1
	Cores   []CoreState
	present uint64
}

// NewSnapshot returns an empty Snapshot sized for numCores.
// Panics if numCores is outside [1, MaxCores].
func NewSnapshot(numCores int) *Snapshot {
	if numCores < 1 || numCores > MaxCores {
		panic(fmt.Sprintf("diffstate.NewSnapshot: numCores must be in [1, %d], got %d", MaxCores, numCores))
	}
	return &Snapshot{Cores: make([]CoreState, numCores)}
}

// NumCores returns the number of cores the Snapshot expects.
func (s *Snapshot) NumCores() int { return len(s.Cores) }

// Put stores the record of core.
func (s *Snapshot) Put(core int, st CoreState) error {
	if core < 0 || core >= len(s.Cores) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrCoreRange, core, len(s.Cores))
	}
	bit := uint64(1) << uint(core)
	if s.present&bit != 0 {
		return fmt.Errorf("%w: core %d", ErrDuplicateCore, core)
	}
	s.Cores[core] = st
	s.present |= bit
	return nil
}

// Has reports whether the record of core is present.
func (s *Snapshot) Has(core int) bool {
	if core < 0 || core >= len(s.Cores) {
		return false
	}
	return s.present&(uint64(1)<<uint(core)) != 0
}

// Filled returns how many cores are present.
func (s *Snapshot) Filled() int { return bits.OnesCount64(s.present) }

// Complete reports whether every core is present.
func (s *Snapshot) Complete() bool { return s.Filled() == len(s.Cores) }

// Reset empties the Snapshot for reuse.
func (s *Snapshot) Reset() {
	clear(s.Cores)
	s.present = 0
}

// Exchange circulates a single Snapshot buffer between the assembler and the
// checker. The assembler Claims the buffer, fills it and Publishes it; the
// checker Takes it and Drains it when done reading. Claim cannot succeed while
// the previous Snapshot is still being read.
type Exchange struct {
	empty chan *Snapshot
	full  chan *Snapshot
	seq   uint64
}

// NewExchange creates an Exchange with one Snapshot sized for numCores.
func NewExchange(numCores int) *Exchange {
	x := &Exchange{
		empty: make(chan *Snapshot, 1),
		full:  make(chan *Snapshot, 1),
	}
	x.empty <- NewSnapshot(numCores)
	return x
}

// Claim blocks until the buffer has been drained and returns it empty.
func (x *Exchange) Claim(ctx context.Context) (*Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s := <-x.empty:
		return s, nil
	}
}

// Publish hands a complete Snapshot to the checker. Only the assembler may
// call Publish and Seal.
func (x *Exchange) Publish(s *Snapshot) error {
	if !s.Complete() {
		return fmt.Errorf("publish: %w (%d of %d cores)", ErrIncomplete, s.Filled(), s.NumCores())
	}
	x.seq++
	s.Seq = x.seq
	x.full <- s
	return nil
}

// Take blocks until a complete Snapshot is published.
func (x *Exchange) Take(ctx context.Context) (*Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s, ok := <-x.full:
		if !ok {
			return nil, ErrSealed
		}
		if !s.Complete() {
			return nil, fmt.Errorf("take: %w", ErrIncomplete)
		}
		return s, nil
	}
}

// Drain resets a Snapshot returned by Take and makes it claimable again.
func (x *Exchange) Drain(s *Snapshot) {
	s.Reset()
	x.empty <- s
}

// Seal tells the checker that nothing further will be published. A Snapshot
// already published is still delivered by Take.
func (x *Exchange) Seal() {
	close(x.full)
}
