package xdma

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/difftest/simv/sim/diffstate"
	"github.com/difftest/simv/sim/mpool"
	"github.com/sirupsen/logrus"
)

// ErrCoreIndex is returned for a chunk whose core index is not below the core count.
var ErrCoreIndex = errors.New("xdma: core index out of range")

// Assembler drains busy chunks and groups their records into Snapshots.
type Assembler struct {
	pool     *mpool.Pool
	exch     *diffstate.Exchange
	numCores int
	running  *atomic.Bool

	cur       *diffstate.Snapshot
	snapshots atomic.Uint64
}

// NewAssembler creates an Assembler for numCores publishing into exch.
func NewAssembler(pool *mpool.Pool, exch *diffstate.Exchange, numCores int, running *atomic.Bool) *Assembler {
	if pool.ChunkSize() != diffstate.ChunkSize {
		panic(fmt.Sprintf("xdma.NewAssembler: chunk size %d, want %d", pool.ChunkSize(), diffstate.ChunkSize))
	}
	return &Assembler{pool: pool, exch: exch, numCores: numCores, running: running}
}

// Snapshots returns the number of complete snapshots published so far.
func (a *Assembler) Snapshots() uint64 { return a.snapshots.Load() }

// Run assembles snapshots until the running flag clears or the pool is
// closed or sealed and drained. Protocol violations are returned as errors.
func (a *Assembler) Run(ctx context.Context) error {
	for a.running.Load() {
		h, err := a.pool.AcquireBusy(ctx)
		if err != nil {
			if errors.Is(err, mpool.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := a.consume(ctx, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// consume copies the record out of chunk h, releases the chunk, and files
// the record into the in-progress snapshot.
func (a *Assembler) consume(ctx context.Context, h mpool.Handle) error {
	buf := a.pool.Bytes(h)
	core := int(buf[diffstate.RecordSize])
	if core >= a.numCores {
		_ = a.pool.Release(h)
		return fmt.Errorf("%w: %d with %d cores", ErrCoreIndex, core, a.numCores)
	}
	if a.cur == nil {
		// Blocks until the checker has drained the previous snapshot.
		s, err := a.exch.Claim(ctx)
		if err != nil {
			_ = a.pool.Release(h)
			return err
		}
		a.cur = s
	}
	st, err := diffstate.Decode(buf[:diffstate.RecordSize])
	if rerr := a.pool.Release(h); rerr != nil {
		return rerr
	}
	if err != nil {
		return err
	}
	if err := a.cur.Put(core, st); err != nil {
		return err
	}
	if !a.cur.Complete() {
		return nil
	}
	if err := a.exch.Publish(a.cur); err != nil {
		return err
	}
	a.cur = nil
	n := a.snapshots.Add(1)
	logrus.Debugf("xdma: snapshot %d published", n)
	return nil
}
