// Package xdma ingests per-core state records from the FPGA card-to-host DMA
// stream. A Reader goroutine moves raw records into a chunk pool and an
// Assembler goroutine turns them into complete multi-core Snapshots handed to
// the checker through a single-slot exchange.
package xdma

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/difftest/simv/sim/diffstate"
	"github.com/difftest/simv/sim/mpool"
	"github.com/sirupsen/logrus"
)

// Config sizes the ingestion pipeline.
type Config struct {
	NumCores  int // cores per snapshot, in [1, diffstate.MaxCores]
	PoolDepth int // chunks in the pool; NumCores+1 or more avoids stalls
}

// Stats are the pipeline counters.
type Stats struct {
	RecordsRead        uint64
	SnapshotsAssembled uint64
	ChunksBusy         int
}

// Device owns the stream, the chunk pool and the two worker goroutines.
type Device struct {
	src       io.ReadCloser
	pool      *mpool.Pool
	exch      *diffstate.Exchange
	reader    *Reader
	assembler *Assembler

	running  atomic.Bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New builds a Device reading from src. Panics on an invalid Config.
func New(src io.ReadCloser, cfg Config) *Device {
	if cfg.PoolDepth < 1 {
		panic(fmt.Sprintf("xdma.New: PoolDepth must be >= 1, got %d", cfg.PoolDepth))
	}
	d := &Device{
		src:  src,
		pool: mpool.New(cfg.PoolDepth, diffstate.ChunkSize),
		exch: diffstate.NewExchange(cfg.NumCores),
	}
	d.reader = NewReader(src, d.pool, &d.running)
	d.assembler = NewAssembler(d.pool, d.exch, cfg.NumCores, &d.running)
	return d
}

// Exchange returns the handoff the checker takes snapshots from.
func (d *Device) Exchange() *diffstate.Exchange { return d.exch }

// Stats returns a point-in-time copy of the pipeline counters.
func (d *Device) Stats() Stats {
	return Stats{
		RecordsRead:        d.reader.Records(),
		SnapshotsAssembled: d.assembler.Snapshots(),
		ChunksBusy:         d.pool.Busy(),
	}
}

// Start launches the reader and assembler. onFatal is called at most once per
// worker with the error that stopped it; it must not block.
func (d *Device) Start(ctx context.Context, onFatal func(error)) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.running.Store(true)
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		err := d.reader.Run(ctx)
		// Lets the assembler finish what was already published.
		d.pool.Seal()
		if err != nil {
			logrus.Errorf("xdma: reader stopped: %v", err)
			onFatal(err)
		}
	}()
	go func() {
		defer d.wg.Done()
		err := d.assembler.Run(ctx)
		d.exch.Seal()
		if err != nil {
			logrus.Errorf("xdma: assembler stopped: %v", err)
			onFatal(err)
		}
	}()
	logrus.Infof("xdma: reader and assembler started (pool depth %d)", d.pool.Depth())
}

// Stop clears the running flag, closes the stream and the pool so blocked
// workers return, and waits for both workers.
func (d *Device) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.running.Store(false)
		err = d.src.Close()
		d.pool.Close()
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		logrus.Info("xdma: workers stopped")
	})
	return err
}
