package xdma

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/difftest/simv/sim/mpool"
	"github.com/sirupsen/logrus"
)

// ErrShortRecord is returned when the stream ends in the middle of a record.
var ErrShortRecord = errors.New("xdma: short record")

// Reader moves fixed-size records from the hardware stream into free chunks.
type Reader struct {
	src     io.Reader
	pool    *mpool.Pool
	running *atomic.Bool
	records atomic.Uint64
}

// NewReader creates a Reader filling chunks of pool from src while running is set.
func NewReader(src io.Reader, pool *mpool.Pool, running *atomic.Bool) *Reader {
	return &Reader{src: src, pool: pool, running: running}
}

// Records returns the number of records published so far.
func (r *Reader) Records() uint64 { return r.records.Load() }

// Run reads one record per free chunk until the running flag clears, the
// pool closes or the stream ends. A clean end of stream on a record boundary
// returns nil; a partial record returns ErrShortRecord.
func (r *Reader) Run(ctx context.Context) error {
	for r.running.Load() {
		h, err := r.pool.AcquireFree(ctx)
		if err != nil {
			if errors.Is(err, mpool.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		buf := r.pool.Bytes(h)
		n, err := io.ReadFull(r.src, buf)
		if err != nil {
			if !r.running.Load() {
				// shutdown closed the source under us
				return nil
			}
			switch {
			case errors.Is(err, io.EOF):
				logrus.Infof("xdma: stream ended after %d records", r.records.Load())
				return nil
			case errors.Is(err, io.ErrUnexpectedEOF):
				return fmt.Errorf("%w: got %d of %d bytes after %d records", ErrShortRecord, n, len(buf), r.records.Load())
			default:
				return fmt.Errorf("xdma: read: %w", err)
			}
		}
		if err := r.pool.Publish(h); err != nil {
			if errors.Is(err, mpool.ErrClosed) {
				return nil
			}
			return err
		}
		r.records.Add(1)
	}
	return nil
}
