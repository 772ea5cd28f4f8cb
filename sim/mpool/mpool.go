// Package mpool implements the fixed-depth chunk pool that sits between the
// DMA reader and the snapshot assembler.
//
// Every chunk is a slot in an arena that is allocated once and recycled for
// the lifetime of the pool. A slot is either FREE (available to the reader)
// or BUSY (holding a record the assembler has not consumed yet). Slots are
// addressed by Handle; the two state queues are bounded channels of handles
// whose capacity equals the pool depth, so a reader that outruns the
// assembler blocks in AcquireFree instead of buffering without bound.
package mpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotHeld is returned when a chunk is published or released by a
	// caller that does not hold it in the required state.
	ErrNotHeld = errors.New("mpool: chunk not held by caller")
	// ErrClosed is returned once the pool has been closed, or when the busy
	// side is sealed and fully drained.
	ErrClosed = errors.New("mpool: pool closed")
)

// ChunkState is the state tag carried by every slot.
type ChunkState uint8

const (
	// ChunkFree slots may be filled by the reader.
	ChunkFree ChunkState = iota
	// ChunkBusy slots hold an unconsumed record.
	ChunkBusy
)

func (s ChunkState) String() string {
	switch s {
	case ChunkFree:
		return "free"
	case ChunkBusy:
		return "busy"
	default:
		return fmt.Sprintf("ChunkState(%d)", uint8(s))
	}
}

// Handle identifies one slot of the pool.
type Handle int

type slot struct {
	buf   []byte
	state ChunkState
	held  bool // checked out by AcquireFree or AcquireBusy
}

// Pool is a fixed ring of fixed-size byte chunks.
type Pool struct {
	chunkSize int

	mu        sync.Mutex
	slots     []slot
	busyCount int
	sealed    bool

	free chan Handle
	busy chan Handle

	closed    chan struct{}
	closeOnce sync.Once
}

// New allocates a pool of depth chunks of chunkSize bytes each.
// Panics if depth or chunkSize is not positive.
func New(depth, chunkSize int) *Pool {
	if depth < 1 {
		panic(fmt.Sprintf("mpool.New: depth must be >= 1, got %d", depth))
	}
	if chunkSize < 1 {
		panic(fmt.Sprintf("mpool.New: chunkSize must be >= 1, got %d", chunkSize))
	}
	p := &Pool{
		chunkSize: chunkSize,
		slots:     make([]slot, depth),
		free:      make(chan Handle, depth),
		busy:      make(chan Handle, depth),
		closed:    make(chan struct{}),
	}
	backing := make([]byte, depth*chunkSize)
	for i := range p.slots {
		p.slots[i].buf = backing[i*chunkSize : (i+1)*chunkSize : (i+1)*chunkSize]
		p.free <- Handle(i)
	}
	return p
}

// Depth returns the number of chunks in the pool.
func (p *Pool) Depth() int { return len(p.slots) }

// ChunkSize returns the size in bytes of every chunk.
func (p *Pool) ChunkSize() int { return p.chunkSize }

// Busy returns the number of chunks currently tagged BUSY.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busyCount
}

// State returns the state tag of chunk h.
func (p *Pool) State(h Handle) ChunkState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[h].state
}

// Bytes returns the storage of chunk h. Only the current holder of h may
// touch the returned slice.
func (p *Pool) Bytes(h Handle) []byte {
	return p.slots[h].buf
}

// AcquireFree blocks until a FREE chunk is available and returns it with
// exclusive write access. The chunk stays FREE until Publish.
func (p *Pool) AcquireFree(ctx context.Context) (Handle, error) {
	select {
	case <-p.closed:
		return -1, ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.closed:
		return -1, ErrClosed
	case h := <-p.free:
		p.mu.Lock()
		p.slots[h].held = true
		p.mu.Unlock()
		return h, nil
	}
}

// Publish transitions a chunk obtained from AcquireFree to BUSY and queues it
// for AcquireBusy in publish order.
func (p *Pool) Publish(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(h, ChunkFree); err != nil {
		return fmt.Errorf("publish chunk %d: %w", h, err)
	}
	if p.sealed || p.isClosed() {
		return ErrClosed
	}
	s := &p.slots[h]
	s.state = ChunkBusy
	s.held = false
	p.busyCount++
	// Never blocks: at most depth handles exist.
	p.busy <- h
	return nil
}

// AcquireBusy blocks until a BUSY chunk is available and returns the oldest
// one. After Seal it keeps returning queued chunks and then ErrClosed.
func (p *Pool) AcquireBusy(ctx context.Context) (Handle, error) {
	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case <-p.closed:
		return -1, ErrClosed
	case h, ok := <-p.busy:
		if !ok {
			return -1, ErrClosed
		}
		p.mu.Lock()
		p.slots[h].held = true
		p.mu.Unlock()
		return h, nil
	}
}

// Release transitions a chunk obtained from AcquireBusy back to FREE.
func (p *Pool) Release(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(h, ChunkBusy); err != nil {
		return fmt.Errorf("release chunk %d: %w", h, err)
	}
	s := &p.slots[h]
	s.state = ChunkFree
	s.held = false
	p.busyCount--
	p.free <- h
	return nil
}

// Seal marks the end of production. Publish fails afterwards, and
// AcquireBusy returns ErrClosed once every queued chunk has been handed out.
func (p *Pool) Seal() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return
	}
	p.sealed = true
	close(p.busy)
}

// Close abandons the pool: every blocked and future acquire returns ErrClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *Pool) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *Pool) checkLocked(h Handle, want ChunkState) error {
	if h < 0 || int(h) >= len(p.slots) {
		return fmt.Errorf("%w: handle out of range", ErrNotHeld)
	}
	s := &p.slots[h]
	if !s.held || s.state != want {
		return fmt.Errorf("%w: state=%s held=%v", ErrNotHeld, s.state, s.held)
	}
	return nil
}
