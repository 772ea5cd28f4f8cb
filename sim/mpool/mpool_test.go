package mpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_PublishThenAcquireBusy_PreservesPublishOrder(t *testing.T) {
	// GIVEN a pool of depth 4
	p := New(4, 8)
	ctx := context.Background()

	// WHEN four chunks are filled with distinct tags and published
	var published []Handle
	for i := 0; i < 4; i++ {
		h, err := p.AcquireFree(ctx)
		require.NoError(t, err)
		p.Bytes(h)[0] = byte(i + 10)
		require.NoError(t, p.Publish(h))
		published = append(published, h)
	}

	// THEN AcquireBusy returns them in publish order with their payloads intact
	for i := 0; i < 4; i++ {
		h, err := p.AcquireBusy(ctx)
		require.NoError(t, err)
		assert.Equal(t, published[i], h)
		assert.Equal(t, byte(i+10), p.Bytes(h)[0])
		require.NoError(t, p.Release(h))
	}
	assert.Equal(t, 0, p.Busy())
}

func TestPool_PublishNotHeld_ReturnsErrNotHeld(t *testing.T) {
	p := New(2, 4)
	ctx := context.Background()

	// never acquired
	assert.ErrorIs(t, p.Publish(0), ErrNotHeld)

	h, err := p.AcquireFree(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Publish(h))

	// published twice
	assert.ErrorIs(t, p.Publish(h), ErrNotHeld)
	// released while queued busy but not acquired by a consumer
	assert.ErrorIs(t, p.Release(h), ErrNotHeld)
	// out of range
	assert.ErrorIs(t, p.Publish(Handle(7)), ErrNotHeld)
	assert.ErrorIs(t, p.Release(Handle(-1)), ErrNotHeld)

	assert.Equal(t, 1, p.Busy(), "failed calls must not change the busy count")
}

func TestPool_ReleaseFreeChunk_ReturnsErrNotHeld(t *testing.T) {
	p := New(2, 4)
	h, err := p.AcquireFree(context.Background())
	require.NoError(t, err)

	// a writer-held chunk is FREE, so Release on it is a misuse
	assert.ErrorIs(t, p.Release(h), ErrNotHeld)
	assert.Equal(t, ChunkFree, p.State(h))
}

func TestPool_AllChunksBusy_AcquireFreeBlocks(t *testing.T) {
	// GIVEN a pool whose every chunk is BUSY
	p := New(2, 4)
	for i := 0; i < 2; i++ {
		h, err := p.AcquireFree(context.Background())
		require.NoError(t, err)
		require.NoError(t, p.Publish(h))
	}

	// WHEN the reader asks for another free chunk
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.AcquireFree(ctx)

	// THEN it blocks until the context gives up
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// AND a release makes one available again
	h, err := p.AcquireBusy(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(h))
	got, err := p.AcquireFree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestPool_ConcurrentInterleavings_BusyCountStaysInRange(t *testing.T) {
	const (
		depth = 3
		n     = 2000
	)
	p := New(depth, 2)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outOfBox []int
	)
	check := func() {
		b := p.Busy()
		if b < 0 || b > depth {
			mu.Lock()
			outOfBox = append(outOfBox, b)
			mu.Unlock()
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			h, err := p.AcquireFree(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			p.Bytes(h)[0] = byte(i)
			p.Bytes(h)[1] = byte(i >> 8)
			if err := p.Publish(h); err != nil {
				t.Error(err)
				return
			}
			check()
		}
	}()

	got := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			h, err := p.AcquireBusy(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			b := p.Bytes(h)
			got = append(got, int(b[0])|int(b[1])<<8)
			check()
			if err := p.Release(h); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	assert.Empty(t, outOfBox)
	assert.Equal(t, 0, p.Busy())
	require.Len(t, got, n)
	for i, v := range got {
		if v != i&0xffff {
			t.Fatalf("record %d arrived out of order: got %d", i, v)
		}
	}
}

func TestPool_Seal_DrainsQueuedThenReportsClosed(t *testing.T) {
	p := New(3, 1)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		h, err := p.AcquireFree(ctx)
		require.NoError(t, err)
		require.NoError(t, p.Publish(h))
	}
	p.Seal()

	for i := 0; i < 2; i++ {
		h, err := p.AcquireBusy(ctx)
		require.NoError(t, err)
		require.NoError(t, p.Release(h))
	}
	_, err := p.AcquireBusy(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	h, err := p.AcquireFree(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Publish(h), ErrClosed)
}

func TestPool_Close_UnblocksWaiters(t *testing.T) {
	p := New(1, 1)
	errs := make(chan error, 1)
	go func() {
		_, err := p.AcquireBusy(context.Background())
		errs <- err
	}()

	p.Close()
	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, ErrClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("AcquireBusy did not return after Close")
	}

	_, err := p.AcquireFree(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew_InvalidDepth_Panics(t *testing.T) {
	assert.Panics(t, func() { New(0, 4) })
	assert.Panics(t, func() { New(4, 0) })
}
