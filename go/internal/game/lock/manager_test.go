package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AcquireRelease(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	lease, err := m.Acquire(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	assert.True(t, m.Held(GameKey))
	assert.Equal(t, 1, m.Outstanding())

	m.Release(lease)
	assert.False(t, m.Held(GameKey))
	assert.Equal(t, 0, m.Outstanding())
}

func TestManager_ReleaseIsNoOpForStaleLeases(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	first, err := m.Acquire(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	m.Release(first)

	second, err := m.Acquire(context.Background(), GameKey, time.Second)
	require.NoError(t, err)

	// Double release of the first lease must not free the second holder.
	m.Release(first)
	m.Release(nil)
	assert.True(t, m.Held(GameKey))

	m.Release(second)
	m.Release(second)
	assert.False(t, m.Held(GameKey))
}

func TestManager_SecondAcquireBlocksUntilRelease(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	first, err := m.Acquire(context.Background(), TeamKey("a"), time.Second)
	require.NoError(t, err)

	acquired := make(chan *Lease)
	go func() {
		lease, err := m.Acquire(context.Background(), TeamKey("a"), 5*time.Second)
		if err == nil {
			acquired <- lease
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the key is held")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(first)

	select {
	case lease, ok := <-acquired:
		require.True(t, ok)
		require.NotNil(t, lease)
		m.Release(lease)
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestManager_AcquireTimesOut(t *testing.T) {
	fc := clockwork.NewFakeClock()
	m := NewManager(fc)

	holder, err := m.Acquire(context.Background(), GameKey, time.Minute)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background(), GameKey, time.Second)
		errCh <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(2 * time.Second)

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrTimeout))
	case <-time.After(time.Second):
		t.Fatal("acquire did not time out")
	}

	// The timed-out caller never became a holder.
	assert.Equal(t, 1, m.Outstanding())
	m.Release(holder)
	assert.False(t, m.Held(GameKey))
}

func TestManager_AcquireHonoursContext(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	holder, err := m.Acquire(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	defer m.Release(holder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Acquire(ctx, GameKey, time.Second)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestManager_SharedHoldersOverlap(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	a, err := m.AcquireShared(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	b, err := m.AcquireShared(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Outstanding())

	_, err = m.Acquire(context.Background(), GameKey, 20*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))

	m.Release(a)
	m.Release(b)

	w, err := m.Acquire(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	m.Release(w)
}

func TestManager_WaitingWriterHoldsBackReaders(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	reader, err := m.AcquireShared(context.Background(), GameKey, time.Second)
	require.NoError(t, err)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w, err := m.Acquire(context.Background(), GameKey, 5*time.Second)
		if err == nil {
			time.Sleep(20 * time.Millisecond)
			m.Release(w)
		}
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.entries[GameKey].writersWaiting == 1
	}, time.Second, time.Millisecond)

	_, err = m.AcquireShared(context.Background(), GameKey, 10*time.Millisecond)
	assert.True(t, errors.Is(err, ErrTimeout))

	m.Release(reader)
	<-writerDone

	r, err := m.AcquireShared(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	m.Release(r)
}

func TestManager_MutualExclusionUnderContention(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(context.Background(), TeamKey("x"), 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			m.Release(lease)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.Outstanding())
	assert.Empty(t, m.entries)
}

func TestLease_ContextCarriesHoldBudget(t *testing.T) {
	m := NewManager(clockwork.NewRealClock())

	lease, err := m.Acquire(context.Background(), GameKey, 50*time.Millisecond)
	require.NoError(t, err)
	defer m.Release(lease)

	ctx, cancel := lease.Context(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
}

func TestLease_ContextCountsFromAcquisition(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(clock)

	lease, err := m.Acquire(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	defer m.Release(lease)

	clock.Advance(700 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, lease.Remaining())

	ctx, cancel := lease.Context(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(300*time.Millisecond), deadline, 100*time.Millisecond)

	// Once the budget is spent, work started under the lease fails at once.
	clock.Advance(time.Second)
	assert.Zero(t, lease.Remaining())
	spent, cancelSpent := lease.Context(context.Background())
	defer cancelSpent()
	assert.ErrorIs(t, spent.Err(), context.DeadlineExceeded)
}

func TestLease_NestedContextsEndAtEarliestDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(clock)

	outer, err := m.AcquireShared(context.Background(), GameKey, time.Second)
	require.NoError(t, err)
	defer m.Release(outer)
	clock.Advance(800 * time.Millisecond)

	inner, err := m.Acquire(context.Background(), TeamKey("a"), time.Second)
	require.NoError(t, err)
	defer m.Release(inner)

	outerCtx, cancelOuter := outer.Context(context.Background())
	defer cancelOuter()
	innerCtx, cancelInner := inner.Context(outerCtx)
	defer cancelInner()

	deadline, ok := innerCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(200*time.Millisecond), deadline, 100*time.Millisecond)
}
