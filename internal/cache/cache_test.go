package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/chronos/backend/internal/clock"
	"github.com/coldbell/chronos/backend/internal/errs"
)

var key = Key{Wallet: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", Query: "vault_exists"}

func counting(calls *atomic.Int32, v bool) func(context.Context) (bool, error) {
	return func(context.Context) (bool, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestHitWithinTTL(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	c := New[bool](0, clk, nil)
	var calls atomic.Int32

	v, err := c.GetOrFetch(context.Background(), key, counting(&calls, true))
	require.NoError(t, err)
	assert.True(t, v)

	clk.Advance(DefaultTTL - time.Nanosecond)
	v, err = c.GetOrFetch(context.Background(), key, counting(&calls, false))
	require.NoError(t, err)
	assert.True(t, v)
	assert.Equal(t, int32(1), calls.Load())

	clk.Advance(time.Nanosecond)
	v, err = c.GetOrFetch(context.Background(), key, counting(&calls, false))
	require.NoError(t, err)
	assert.False(t, v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestKeysAreIndependent(t *testing.T) {
	c := New[string](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	ctx := context.Background()
	other := Key{Wallet: key.Wallet, Query: "position"}

	a, err := c.GetOrFetch(ctx, key, func(context.Context) (string, error) { return "a", nil })
	require.NoError(t, err)
	b, err := c.GetOrFetch(ctx, other, func(context.Context) (string, error) { return "b", nil })
	require.NoError(t, err)
	assert.Equal(t, "a", a)
	assert.Equal(t, "b", b)
	assert.Equal(t, 2, c.Len())
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New[int](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	boom := errs.New(errs.KindChainUnavailable, key.Wallet, "rpc down")

	_, err := c.GetOrFetch(context.Background(), key, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, errs.ErrChainUnavailable)
	assert.Zero(t, c.Len())

	v, err := c.GetOrFetch(context.Background(), key, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	c := New[int](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make(chan int, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrFetch(context.Background(), key, fetch)
			if assert.NoError(t, err) {
				results <- v
			}
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), calls.Load())
	for v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestCallerCancellationDoesNotPoisonSharedFetch(t *testing.T) {
	c := New[int](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		<-release
		return 1, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(ctx, key, fetch)
		done <- err
	}()
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))

	close(release)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
}

func TestInvalidateAndPurge(t *testing.T) {
	c := New[int](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	c.Set(key, 1)
	c.Set(Key{Wallet: "w", Query: "q"}, 2)
	require.Equal(t, 2, c.Len())

	c.Invalidate(key)
	assert.Equal(t, 1, c.Len())
	_, err := c.lookup(key)
	assert.ErrorIs(t, err, errs.ErrStaleCache)

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestInvalidateDropsInFlightResult(t *testing.T) {
	c := New[bool](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	started := make(chan struct{})
	release := make(chan struct{})
	stale := func(context.Context) (bool, error) {
		close(started)
		<-release
		return false, nil
	}

	done := make(chan bool, 1)
	go func() {
		v, _ := c.GetOrFetch(context.Background(), key, stale)
		done <- v
	}()
	<-started

	// The account is created while the old read is still outstanding.
	c.Invalidate(key)
	var calls atomic.Int32
	v, err := c.GetOrFetch(context.Background(), key, counting(&calls, true))
	require.NoError(t, err)
	assert.True(t, v, "a read after invalidation must not join the earlier one")
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	assert.False(t, <-done, "the earlier caller still gets its own answer")

	v, err = c.GetOrFetch(context.Background(), key, counting(&calls, false))
	require.NoError(t, err)
	assert.True(t, v, "the late result must not overwrite the fresh entry")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPurgeDropsInFlightResult(t *testing.T) {
	c := New[int](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.GetOrFetch(context.Background(), key, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started
	c.Purge()
	close(release)
	<-done

	assert.Zero(t, c.Len())
}

func TestKeyStringsDoNotCollide(t *testing.T) {
	a := Key{Wallet: "a:b", Query: "c"}
	b := Key{Wallet: "b", Query: "c:a"}
	assert.NotEqual(t, a.String(), b.String())

	c := New[string](time.Minute, clock.NewManual(time.Unix(0, 0)), nil)
	ctx := context.Background()
	gotA, err := c.GetOrFetch(ctx, a, func(context.Context) (string, error) { return "a", nil })
	require.NoError(t, err)
	gotB, err := c.GetOrFetch(ctx, b, func(context.Context) (string, error) { return "b", nil })
	require.NoError(t, err)
	assert.Equal(t, "a", gotA)
	assert.Equal(t, "b", gotB)
}
