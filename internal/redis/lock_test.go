package redisclient

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLockerSerializesPerKey(t *testing.T) {
	locker := NewMutexLocker()
	ctx := context.Background()

	const workers = 20
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithSlotLock(ctx, "slot-a", func(context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "critical section must never overlap for one key")
}

func TestMutexLockerIndependentKeys(t *testing.T) {
	locker := NewMutexLocker()
	ctx := context.Background()

	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = locker.WithSlotLock(ctx, "slot-a", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held

	// A different key does not queue behind slot-a.
	done := make(chan error, 1)
	go func() {
		done <- locker.WithSlotLock(ctx, "slot-b", func(context.Context) error { return nil })
	}()

	require.NoError(t, <-done)
	close(release)
}

func TestMutexLockerCancelledContext(t *testing.T) {
	locker := NewMutexLocker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := locker.WithSlotLock(ctx, "slot-a", func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
