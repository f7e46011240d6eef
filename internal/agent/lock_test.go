package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireRejectsSecondClaim(t *testing.T) {
	locks := newUserLocks()
	assert.True(t, locks.TryAcquire("user-a"))
	assert.False(t, locks.TryAcquire("user-a"))

	// A different user is unaffected.
	assert.True(t, locks.TryAcquire("user-b"))

	locks.Release("user-a")
	assert.True(t, locks.TryAcquire("user-a"))
}

func TestReleaseUnheldIsHarmless(t *testing.T) {
	locks := newUserLocks()
	assert.NotPanics(t, func() { locks.Release("never-held") })
}

func TestTryAcquireUnderContention(t *testing.T) {
	locks := newUserLocks()
	const goroutines = 32

	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if locks.TryAcquire("user-a") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count, "exactly one goroutine may win the lock")
}
