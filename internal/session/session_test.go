package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultsToIdle(t *testing.T) {
	store := NewStore(time.Minute, 10)

	sess := store.Get(42)
	assert.Equal(t, StepIdle, sess.Step)
	assert.True(t, sess.Idle())
	assert.Zero(t, store.Len(), "Get must not create sessions")
}

func TestSaveAndReset(t *testing.T) {
	store := NewStore(time.Minute, 10)

	saved := store.Save(1, Session{Step: StepAwaitingText})
	assert.NotZero(t, saved.Version)

	got := store.Get(1)
	assert.Equal(t, StepAwaitingText, got.Step)
	assert.Equal(t, saved.Version, got.Version)

	again := store.Save(1, Session{Step: StepAwaitingImage, Draft: Draft{Text: "hi"}})
	assert.Greater(t, again.Version, saved.Version)
	assert.Equal(t, "hi", store.Get(1).Draft.Text)

	assert.Equal(t, StepIdle, store.Get(2).Step, "chats are isolated")

	store.Reset(1)
	got = store.Get(1)
	assert.True(t, got.Idle())
	assert.Empty(t, got.Draft.Text)
	assert.Zero(t, store.Len())
}

func TestSessionsExpire(t *testing.T) {
	store := NewStore(50*time.Millisecond, 10)
	store.Save(1, Session{Step: StepAwaitingText})

	require.Eventually(t, func() bool {
		return store.Get(1).Idle()
	}, time.Second, 10*time.Millisecond)
}

func TestSizeIsBounded(t *testing.T) {
	store := NewStore(time.Minute, 2)
	for chat := int64(1); chat <= 5; chat++ {
		store.Save(chat, Session{Step: StepAwaitingText})
	}
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, StepAwaitingText, store.Get(5).Step)
	assert.True(t, store.Get(1).Idle())
}

func TestLockSerialisesTurnsPerChat(t *testing.T) {
	store := NewStore(time.Minute, 10)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.Lock(7)
			defer unlock()

			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	store.mu.Lock()
	assert.Empty(t, store.locks, "unused locks are released")
	store.mu.Unlock()
}

func TestLockDoesNotBlockOtherChats(t *testing.T) {
	store := NewStore(time.Minute, 10)

	unlock := store.Lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		release := store.Lock(2)
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock of another chat blocked")
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	store := NewStore(time.Minute, 10)
	unlock := store.Lock(1)
	unlock()
	unlock()

	relock := store.Lock(1)
	relock()
}
