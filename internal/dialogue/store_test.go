package dialogue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Expiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(30 * time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "order:1", &Session{ConversationID: 1, Step: StepEnteringBudget}))

	var got Session
	ok, err := s.Get(ctx, "order:1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepEnteringBudget, got.Step)

	now = now.Add(31 * time.Minute)
	ok, err = s.Get(ctx, "order:1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Sweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", 1))
	now = now.Add(2 * time.Minute)
	require.NoError(t, s.Set(ctx, "b", 2))

	assert.Equal(t, 1, s.Sweep())

	var v int
	ok, err := s.Get(ctx, "b", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "x"))
	require.NoError(t, s.Delete(ctx, "a"))

	var v string
	ok, err := s.Get(ctx, "a", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TakeHandsValueToOneCaller(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "order:1", &Session{ConversationID: 1, Step: StepConfirming}))

	const callers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got Session
			ok, err := s.Take(ctx, "order:1", &got)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, taken)
	var got Session
	ok, err := s.Get(ctx, "order:1", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TakeIgnoresExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "prompt:1", "x"))
	now = now.Add(2 * time.Minute)

	var v string
	ok, err := s.Take(ctx, "prompt:1", &v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Sweep())
}
