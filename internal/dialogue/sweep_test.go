package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepAttachments_RemovesOnlyOrphans(t *testing.T) {
	d, _, files := newDialogue(t)
	ctx := context.Background()

	draft := "42/draft.pdf"
	require.NoError(t, d.store.Set(ctx, sessionKey(client), &Session{
		ConversationID: client,
		UserID:         client,
		Step:           StepConfirming,
		FilePath:       &draft,
	}))

	files.stale = []string{draft, "42/order.pdf", "42/expired.pdf", "7/expired.txt", "notes/readme.txt", "loose.pdf"}
	referenced := func(_ context.Context, path string) (bool, error) {
		return path == "42/order.pdf", nil
	}

	removed, err := d.SweepAttachments(ctx, time.Now().Add(-time.Hour), referenced)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"42/expired.pdf", "7/expired.txt"}, files.deleted)
}

func TestSweepAttachments_KeepsFileWhenCheckFails(t *testing.T) {
	d, _, files := newDialogue(t)
	files.stale = []string{"42/unknown.pdf"}

	removed, err := d.SweepAttachments(context.Background(), time.Now(), func(context.Context, string) (bool, error) {
		return false, errors.New("connection refused")
	})
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Empty(t, files.deleted)
}

func TestSweepAttachments_ExpiredDraftReleasesFile(t *testing.T) {
	d, _, files := newDialogue(t)
	store := d.store.(*MemoryStore)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	draft := "42/draft.pdf"
	require.NoError(t, store.Set(ctx, sessionKey(client), &Session{ConversationID: client, UserID: client, FilePath: &draft}))
	now = now.Add(2 * time.Hour)

	files.stale = []string{draft}
	removed, err := d.SweepAttachments(ctx, now.Add(-time.Hour), func(context.Context, string) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{draft}, files.deleted)
}
