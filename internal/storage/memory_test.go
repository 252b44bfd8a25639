package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageQueue(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	defer s.Close()

	require.NoError(t, s.AddURLs(ctx, []string{"https://a.test", "https://b.test", "https://a.test"}))
	size, err := s.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	next, err := s.GetNextURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueuedURL{URL: "https://a.test", Status: Processing}, next)
	require.NoError(t, s.MarkDone(ctx, next.URL))

	next, err = s.GetNextURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://b.test", next.URL)

	_, err = s.GetNextURL(ctx)
	assert.ErrorIs(t, err, ErrEmptyQueue)

	// done urls are not queued again
	require.NoError(t, s.AddURLs(ctx, []string{"https://a.test"}))
	size, err = s.QueueSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestMemoryStorageRetries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	require.NoError(t, s.AddURLs(ctx, []string{"https://a.test"}))

	for range maxRetries {
		next, err := s.GetNextURL(ctx)
		require.NoError(t, err)
		require.NoError(t, s.MarkFailed(ctx, next.URL, "unsolved"))
	}

	_, err := s.GetNextURL(ctx)
	assert.ErrorIs(t, err, ErrEmptyQueue)
}
