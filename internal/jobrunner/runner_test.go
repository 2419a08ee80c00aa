package jobrunner

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mireiodev/gemforge/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	queue.Store
	retries int
	pending bool
	failed  bool
}

func (f *fakeStore) IncrementRetries(context.Context, uuid.UUID) (int, error) {
	f.retries++
	return f.retries, nil
}
func (f *fakeStore) MarkPending(context.Context, uuid.UUID) error { f.pending = true; return nil }
func (f *fakeStore) MarkFailed(context.Context, uuid.UUID) error  { f.failed = true; return nil }

func TestReapStale_FirstReap_RequeuesPendingWithOneRetry(t *testing.T) {
	store := &fakeStore{}
	err := ReapStale(context.Background(), store, uuid.New())
	require.NoError(t, err)
	require.True(t, store.pending)
	require.False(t, store.failed)
	require.Equal(t, 1, store.retries)
}

func TestReapStale_PastMaxRetries_MarksFailed(t *testing.T) {
	store := &fakeStore{retries: MaxRetries}
	err := ReapStale(context.Background(), store, uuid.New())
	require.NoError(t, err)
	require.True(t, store.failed)
	require.False(t, store.pending)
}
