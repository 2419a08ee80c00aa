package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mireiodev/gemforge/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeReaperStore struct {
	queue.Store

	mu      sync.Mutex
	claims  []queue.StaleClaim
	retries map[uuid.UUID]int
	pending map[uuid.UUID]bool
	failed  map[uuid.UUID]bool
}

func newFakeReaperStore(claims ...queue.StaleClaim) *fakeReaperStore {
	return &fakeReaperStore{
		claims:  claims,
		retries: map[uuid.UUID]int{},
		pending: map[uuid.UUID]bool{},
		failed:  map[uuid.UUID]bool{},
	}
}

func (f *fakeReaperStore) InProgressClaims(context.Context) ([]queue.StaleClaim, error) {
	return f.claims, nil
}

func (f *fakeReaperStore) IncrementRetries(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries[id]++
	return f.retries[id], nil
}

func (f *fakeReaperStore) MarkPending(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[id] = true
	return nil
}

func (f *fakeReaperStore) MarkFailed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = true
	return nil
}

// TestReapStale_DeadWorkerClaim_RequeuesAsPendingWithOneRetry is Testable
// Property S2: a row left IN_PROGRESS by a worker no longer in the pool's
// live set reappears PENDING with retries=1.
func TestReapStale_DeadWorkerClaim_RequeuesAsPendingWithOneRetry(t *testing.T) {
	jobID := uuid.New()
	deadWorker := uuid.New()
	store := newFakeReaperStore(queue.StaleClaim{
		ID:        jobID,
		ClaimedBy: deadWorker,
		StartedAt: time.Now().Add(-time.Hour),
	})

	p := New(1, 1, time.Millisecond, &fakeSpawner{}, store, nil)
	// no live workers in the pool: deadWorker's claim is unowned.
	p.reapStale(context.Background())

	require.True(t, store.pending[jobID])
	require.False(t, store.failed[jobID])
	require.Equal(t, 1, store.retries[jobID])
}

func TestReapStale_ClaimOwnedByLiveWorker_LeftAlone(t *testing.T) {
	jobID := uuid.New()
	liveWorker := newFakeProcess()
	store := newFakeReaperStore(queue.StaleClaim{
		ID:        jobID,
		ClaimedBy: liveWorker.ID(),
		StartedAt: time.Now().Add(-time.Hour),
	})

	p := New(1, 1, time.Millisecond, &fakeSpawner{}, store, nil)
	p.workers = []Process{liveWorker}
	p.reapStale(context.Background())

	require.False(t, store.pending[jobID])
	require.Zero(t, store.retries[jobID])
}

func TestReapStale_WithinGracePeriod_LeftAlone(t *testing.T) {
	jobID := uuid.New()
	store := newFakeReaperStore(queue.StaleClaim{
		ID:        jobID,
		ClaimedBy: uuid.New(),
		StartedAt: time.Now(),
	})

	p := New(1, 1, time.Millisecond, &fakeSpawner{}, store, nil)
	p.reapStale(context.Background())

	require.False(t, store.pending[jobID])
}

func TestReapStale_OverMaxRetries_MarksFailed(t *testing.T) {
	jobID := uuid.New()
	store := newFakeReaperStore(queue.StaleClaim{
		ID:        jobID,
		ClaimedBy: uuid.New(),
		StartedAt: time.Now().Add(-time.Hour),
	})
	store.retries[jobID] = 5 // already at MaxRetries

	p := New(1, 1, time.Millisecond, &fakeSpawner{}, store, nil)
	p.reapStale(context.Background())

	require.True(t, store.failed[jobID])
	require.False(t, store.pending[jobID])
}
