package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mireiodev/gemforge/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	queue.Store
	mu      sync.Mutex
	added   []*queue.JobRow
	status  queue.Status
	purged  int
}

func (f *fakeStore) Add(_ context.Context, row *queue.JobRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, row)
	return nil
}
func (f *fakeStore) Status(context.Context) (queue.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}
func (f *fakeStore) PurgeCompleted(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged++
	return nil
}

func TestNew_UnknownMode_ReturnsConfigError(t *testing.T) {
	_, err := New("bogus", nil, &fakeStore{}, 0, nil)
	var unknownErr *ErrUnknownMode
	require.ErrorAs(t, err, &unknownErr)
}

func TestOneShotScheduler_StartEnqueuesAllJobs(t *testing.T) {
	store := &fakeStore{}
	s := NewOneShotScheduler([]Job{{Name: "a"}, {Name: "b"}}, store, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Len(t, store.added, 2)
}

func TestOneShotScheduler_TickReportsDoneWhenDrained(t *testing.T) {
	store := &fakeStore{status: queue.Status{Pending: 0, InProgress: 0}}
	s := NewOneShotScheduler(nil, store, nil)
	done, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, done)
}

func TestOneShotScheduler_TickNotDoneWhileWorkOutstanding(t *testing.T) {
	store := &fakeStore{status: queue.Status{Pending: 1}}
	s := NewOneShotScheduler(nil, store, nil)
	done, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.False(t, done)
}

func TestRunner_RunsUntilSchedulerReportsDone(t *testing.T) {
	store := &fakeStore{status: queue.Status{Pending: 0, InProgress: 0}}
	s := NewOneShotScheduler([]Job{{Name: "only"}}, store, nil)
	r := NewRunner(s, 5*time.Millisecond, 5*time.Millisecond, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, r.Run(ctx))
	require.Len(t, store.added, 1)
	require.GreaterOrEqual(t, store.purged, 1)
}

func TestCronScheduler_ReEnqueuesOnEachInterval(t *testing.T) {
	store := &fakeStore{}
	s := NewCronScheduler([]Job{{Name: "recur"}}, store, time.Millisecond, nil)
	require.NoError(t, s.Start(context.Background()))
	require.Len(t, store.added, 1)

	time.Sleep(5 * time.Millisecond)
	done, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.False(t, done)
	require.Len(t, store.added, 2)
}
