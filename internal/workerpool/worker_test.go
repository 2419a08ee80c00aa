package workerpool

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mireiodev/gemforge/internal/ipc"
	"github.com/mireiodev/gemforge/internal/jobrunner"
	"github.com/mireiodev/gemforge/internal/queue"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	queue.Store
	mu        sync.Mutex
	rows      map[uuid.UUID]*queue.JobRow
	completed int
	failed    int
	claimed   bool
}

func newMemStore(row *queue.JobRow) *memStore {
	return &memStore{rows: map[uuid.UUID]*queue.JobRow{row.ID: row}}
}

func (m *memStore) ClaimNext(context.Context, uuid.UUID) (uuid.UUID, string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed {
		return uuid.Nil, "", false, nil
	}
	for id, row := range m.rows {
		m.claimed = true
		return id, row.JobType, true, nil
	}
	return uuid.Nil, "", false, nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*queue.JobRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id], nil
}

func (m *memStore) MarkCompleted(context.Context, uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
	return nil
}

func (m *memStore) MarkFailed(context.Context, uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	return nil
}

func (m *memStore) MarkPending(context.Context, uuid.UUID) error { return nil }
func (m *memStore) IncrementRetries(context.Context, uuid.UUID) (int, error) { return 1, nil }

type alwaysOKRunnable struct{ ran chan struct{} }

func (r *alwaysOKRunnable) Setup(context.Context) error { return nil }
func (r *alwaysOKRunnable) Run(context.Context) error   { close(r.ran); return nil }
func (r *alwaysOKRunnable) Cleanup(context.Context) error { return nil }
func (r *alwaysOKRunnable) ShouldRerun() bool             { return false }

func TestWorkerLoop_ClaimsRunsAndCompletes(t *testing.T) {
	row := &queue.JobRow{ID: uuid.New(), JobType: "noop"}
	store := newMemStore(row)

	runners := jobrunner.NewRegistry()
	ran := make(chan struct{})
	jobrunner.Register(runners, "noop", func([]byte) (struct{}, error) { return struct{}{}, nil },
		func(queue.JobRow, struct{}, queue.Store) jobrunner.Runnable { return &alwaysOKRunnable{ran: ran} })

	in, _ := io.Pipe()
	var out bytes.Buffer
	w := NewWorkerLoop(uuid.New(), store, runners, in, &out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}

	w.running.Store(false)
	cancel()
	_ = in.Close()
	<-done

	require.Equal(t, 1, store.completed)
	require.Equal(t, 0, store.failed)
}

func TestIPCSupervisor_StopRepliesWithAck(t *testing.T) {
	inR, inW := io.Pipe()
	var out bytes.Buffer
	w := NewWorkerLoop(uuid.New(), newMemStore(&queue.JobRow{ID: uuid.New()}), jobrunner.NewRegistry(), inR, &out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer inR.Close()
	supervisorDone := make(chan struct{})
	go func() { w.ipcSupervisor(ctx); close(supervisorDone) }()

	enc := ipc.NewEncoder(inW)
	require.NoError(t, enc.Encode(ipc.Stop()))

	require.Eventually(t, func() bool {
		return !w.running.Load()
	}, time.Second, 5*time.Millisecond)

	_ = inW.Close()
	<-supervisorDone
	m, err := ipc.NewDecoder(&out).Decode()
	require.NoError(t, err)
	require.Equal(t, ipc.TagAck, m.Tag)
	require.Equal(t, ipc.TagStop, m.AckTag)
	require.True(t, m.OK)
}
