package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mireiodev/gemforge/internal/ipc"
	"github.com/mireiodev/gemforge/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	id uuid.UUID

	mu       sync.Mutex
	alive    bool
	acked    bool
	neverAck bool
	killed   bool
	killErr  error
}

func newFakeProcess() *fakeProcess { return &fakeProcess{id: uuid.New(), alive: true} }

func (p *fakeProcess) ID() uuid.UUID { return p.id }
func (p *fakeProcess) Send(m ipc.Message) error {
	if m.Tag == ipc.TagStop {
		p.mu.Lock()
		if !p.neverAck {
			p.acked = true
		}
		p.mu.Unlock()
	}
	return nil
}
func (p *fakeProcess) Recv(ctx context.Context) (ipc.Message, error) {
	p.mu.Lock()
	acked := p.acked
	p.mu.Unlock()
	if acked {
		return ipc.Ack(ipc.TagStop, true), nil
	}
	<-ctx.Done()
	return ipc.Message{}, ctx.Err()
}
func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}
func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	p.alive = false
	return p.killErr
}
func (p *fakeProcess) Wait() error {
	p.mu.Lock()
	p.alive = false
	p.mu.Unlock()
	return nil
}

type fakeSpawner struct {
	mu      sync.Mutex
	spawned []*fakeProcess
}

func (s *fakeSpawner) Spawn(context.Context, uuid.UUID) (Process, error) {
	p := newFakeProcess()
	s.mu.Lock()
	s.spawned = append(s.spawned, p)
	s.mu.Unlock()
	return p, nil
}

type fakeQueueStore struct {
	queue.Store
	status queue.Status
}

func (f *fakeQueueStore) Status(context.Context) (queue.Status, error) { return f.status, nil }

func TestBalanceWorkers_SpawnsUpToMin(t *testing.T) {
	spawner := &fakeSpawner{}
	store := &fakeQueueStore{}
	p := New(3, 5, time.Millisecond, spawner, store, nil)

	require.NoError(t, p.balanceWorkers(context.Background()))
	require.Equal(t, 3, p.workerCount())
}

func TestBalanceWorkers_ScalesUpUnderLoad(t *testing.T) {
	spawner := &fakeSpawner{}
	store := &fakeQueueStore{status: queue.Status{Pending: 10, InProgress: 2, PendingRatio: 0.83}}
	p := New(2, 5, time.Millisecond, spawner, store, nil)
	require.NoError(t, p.balanceWorkers(context.Background())) // bring to min=2

	require.NoError(t, p.balanceWorkers(context.Background()))
	require.Equal(t, 3, p.workerCount())
}

func TestBalanceWorkers_NeverExceedsMax(t *testing.T) {
	spawner := &fakeSpawner{}
	store := &fakeQueueStore{status: queue.Status{PendingRatio: 0.9, InProgress: 10}}
	p := New(2, 2, time.Millisecond, spawner, store, nil)
	require.NoError(t, p.balanceWorkers(context.Background()))
	require.NoError(t, p.balanceWorkers(context.Background()))
	require.LessOrEqual(t, p.workerCount(), 2)
}

func TestBalanceWorkers_ScalesDownWhenIdle(t *testing.T) {
	spawner := &fakeSpawner{}
	store := &fakeQueueStore{status: queue.Status{PendingRatio: 0, InProgress: 0}}
	p := New(2, 5, time.Millisecond, spawner, store, nil)
	require.NoError(t, p.balanceWorkers(context.Background()))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.spawnOne(context.Background()))
	}
	require.Equal(t, 5, p.workerCount())

	require.NoError(t, p.balanceWorkers(context.Background()))
	require.Equal(t, 4, p.workerCount())
}

func TestBalanceWorkers_NeverShrinksBelowMin(t *testing.T) {
	spawner := &fakeSpawner{}
	store := &fakeQueueStore{status: queue.Status{PendingRatio: 0, InProgress: 0}}
	p := New(2, 5, time.Millisecond, spawner, store, nil)
	require.NoError(t, p.balanceWorkers(context.Background()))
	require.NoError(t, p.balanceWorkers(context.Background()))
	require.GreaterOrEqual(t, p.workerCount(), 2)
}

func TestStopWorker_GracefulAckRemovesFromPool(t *testing.T) {
	spawner := &fakeSpawner{}
	store := &fakeQueueStore{}
	p := New(1, 1, time.Millisecond, spawner, store, nil)
	require.NoError(t, p.spawnOne(context.Background()))
	require.Equal(t, 1, p.workerCount())

	require.NoError(t, p.stopFirst(context.Background()))
	require.Equal(t, 0, p.workerCount())
}

func TestStopWorker_ForceKillFailure_ReturnsShutdownError(t *testing.T) {
	spawner := &fakeSpawner{}
	p := New(1, 1, time.Millisecond, spawner, &fakeQueueStore{}, nil)
	proc := newFakeProcess()
	proc.killErr = errors.New("kill failed")
	proc.neverAck = true

	p.mu.Lock()
	p.workers = []Process{proc}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.stopWorker(ctx, proc)
	var shutdownErr *ErrWorkerShutdown
	require.ErrorAs(t, err, &shutdownErr)
	require.Equal(t, 0, p.workerCount())
}
