// Package workerpool implements the Pooler: the parent-process loop that
// spawns worker OS processes, balances their count against queue load, and
// drives their shutdown (spec §4.4).
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mireiodev/gemforge/internal/ipc"
	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/metrics"
	"github.com/mireiodev/gemforge/internal/queue"
)

// ErrWorkerShutdown is spec §7's WORKER_SHUTDOWN_ERROR: a worker failed both
// its polite stop and its force-kill.
type ErrWorkerShutdown struct {
	ID  uuid.UUID
	Err error
}

func (e *ErrWorkerShutdown) Error() string {
	return fmt.Sprintf("workerpool: force-kill worker %s: %v", e.ID, e.Err)
}
func (e *ErrWorkerShutdown) Unwrap() error { return e.Err }

// stopAckTimeout and joinTimeout implement spec §4.4's stop_worker contract:
// "send stop; if ack received within 5s, join up to 5s. Otherwise
// force-kill".
const (
	stopAckTimeout = 5 * time.Second
	joinTimeout    = 5 * time.Second
)

// Pooler maintains between Min and Max worker processes, adjusting count by
// the balancing algorithm of spec §4.4.
type Pooler struct {
	Min, Max int
	TickRate time.Duration

	spawner Spawner
	store   queue.Store
	log     logging.Logger

	// Metrics records pool-size and worker-lifecycle events. Defaults to a
	// no-op provider; set it directly after New returns to record real
	// metrics (e.g. metrics.NewBasicProvider()).
	Metrics metrics.Provider

	mu      sync.Mutex
	workers []Process

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Pooler. min must be >= 1 and max >= min.
func New(min, max int, tickRate time.Duration, spawner Spawner, store queue.Store, log logging.Logger) *Pooler {
	if log == nil {
		log = logging.Discard()
	}
	return &Pooler{
		Min: min, Max: max, TickRate: tickRate,
		spawner: spawner, store: store, log: log,
		Metrics: metrics.NewNoopProvider(),
		stopCh:  make(chan struct{}),
	}
}

func (p *Pooler) activeWorkers() metrics.UpDownCounter {
	return p.Metrics.UpDownCounter("active_workers", metrics.WithDescription("worker processes currently in the pool"))
}

func (p *Pooler) workersSpawned() metrics.Counter {
	return p.Metrics.Counter("workers_spawned_total", metrics.WithDescription("worker processes spawned"))
}

func (p *Pooler) workerShutdownFailures() metrics.Counter {
	return p.Metrics.Counter("worker_shutdown_failures_total", metrics.WithDescription("workers that required force-kill and still failed"))
}

// Start spawns Min workers, then ticks at TickRate calling
// cleanUpDeadWorkers and balanceWorkers until ctx is cancelled or Stop is
// called, at which point every worker is stopped.
func (p *Pooler) Start(ctx context.Context) error {
	for i := 0; i < p.Min; i++ {
		if err := p.spawnOne(ctx); err != nil {
			p.log.Error("failed to spawn initial worker", "error", err)
		}
	}

	ticker := time.NewTicker(p.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.stopAll(context.Background())
			return ctx.Err()
		case <-p.stopCh:
			p.stopAll(context.Background())
			return nil
		case <-ticker.C:
			p.cleanUpDeadWorkers()
			p.reapStale(ctx)
			if err := p.balanceWorkers(ctx); err != nil {
				var shutdownErr *ErrWorkerShutdown
				if errors.As(err, &shutdownErr) {
					p.log.Error("worker shutdown failed", "worker", shutdownErr.ID, "error", err)
					return err
				}
				p.log.Error("balance_workers error", "error", err)
			}
		}
	}
}

// Stop signals Start's loop to stop every worker and return.
func (p *Pooler) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *Pooler) spawnOne(ctx context.Context) error {
	proc, err := p.spawner.Spawn(ctx, uuid.New())
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.workers = append(p.workers, proc)
	p.mu.Unlock()
	p.workersSpawned().Add(1)
	p.activeWorkers().Add(1)
	return nil
}

// cleanUpDeadWorkers drops workers whose process has exited.
func (p *Pooler) cleanUpDeadWorkers() {
	p.mu.Lock()
	live := p.workers[:0]
	dead := 0
	for _, w := range p.workers {
		if w.Alive() {
			live = append(live, w)
		} else {
			dead++
		}
	}
	p.workers = live
	p.mu.Unlock()
	if dead > 0 {
		p.activeWorkers().Add(-int64(dead))
	}
}

func (p *Pooler) workerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// balanceWorkers implements spec §4.4's algorithm verbatim:
//
//	W = |workers|, (P, I, ratio) = queue.status(), load = I / W.
//	W < min              -> spawn until W = min
//	ratio>0.25, load>=0.8, W<max -> spawn one
//	ratio<0.01, load<=0.5, W>min -> stop one (first enumerated)
//	otherwise: no change.
func (p *Pooler) balanceWorkers(ctx context.Context) error {
	w := p.workerCount()
	if w < p.Min {
		for w < p.Min {
			if err := p.spawnOne(ctx); err != nil {
				return err
			}
			w++
		}
		return nil
	}

	status, err := p.store.Status(ctx)
	if err != nil {
		return err
	}

	var load float64
	if w > 0 {
		load = float64(status.InProgress) / float64(w)
	}

	switch {
	case status.PendingRatio > 0.25 && load >= 0.8 && w < p.Max:
		return p.spawnOne(ctx)
	case status.PendingRatio < 0.01 && load <= 0.5 && w > p.Min:
		return p.stopFirst(ctx)
	default:
		return nil
	}
}

func (p *Pooler) stopFirst(ctx context.Context) error {
	p.mu.Lock()
	if len(p.workers) == 0 {
		p.mu.Unlock()
		return nil
	}
	victim := p.workers[0]
	p.mu.Unlock()
	return p.stopWorker(ctx, victim)
}

func (p *Pooler) stopAll(ctx context.Context) {
	p.mu.Lock()
	workers := append([]Process(nil), p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		if err := p.stopWorker(ctx, w); err != nil {
			p.log.Error("error stopping worker during shutdown", "worker", w.ID(), "error", err)
		}
	}
}

// stopWorker implements spec §4.4's stop_worker: polite stop, grace period,
// force-kill escalation. The worker is removed from the pool on every path.
func (p *Pooler) stopWorker(ctx context.Context, w Process) error {
	defer p.remove(w.ID())

	if err := w.Send(ipc.Stop()); err == nil {
		if _, ackErr := waitForAck(ctx, w, ipc.TagStop, stopAckTimeout); ackErr == nil {
			joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- w.Wait() }()
			select {
			case <-done:
				return nil
			case <-joinCtx.Done():
				// fall through to force-kill
			}
		}
	}

	if err := w.Kill(); err != nil {
		p.workerShutdownFailures().Add(1)
		return &ErrWorkerShutdown{ID: w.ID(), Err: err}
	}
	return nil
}

func (p *Pooler) remove(id uuid.UUID) {
	p.mu.Lock()
	removed := false
	for i, w := range p.workers {
		if w.ID() == id {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			removed = true
			break
		}
	}
	p.mu.Unlock()
	if removed {
		p.activeWorkers().Add(-1)
	}
}
