package scheduler

import (
	"context"
	"time"

	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/queue"
)

// DefaultGCInterval is spec §4.5's "periodically (default every 120s) calls
// purge_completed()".
const DefaultGCInterval = 120 * time.Second

// Runner owns a Scheduler's tick loop plus a background garbage-collector
// task that periodically purges COMPLETED rows.
type Runner struct {
	Scheduler Scheduler
	TickRate  time.Duration
	GCInterval time.Duration
	Store     queue.Store
	Log       logging.Logger
}

// NewRunner builds a Runner with DefaultGCInterval applied if gcInterval<=0.
func NewRunner(s Scheduler, tickRate, gcInterval time.Duration, store queue.Store, log logging.Logger) *Runner {
	if gcInterval <= 0 {
		gcInterval = DefaultGCInterval
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Runner{Scheduler: s, TickRate: tickRate, GCInterval: gcInterval, Store: store, Log: log}
}

// Run starts the scheduler, ticks it at TickRate until it reports done (or
// ctx is cancelled), runs a concurrent garbage collector the whole time,
// and finally calls Stop.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Scheduler.Start(ctx); err != nil {
		return err
	}

	gcCtx, cancelGC := context.WithCancel(ctx)
	defer cancelGC()
	gcDone := make(chan struct{})
	go func() {
		defer close(gcDone)
		r.runGC(gcCtx)
	}()

	ticker := time.NewTicker(r.TickRate)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case <-ticker.C:
			done, err := r.Scheduler.Tick(ctx)
			if err != nil {
				r.Log.Error("scheduler tick error", "error", err)
				continue
			}
			if done {
				break loop
			}
		}
	}

	cancelGC()
	<-gcDone

	if stopErr := r.Scheduler.Stop(context.Background()); stopErr != nil && runErr == nil {
		runErr = stopErr
	}
	return runErr
}

func (r *Runner) runGC(ctx context.Context) {
	ticker := time.NewTicker(r.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Store.PurgeCompleted(ctx); err != nil {
				r.Log.Error("garbage collector purge failed", "error", err)
			}
		}
	}
}
