package workerpool

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mireiodev/gemforge/internal/ipc"
	"github.com/mireiodev/gemforge/internal/jobrunner"
	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/queue"
)

// IdlePeriod is the sleep between failed claim attempts (spec §4.4,
// "sleep for a configurable idle period, default 0.5s").
const IdlePeriod = 500 * time.Millisecond

// WorkerLoop is the worker subprocess's own main loop: it is what
// "gemforge internal-worker" runs. It is distinct from Pooler, which is the
// parent-process view of a worker.
type WorkerLoop struct {
	ID       uuid.UUID
	Store    queue.Store
	Runners  *jobrunner.Registry
	Log      logging.Logger
	InStream io.Reader
	OutStream io.Writer

	running    atomic.Bool
	currentJob atomic.Value // string
}

// NewWorkerLoop constructs a worker loop identified by id, bound to store
// for claiming work and runners for dispatch.
func NewWorkerLoop(id uuid.UUID, store queue.Store, runners *jobrunner.Registry, in io.Reader, out io.Writer, log logging.Logger) *WorkerLoop {
	if log == nil {
		log = logging.Discard()
	}
	w := &WorkerLoop{ID: id, Store: store, Runners: runners, Log: log, InStream: in, OutStream: out}
	w.running.Store(true)
	w.currentJob.Store("")
	return w
}

// Run blocks until the IPC supervisor sets running=false and any
// in-flight job completes (spec §4.4, "worker exits when running=false and
// the current job has completed").
func (w *WorkerLoop) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.ipcSupervisor(ctx)
	}()

	w.runLoop(ctx)
	wg.Wait()
	return nil
}

func (w *WorkerLoop) runLoop(ctx context.Context) {
	for w.running.Load() {
		id, jobType, ok, err := w.Store.ClaimNext(ctx, w.ID)
		if err != nil {
			w.Log.Error("claim_next failed", "error", err)
			time.Sleep(IdlePeriod)
			continue
		}
		if !ok {
			time.Sleep(IdlePeriod)
			continue
		}

		w.currentJob.Store(jobType + ":" + id.String())
		w.runOne(ctx, id)
		w.currentJob.Store("")
	}
}

func (w *WorkerLoop) runOne(ctx context.Context, id uuid.UUID) {
	row, err := w.Store.Get(ctx, id)
	if err != nil {
		w.Log.Error("failed to load claimed row", "id", id, "error", err)
		return
	}

	runnable, err := w.Runners.Build(*row, w.Store)
	if err != nil {
		w.Log.Error("unknown job type", "id", id, "job_type", row.JobType, "error", err)
		_ = jobrunner.Retry(ctx, noopRunnable{}, w.Store, id)
		return
	}

	if err := runnable.Setup(ctx); err != nil {
		w.Log.Error("setup failed", "id", id, "error", jobrunner.Tag(err, id, row.JobType))
		_ = jobrunner.Retry(ctx, runnable, w.Store, id)
		return
	}

	runErr := runnable.Run(ctx)
	if runErr != nil {
		w.Log.Error("run failed", "id", id, "error", jobrunner.Tag(runErr, id, row.JobType))
		if err := jobrunner.Retry(ctx, runnable, w.Store, id); err != nil {
			w.Log.Error("retry bookkeeping failed", "id", id, "error", err)
		}
		return
	}

	if err := runnable.Cleanup(ctx); err != nil {
		w.Log.Error("cleanup failed", "id", id, "error", err)
	}
	if err := w.Store.MarkCompleted(ctx, id); err != nil {
		w.Log.Error("mark_completed failed", "id", id, "error", err)
	}
}

// noopRunnable satisfies jobrunner.Retry's cleanup-always-runs contract for
// a row whose job_type has no registration: it never reruns, so Retry
// always marks it FAILED (spec §4.3, "unknown job_type ⇒ hard error...row
// marked FAILED via the retry path").
type noopRunnable struct{}

func (noopRunnable) Setup(context.Context) error   { return nil }
func (noopRunnable) Run(context.Context) error     { return nil }
func (noopRunnable) Cleanup(context.Context) error { return nil }
func (noopRunnable) ShouldRerun() bool              { return false }

// ipcSupervisor cooperatively polls InStream for Stop/Status messages and
// replies on OutStream (spec §4.4's "IPC thread"). It returns after
// acknowledging Stop, so Run is left waiting only on the in-flight job.
func (w *WorkerLoop) ipcSupervisor(ctx context.Context) {
	dec := ipc.NewDecoder(w.InStream)
	enc := ipc.NewEncoder(w.OutStream)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m, err := dec.Decode()
		if err != nil {
			return
		}
		switch m.Tag {
		case ipc.TagStop:
			w.running.Store(false)
			_ = enc.Encode(ipc.Ack(ipc.TagStop, true))
			return
		case ipc.TagStatus:
			job, _ := w.currentJob.Load().(string)
			_ = enc.Encode(ipc.StatusReply(job, w.running.Load()))
		default:
			_ = enc.Encode(ipc.Ack(m.Tag, false))
		}
	}
}
