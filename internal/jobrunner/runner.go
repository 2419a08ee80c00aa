// Package jobrunner defines the typed job runner contract and the registry
// mapping job_type strings to runner constructors, without leaking the
// generic payload type parameter into that registry (spec §9, "Typed
// generic runners").
package jobrunner

import (
	"context"

	"github.com/google/uuid"

	"github.com/mireiodev/gemforge/internal/queue"
)

// MaxRetries bounds Retries for any row whose runner declares ShouldRerun
// (spec §3 invariant: retries <= MAX_RETRIES).
const MaxRetries = 5

// Runnable is the untyped surface the worker pool actually drives: it is
// what a Runner[P] is reduced to once its payload has been decoded.
type Runnable interface {
	// Setup prepares the runner to execute.
	Setup(ctx context.Context) error
	// Run performs the job's work. May enqueue further rows (fan-out) via
	// the Store handed to the constructor.
	Run(ctx context.Context) error
	// Cleanup runs on every exit path of Run, guaranteed by the caller.
	Cleanup(ctx context.Context) error
	// ShouldRerun reports whether a failed Run should be retried rather
	// than immediately marked FAILED.
	ShouldRerun() bool
}

// Runner[P] is the typed contract implemented by concrete job runners.
// P is the runner-specific payload type decoded from JobRow.ConfigBlob.
type Runner[P any] interface {
	Runnable
	// Payload returns the decoded, typed configuration for this run.
	Payload() P
}

// DecodeFunc decodes a JobRow's ConfigBlob into a runner-specific payload.
type DecodeFunc func(blob []byte) (any, error)

// ConstructFunc builds a Runnable for a claimed row and its decoded payload.
type ConstructFunc func(row queue.JobRow, payload any, store queue.Store) Runnable

type registration struct {
	decode    DecodeFunc
	construct ConstructFunc
}

// Registry maps job_type -> (decode, construct), erasing the generic
// parameter of Runner[P] so lookups by job_type stay a plain map.
type Registry struct {
	entries map[string]registration
}

// NewRegistry returns an empty runner registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register associates jobType with a decode/construct pair. A later call
// with the same jobType replaces the earlier registration (spec §4.6,
// "Duplicate names replace the earlier entry").
func Register[P any](r *Registry, jobType string, decode func([]byte) (P, error), construct func(row queue.JobRow, payload P, store queue.Store) Runnable) {
	r.entries[jobType] = registration{
		decode: func(blob []byte) (any, error) { return decode(blob) },
		construct: func(row queue.JobRow, payload any, store queue.Store) Runnable {
			return construct(row, payload.(P), store)
		},
	}
}

// ErrUnknownJobType is returned when a row's job_type has no registration.
// Per spec §4.3, this is a hard error inside the worker: logged, the row is
// marked FAILED via the retry path.
type ErrUnknownJobType struct {
	JobType string
}

func (e *ErrUnknownJobType) Error() string {
	return "jobrunner: no runner registered for job type " + e.JobType
}

// Build decodes row.ConfigBlob and constructs the Runnable registered under
// row.JobType.
func (r *Registry) Build(row queue.JobRow, store queue.Store) (Runnable, error) {
	reg, ok := r.entries[row.JobType]
	if !ok {
		return nil, &ErrUnknownJobType{JobType: row.JobType}
	}
	payload, err := reg.decode(row.ConfigBlob)
	if err != nil {
		return nil, err
	}
	return reg.construct(row, payload, store), nil
}

// Retry implements the default runner retry policy from spec §4.3:
// cleanup always runs; if ShouldRerun is false the row is marked FAILED;
// else if retries <= MaxRetries it is incremented and re-marked PENDING
// (clearing claimed_by), otherwise it is marked FAILED.
func Retry(ctx context.Context, r Runnable, store queue.Store, jobID uuid.UUID) error {
	cleanupErr := r.Cleanup(ctx)

	if !r.ShouldRerun() {
		if err := store.MarkFailed(ctx, jobID); err != nil {
			return err
		}
		return cleanupErr
	}

	count, err := store.IncrementRetries(ctx, jobID)
	if err != nil {
		return err
	}
	if count > MaxRetries {
		if err := store.MarkFailed(ctx, jobID); err != nil {
			return err
		}
		return cleanupErr
	}
	if err := store.MarkPending(ctx, jobID); err != nil {
		return err
	}
	return cleanupErr
}

// ReapStale requeues a row whose owning worker process is no longer alive
// (spec §9 "Stale IN_PROGRESS rows"): increment retries, and if still
// within MaxRetries mark it PENDING, else mark it FAILED. Unlike Retry,
// there is no live Runnable to consult ShouldRerun or Cleanup against —
// the process that held one is gone, so there is nothing left to clean up.
func ReapStale(ctx context.Context, store queue.Store, jobID uuid.UUID) error {
	count, err := store.IncrementRetries(ctx, jobID)
	if err != nil {
		return err
	}
	if count > MaxRetries {
		return store.MarkFailed(ctx, jobID)
	}
	return store.MarkPending(ctx, jobID)
}
