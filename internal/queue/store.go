package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the transactional backing store for job rows with atomic claim
// semantics. It is the only shared state between worker processes (spec §5).
type Store interface {
	// Add inserts a PENDING row, assigning CreatedAt = now. It sets row.ID
	// if unset.
	Add(ctx context.Context, row *JobRow) error

	// AddBatch inserts many PENDING rows in one round trip.
	AddBatch(ctx context.Context, rows []*JobRow) error

	// ClaimNext atomically selects the highest-priority, oldest PENDING row
	// and transitions it to IN_PROGRESS, stamping ClaimedBy and StartedAt.
	// Returns ok=false if no row is available. Safe under concurrent callers:
	// at most one caller observes a given row (Testable Property 1 / S1).
	ClaimNext(ctx context.Context, workerID uuid.UUID) (id uuid.UUID, jobType string, ok bool, err error)

	// Get returns a single row by id, or *NotFoundError.
	Get(ctx context.Context, id uuid.UUID) (*JobRow, error)

	// MarkCompleted transitions IN_PROGRESS -> COMPLETED.
	MarkCompleted(ctx context.Context, id uuid.UUID) error

	// MarkFailed transitions IN_PROGRESS -> FAILED.
	MarkFailed(ctx context.Context, id uuid.UUID) error

	// MarkPending requeues a row (IN_PROGRESS -> PENDING), clearing ClaimedBy.
	MarkPending(ctx context.Context, id uuid.UUID) error

	// IncrementRetries increments and returns the row's retry counter.
	IncrementRetries(ctx context.Context, id uuid.UUID) (newCount int, err error)

	// Status reports pending/in-progress counts and the pending ratio,
	// pending / (pending + in_progress), or 0 when both are zero.
	Status(ctx context.Context) (Status, error)

	// PurgeCompleted removes all COMPLETED rows.
	PurgeCompleted(ctx context.Context) error

	// JobsByNameAndState lists up to limit row ids matching name and state,
	// ordered (-priority, created_at) ascending. limit<=0 means 10.
	JobsByNameAndState(ctx context.Context, name string, state State, limit int) ([]uuid.UUID, error)

	// InProgressClaims lists every IN_PROGRESS row's claimant and claim
	// time, for the worker pool's reaper to cross-reference against its
	// live worker set (Testable Property S2).
	InProgressClaims(ctx context.Context) ([]StaleClaim, error)
}

// StaleClaim is one IN_PROGRESS row as seen by the reaper: which worker
// claimed it and when.
type StaleClaim struct {
	ID        uuid.UUID
	ClaimedBy uuid.UUID
	StartedAt time.Time
}

// now is indirected so tests can freeze time; production uses time.Now.
var now = time.Now
