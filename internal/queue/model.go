// Package queue implements the transactional job queue store: the sole
// shared state between worker processes.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// State is a JobRow's position in its lifecycle.
type State int

const (
	Pending State = iota
	InProgress
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// JobRow is the sole persisted entity of the queue.
//
// Invariants (enforced by Store implementations, not by this type):
//   - State == InProgress implies ClaimedBy is valid and StartedAt is non-nil.
//   - State in {Pending, Completed, Failed} implies ClaimedBy is invalid.
type JobRow struct {
	ID         uuid.UUID
	Name       string
	JobType    string
	ConfigBlob []byte
	State      State
	Priority   int
	CreatedAt  time.Time
	StartedAt  *time.Time
	ClaimedBy  uuid.NullUUID
	Retries    int
}

// Status summarizes queue load, as observed by the Pooler's balancing loop.
type Status struct {
	Pending     int
	InProgress  int
	PendingRatio float64
}
