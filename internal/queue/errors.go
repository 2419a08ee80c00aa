package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const Namespace = "queue"

var (
	// ErrEntryNotFound is ENTRY_NOT_FOUND from spec §7: a lookup for an
	// absent id. Surfaced to the runner, which marks the row FAILED.
	ErrEntryNotFound = errors.New(Namespace + ": entry not found")

	// ErrTransient is TRANSIENT_DB_ERROR from spec §7: a statement or
	// connection error. Store implementations retry once after resetting
	// the session before wrapping the final failure in this sentinel.
	ErrTransient = errors.New(Namespace + ": transient database error")
)

// NotFoundError wraps ErrEntryNotFound with the offending id for logging.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: job %s not found", Namespace, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrEntryNotFound }

// TransientError wraps ErrTransient with the underlying driver error.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: transient error: %v", Namespace, e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransient }
