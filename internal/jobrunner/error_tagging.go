package jobrunner

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TaggedError is RUNNER_ERROR from spec §7: any error during Run, wrapped
// with enough correlation metadata (job id, job type) for logging, mirroring
// the teacher's taskTaggedError pattern (wrap + Unwrap + extractor helpers).
type TaggedError struct {
	err     error
	jobID   uuid.UUID
	jobType string
}

// Tag wraps err with job correlation metadata. Returns nil if err is nil.
func Tag(err error, jobID uuid.UUID, jobType string) error {
	if err == nil {
		return nil
	}
	return &TaggedError{err: err, jobID: jobID, jobType: jobType}
}

func (e *TaggedError) Error() string { return e.err.Error() }
func (e *TaggedError) Unwrap() error { return e.err }

func (e *TaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "job(id=%s,type=%s): %+v", e.jobID, e.jobType, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	}
}

// JobID extracts the job id from err, if tagged.
func JobID(err error) (uuid.UUID, bool) {
	var te *TaggedError
	if errors.As(err, &te) {
		return te.jobID, true
	}
	return uuid.Nil, false
}

// JobType extracts the job type from err, if tagged.
func JobType(err error) (string, bool) {
	var te *TaggedError
	if errors.As(err, &te) {
		return te.jobType, true
	}
	return "", false
}
