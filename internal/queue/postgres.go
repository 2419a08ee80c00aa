package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Schema is the DDL for the job_queue table. The table is created UNLOGGED:
// spec §6 calls for the queue to be "marked non-durable (or equivalent) for
// throughput; crash recovery is not guaranteed."
const Schema = `
CREATE UNLOGGED TABLE IF NOT EXISTS job_queue (
	id           uuid PRIMARY KEY,
	name         text NOT NULL,
	job_type     text NOT NULL,
	config_blob  jsonb NOT NULL,
	state        smallint NOT NULL DEFAULT 0,
	priority     integer NOT NULL DEFAULT 0,
	created_at   timestamptz NOT NULL,
	started_at   timestamptz,
	claimed_by   uuid,
	retries      integer NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS job_queue_claim_idx ON job_queue (state, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS job_queue_name_idx ON job_queue (name);
CREATE INDEX IF NOT EXISTS job_queue_created_at_idx ON job_queue (created_at);
`

// PostgresStore is the Store implementation backed by PostgreSQL via sqlx
// and lib/pq, using "SELECT ... FOR UPDATE SKIP LOCKED" for claim semantics
// (spec §4.1's "row-level lock that skips contended rows").
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already-opened *sqlx.DB. Callers own the
// connection lifecycle (Open/Close/Ping).
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to dsn using the lib/pq driver and wraps it in a
// *PostgresStore, creating the schema if absent.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, &TransientError{Op: "open", Err: err}
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, &TransientError{Op: "migrate", Err: err}
	}
	return NewPostgresStore(db), nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// withRetry runs op once; on a transient (session-level) failure it resets
// the connection and retries exactly once before surfacing the error,
// per spec §4.1/§7.
func (s *PostgresStore) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if !isTransient(err) {
		return err
	}
	_ = s.db.PingContext(ctx) // best-effort session reset
	if err2 := fn(); err2 != nil {
		return &TransientError{Op: op, Err: err2}
	}
	return nil
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrEntryNotFound) {
		return false
	}
	return true
}

func (s *PostgresStore) Add(ctx context.Context, row *JobRow) error {
	return s.AddBatch(ctx, []*JobRow{row})
}

func (s *PostgresStore) AddBatch(ctx context.Context, rows []*JobRow) error {
	return s.withRetry(ctx, "add_batch", func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, row := range rows {
			if row.ID == uuid.Nil {
				row.ID = uuid.New()
			}
			row.CreatedAt = now()
			row.State = Pending
			blob := row.ConfigBlob
			if blob == nil {
				blob = []byte(`{}`)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO job_queue (id, name, job_type, config_blob, state, priority, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				row.ID, row.Name, row.JobType, blob, Pending, row.Priority, row.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *PostgresStore) ClaimNext(ctx context.Context, workerID uuid.UUID) (uuid.UUID, string, bool, error) {
	var (
		id      uuid.UUID
		jobType string
		found   bool
	)
	err := s.withRetry(ctx, "claim_next", func() error {
		found = false
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowxContext(ctx, `
			SELECT id, job_type FROM job_queue
			 WHERE state = $1
			 ORDER BY priority DESC, created_at ASC
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED`, Pending)
		if err := row.Scan(&id, &jobType); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return tx.Commit()
			}
			return err
		}

		started := now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE job_queue SET state = $1, claimed_by = $2, started_at = $3
			 WHERE id = $4`, InProgress, workerID, started, id); err != nil {
			return err
		}
		found = true
		return tx.Commit()
	})
	return id, jobType, found, err
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*JobRow, error) {
	var (
		row        JobRow
		claimedBy  uuid.NullUUID
		startedAt  sql.NullTime
		configBlob []byte
	)
	err := s.withRetry(ctx, "get", func() error {
		return s.db.QueryRowxContext(ctx, `
			SELECT id, name, job_type, config_blob, state, priority, created_at, started_at, claimed_by, retries
			 FROM job_queue WHERE id = $1`, id).
			Scan(&row.ID, &row.Name, &row.JobType, &configBlob, &row.State, &row.Priority,
				&row.CreatedAt, &startedAt, &claimedBy, &row.Retries)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	row.ConfigBlob = configBlob
	row.ClaimedBy = claimedBy
	if startedAt.Valid {
		t := startedAt.Time
		row.StartedAt = &t
	}
	return &row, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, "mark_completed", Completed, false)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, "mark_failed", Failed, false)
}

func (s *PostgresStore) MarkPending(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, "mark_pending", Pending, true)
}

// transition moves a row to state, clearing claimed_by for any
// non-IN_PROGRESS target state (spec §3 invariants); started_at is left as
// stamped by the last claim.
func (s *PostgresStore) transition(ctx context.Context, id uuid.UUID, op string, state State, incrementRetries bool) error {
	return s.withRetry(ctx, op, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE job_queue
			   SET state = $1, claimed_by = NULL
			 WHERE id = $2`, state, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &NotFoundError{ID: id}
		}
		return nil
	})
}

func (s *PostgresStore) IncrementRetries(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := s.withRetry(ctx, "increment_retries", func() error {
		return s.db.QueryRowxContext(ctx, `
			UPDATE job_queue SET retries = retries + 1 WHERE id = $1
			 RETURNING retries`, id).Scan(&count)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &NotFoundError{ID: id}
	}
	return count, err
}

func (s *PostgresStore) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.withRetry(ctx, "status", func() error {
		return s.db.QueryRowxContext(ctx, `
			SELECT
				COUNT(*) FILTER (WHERE state = $1),
				COUNT(*) FILTER (WHERE state = $2)
			FROM job_queue`, Pending, InProgress).Scan(&st.Pending, &st.InProgress)
	})
	if err != nil {
		return Status{}, err
	}
	total := st.Pending + st.InProgress
	if total > 0 {
		st.PendingRatio = float64(st.Pending) / float64(total)
	}
	return st, nil
}

func (s *PostgresStore) PurgeCompleted(ctx context.Context) error {
	return s.withRetry(ctx, "purge_completed", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM job_queue WHERE state = $1`, Completed)
		return err
	})
}

func (s *PostgresStore) JobsByNameAndState(ctx context.Context, name string, state State, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 10
	}
	var ids []uuid.UUID
	err := s.withRetry(ctx, "jobs_by_name_and_state", func() error {
		ids = nil
		rows, err := s.db.QueryxContext(ctx, `
			SELECT id FROM job_queue
			 WHERE name = $1 AND state = $2
			 ORDER BY priority DESC, created_at ASC
			 LIMIT $3`, name, state, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

func (s *PostgresStore) InProgressClaims(ctx context.Context) ([]StaleClaim, error) {
	var claims []StaleClaim
	err := s.withRetry(ctx, "in_progress_claims", func() error {
		claims = nil
		rows, err := s.db.QueryxContext(ctx, `
			SELECT id, claimed_by, started_at FROM job_queue
			 WHERE state = $1 AND claimed_by IS NOT NULL`, InProgress)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				c         StaleClaim
				startedAt sql.NullTime
			)
			if err := rows.Scan(&c.ID, &c.ClaimedBy, &startedAt); err != nil {
				return err
			}
			if startedAt.Valid {
				c.StartedAt = startedAt.Time
			}
			claims = append(claims, c)
		}
		return rows.Err()
	})
	return claims, err
}

// MarshalConfig is the self-describing JSON encoding used for JobRow.ConfigBlob.
func MarshalConfig(v any) ([]byte, error) { return json.Marshal(v) }

// UnmarshalConfig decodes a JobRow.ConfigBlob into v.
func UnmarshalConfig(blob []byte, v any) error {
	if err := json.Unmarshal(blob, v); err != nil {
		return fmt.Errorf("%s: decode config blob: %w", Namespace, err)
	}
	return nil
}
