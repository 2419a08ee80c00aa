package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	return NewPostgresStore(sqlxDB), mock
}

func TestClaimNext_NoRowsAvailable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, job_type FROM job_queue").
		WithArgs(Pending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_type"}))
	mock.ExpectCommit()

	_, _, ok, err := store.ClaimNext(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNext_ClaimsHighestPriorityRow(t *testing.T) {
	store, mock := newMockStore(t)
	jobID := uuid.New()
	workerID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, job_type FROM job_queue").
		WithArgs(Pending).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_type"}).AddRow(jobID, "formatter"))
	mock.ExpectExec("UPDATE job_queue SET state").
		WithArgs(InProgress, workerID, sqlmock.AnyArg(), jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, jobType, ok, err := store.ClaimNext(context.Background(), workerID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, jobID, id)
	assert.Equal(t, "formatter", jobType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPending_UnknownID_ReturnsNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE job_queue").
		WithArgs(Pending, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkPending(context.Background(), id)
	require.Error(t, err)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, id, nf.ID)
}

func TestStatus_ComputesPendingRatio(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs(Pending, InProgress).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "in_progress"}).AddRow(3, 1))

	status, err := store.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, status.Pending)
	assert.Equal(t, 1, status.InProgress)
	assert.InDelta(t, 0.75, status.PendingRatio, 1e-9)
}

func TestStatus_ZeroRows_ZeroRatio(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs(Pending, InProgress).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "in_progress"}).AddRow(0, 0))

	status, err := store.Status(context.Background())
	require.NoError(t, err)
	assert.Zero(t, status.PendingRatio)
}

func TestInProgressClaims_ReturnsClaimantAndStartedAt(t *testing.T) {
	store, mock := newMockStore(t)
	jobID := uuid.New()
	workerID := uuid.New()
	started := time.Now().Add(-time.Minute)

	mock.ExpectQuery("SELECT id, claimed_by, started_at FROM job_queue").
		WithArgs(InProgress).
		WillReturnRows(sqlmock.NewRows([]string{"id", "claimed_by", "started_at"}).
			AddRow(jobID, workerID, started))

	claims, err := store.InProgressClaims(context.Background())
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, jobID, claims[0].ID)
	assert.Equal(t, workerID, claims[0].ClaimedBy)
	assert.WithinDuration(t, started, claims[0].StartedAt, time.Second)
}

func TestAddBatch_StampsCreatedAtAndPending(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO job_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	row := &JobRow{Name: "doc", JobType: "formatter", Priority: 5}
	err := store.AddBatch(context.Background(), []*JobRow{row})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, row.ID)
	assert.Equal(t, Pending, row.State)
	assert.WithinDuration(t, time.Now(), row.CreatedAt, time.Second)
}
