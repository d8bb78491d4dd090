package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-system/internal/models"
)

func newMockQueueStore(t *testing.T) (*QueueStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewQueueStore(db), mock
}

func queueColumns() []string {
	return []string{
		"id", "notification_id", "type", "claimed_by", "claim_expires_at",
		"retry_attempts", "is_dead_letter", "dead_letter_at", "failed_reason", "created_at",
	}
}

func TestQueueStore_InsertTx(t *testing.T) {
	s, mock := newMockQueueStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notification_queue`).
		WithArgs(int64(55), models.QueueWhatsApp).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, testTime()))
	mock.ExpectCommit()

	tx, err := s.db.BeginTx(context.Background(), nil)
	require.NoError(t, err)

	item, err := s.InsertTx(context.Background(), tx, 55, models.QueueWhatsApp)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, int64(9), item.ID)
	assert.Equal(t, models.QueueWhatsApp, item.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_Claim(t *testing.T) {
	s, mock := newMockQueueStore(t)

	claimant := "worker-abc"
	expiry := testTime().Add(time.Minute)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(claimant, sqlmock.AnyArg(), models.QueueEmail, 10).
		WillReturnRows(sqlmock.NewRows(queueColumns()).
			AddRow(1, 55, models.QueueEmail, claimant, expiry, 0, false, nil, nil, testTime()).
			AddRow(2, 56, models.QueueEmail, claimant, expiry, 2, false, nil, "timeout", testTime()))

	items, err := s.Claim(context.Background(), models.QueueEmail, claimant, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(55), items[0].NotificationID)
	assert.Equal(t, claimant, *items[0].ClaimedBy)
	assert.Equal(t, 0, items[0].RetryAttempts)
	assert.Equal(t, 2, items[1].RetryAttempts)
	assert.Equal(t, "timeout", items[1].FailedReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_Claim_EmptyQueue(t *testing.T) {
	s, mock := newMockQueueStore(t)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(queueColumns()))

	items, err := s.Claim(context.Background(), models.QueueSMS, "worker-abc", time.Minute, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueueStore_RetireTx(t *testing.T) {
	s, mock := newMockQueueStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET is_dead_letter = TRUE`).
		WithArgs(int64(9), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, s.RetireTx(context.Background(), tx, 9, ""))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_Release_BumpsRetryAttempts(t *testing.T) {
	s, mock := newMockQueueStore(t)

	mock.ExpectExec(`retry_attempts = retry_attempts \+ 1`).
		WithArgs(int64(9), "ses throttled").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Release(context.Background(), 9, "ses throttled"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueStore_ReclaimExpired(t *testing.T) {
	s, mock := newMockQueueStore(t)

	mock.ExpectExec(`claim_expires_at < NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.ReclaimExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestQueueStore_Depth(t *testing.T) {
	s, mock := newMockQueueStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notification_queue`).
		WithArgs(models.QueueWhatsApp).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	depth, err := s.Depth(context.Background(), models.QueueWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, int64(12), depth)
}
