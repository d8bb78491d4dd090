// internal/store/queue.go
package store

import (
	"context"
	"database/sql"
	"time"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/models"
)

// QueueStore persists the per-channel dispatch queue. Rows are retired in
// place (is_dead_letter) rather than deleted, so the delivery trail survives.
type QueueStore struct {
	db *sql.DB
}

func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

// InsertTx records one pending-delivery marker for a notification inside tx.
func (s *QueueStore) InsertTx(ctx context.Context, tx *sql.Tx, notificationID int64, queueType models.QueueType) (*models.QueueItem, error) {
	item := &models.QueueItem{NotificationID: notificationID, Type: queueType}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO notification_queue (notification_id, type)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		notificationID, queueType,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return nil, apperrors.NewInsertFailedError("insert queue row", err)
	}
	return item, nil
}

// Claim atomically marks up to limit live rows of the given queue as held by
// claimant until the lease lapses, and returns them oldest first. Rows
// already claimed under a live lease are skipped, so two workers never hold
// the same row.
func (s *QueueStore) Claim(ctx context.Context, queueType models.QueueType, claimant string, lease time.Duration, limit int) ([]models.QueueItem, error) {
	expiresAt := time.Now().UTC().Add(lease)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE notification_queue
		SET claimed_by = $1, claim_expires_at = $2
		WHERE id IN (
			SELECT id FROM notification_queue
			WHERE type = $3
			  AND is_dead_letter = FALSE
			  AND (claimed_by IS NULL OR claim_expires_at < NOW())
			ORDER BY id ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, notification_id, type, claimed_by, claim_expires_at, retry_attempts,
		          is_dead_letter, dead_letter_at, failed_reason, created_at`,
		claimant, expiresAt, queueType, limit,
	)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("claim queue rows", err)
	}
	defer rows.Close()

	items := []models.QueueItem{}
	for rows.Next() {
		var item models.QueueItem
		var failedReason sql.NullString
		if err := rows.Scan(&item.ID, &item.NotificationID, &item.Type, &item.ClaimedBy,
			&item.ClaimExpiresAt, &item.RetryAttempts, &item.IsDeadLetter, &item.DeadLetterAt,
			&failedReason, &item.CreatedAt); err != nil {
			return nil, apperrors.NewQueryFailedError("claim queue rows", err)
		}
		item.FailedReason = failedReason.String
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryFailedError("claim queue rows", err)
	}
	return items, nil
}

// RetireTx retires a queue row inside tx, in the same transaction as the
// notification status update. An empty reason marks successful completion.
func (s *QueueStore) RetireTx(ctx context.Context, tx *sql.Tx, queueID int64, reason string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE notification_queue
		SET is_dead_letter = TRUE, dead_letter_at = NOW(), failed_reason = $2,
		    claimed_by = NULL, claim_expires_at = NULL
		WHERE id = $1`,
		queueID, TruncateReason(reason),
	)
	if err != nil {
		return apperrors.NewUpdateFailedError("retire queue row", err)
	}
	return nil
}

// Release drops a claim after a retryable failure, bumping the attempt
// counter so the next claimant sees how many times the row has bounced.
func (s *QueueStore) Release(ctx context.Context, queueID int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_queue
		SET claimed_by = NULL, claim_expires_at = NULL,
		    retry_attempts = retry_attempts + 1, failed_reason = $2
		WHERE id = $1`,
		queueID, TruncateReason(reason),
	)
	if err != nil {
		return apperrors.NewUpdateFailedError("release queue row", err)
	}
	return nil
}

// ReclaimExpired releases every live row whose claim lease has lapsed,
// returning the number of rows recovered.
func (s *QueueStore) ReclaimExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_queue
		SET claimed_by = NULL, claim_expires_at = NULL
		WHERE is_dead_letter = FALSE
		  AND claimed_by IS NOT NULL
		  AND claim_expires_at < NOW()`,
	)
	if err != nil {
		return 0, apperrors.NewUpdateFailedError("reclaim expired claims", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Depth counts live, unclaimed rows of a queue.
func (s *QueueStore) Depth(ctx context.Context, queueType models.QueueType) (int64, error) {
	var depth int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification_queue
		WHERE type = $1
		  AND is_dead_letter = FALSE
		  AND (claimed_by IS NULL OR claim_expires_at < NOW())`,
		queueType,
	).Scan(&depth)
	if err != nil {
		return 0, apperrors.NewQueryFailedError("queue depth", err)
	}
	return depth, nil
}
