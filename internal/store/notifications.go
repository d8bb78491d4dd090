// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	stderrors "errors"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/models"
)

// failedReasonMax caps the persisted failure reason length.
const failedReasonMax = 500

// TruncateReason clips a failure reason to the persisted maximum.
func TruncateReason(reason string) string {
	if len(reason) > failedReasonMax {
		return reason[:failedReasonMax]
	}
	return reason
}

// NotificationStore persists notification records and their content rows.
// Writes that must be atomic with other writes take an explicit *sql.Tx.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// InsertTx inserts a PENDING notification inside tx and fills in its id and
// creation time.
func (s *NotificationStore) InsertTx(ctx context.Context, tx *sql.Tx, n *models.Notification) error {
	n.Status = models.StatusPending
	err := tx.QueryRowContext(ctx, `
		INSERT INTO notifications
			(user_id, application_form_id, notification_event_id, notification_master_id, variant, type, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		n.UserID, n.ApplicationFormID, n.NotificationEventID, n.MasterID, n.Variant, n.Type, n.Message, n.Status,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return apperrors.NewInsertFailedError("insert notification", err)
	}
	return nil
}

// InsertContentTx inserts one materialized content row inside tx.
func (s *NotificationStore) InsertContentTx(ctx context.Context, tx *sql.Tx, c *models.NotificationContent) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO notification_contents
			(notification_id, notification_event_id, whatsapp_field_id, email_template, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		c.NotificationID, c.NotificationEventID, c.WhatsAppFieldID, c.EmailTemplate, c.Content,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return apperrors.NewInsertFailedError("insert notification content", err)
	}
	return nil
}

// Get fetches one notification by id.
func (s *NotificationStore) Get(ctx context.Context, id int64) (*models.Notification, error) {
	n := &models.Notification{}
	var failedReason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, application_form_id, notification_event_id, notification_master_id,
		       variant, type, message, status, sent_at, failed_at, failed_reason, created_at
		FROM notifications
		WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.UserID, &n.ApplicationFormID, &n.NotificationEventID, &n.MasterID,
		&n.Variant, &n.Type, &n.Message, &n.Status, &n.SentAt, &n.FailedAt, &failedReason, &n.CreatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("notification", id)
		}
		return nil, apperrors.NewQueryFailedError("get notification", err)
	}
	n.FailedReason = failedReason.String
	return n, nil
}

// Contents returns the content rows of a notification ordered by id, which
// preserves materialization order.
func (s *NotificationStore) Contents(ctx context.Context, notificationID int64) ([]models.NotificationContent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_id, notification_event_id, whatsapp_field_id, email_template, content, created_at
		FROM notification_contents
		WHERE notification_id = $1
		ORDER BY id ASC`,
		notificationID,
	)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("get notification contents", err)
	}
	defer rows.Close()

	contents := []models.NotificationContent{}
	for rows.Next() {
		var c models.NotificationContent
		if err := rows.Scan(&c.ID, &c.NotificationID, &c.NotificationEventID, &c.WhatsAppFieldID,
			&c.EmailTemplate, &c.Content, &c.CreatedAt); err != nil {
			return nil, apperrors.NewQueryFailedError("get notification contents", err)
		}
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryFailedError("get notification contents", err)
	}
	return contents, nil
}

// MarkSentTx moves a PENDING notification to SENT inside tx. Terminal rows
// are left untouched.
func (s *NotificationStore) MarkSentTx(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'SENT', sent_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`,
		id,
	)
	if err != nil {
		return apperrors.NewUpdateFailedError("mark sent", err)
	}
	return nil
}

// MarkFailedTx moves a PENDING notification to FAILED inside tx, recording
// the reason clipped to 500 characters.
func (s *NotificationStore) MarkFailedTx(ctx context.Context, tx *sql.Tx, id int64, reason string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE notifications
		SET status = 'FAILED', failed_at = NOW(), failed_reason = $2
		WHERE id = $1 AND status = 'PENDING'`,
		id, TruncateReason(reason),
	)
	if err != nil {
		return apperrors.NewUpdateFailedError("mark failed", err)
	}
	return nil
}
