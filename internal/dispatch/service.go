// internal/dispatch/service.go
package dispatch

import (
	"context"
	"database/sql"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
	"notification-system/internal/common/metrics"
	"notification-system/internal/models"
	"notification-system/internal/store"
)

// LayoutResolver resolves a master's active template layout. Satisfied by
// the registry service.
type LayoutResolver interface {
	ActiveLayout(ctx context.Context, masterID int64) ([]models.LayoutSlot, error)
}

// Service implements enqueue: validate, materialize, persist in one
// transaction.
type Service struct {
	db            *sql.DB
	notifications *store.NotificationStore
	queue         *store.QueueStore
	layouts       LayoutResolver
	logger        logger.Logger
}

func NewService(db *sql.DB, notifications *store.NotificationStore, queue *store.QueueStore, layouts LayoutResolver, log logger.Logger) *Service {
	return &Service{
		db:            db,
		notifications: notifications,
		queue:         queue,
		layouts:       layouts,
		logger:        log.WithFields(map[string]interface{}{"component": "dispatch"}),
	}
}

// Enqueue accepts one notification event and returns the id of the created
// notification. The notification, its content rows and its single queue row
// are inserted in one transaction, so a worker can never observe a partial
// enqueue.
func (s *Service) Enqueue(ctx context.Context, event *Event) (int64, error) {
	if err := ValidateEvent(event); err != nil {
		return 0, err
	}

	masterID := ResolveMasterID(event)

	var layout []models.LayoutSlot
	if event.Variant == models.VariantWhatsApp && masterID != nil {
		layout = EmbeddedLayout(event)
		if layout == nil {
			resolved, err := s.layouts.ActiveLayout(ctx, *masterID)
			if err != nil {
				return 0, err
			}
			layout = resolved
		}
	}

	contents, err := Materialize(event, layout)
	if err != nil {
		return 0, apperrors.NewValidationError("email template data is not serializable")
	}

	var eventID *int64
	if event.NotificationEvent != nil {
		eventID = event.NotificationEvent.ID
	}

	notification := &models.Notification{
		UserID:              event.UserID,
		ApplicationFormID:   event.ApplicationFormID,
		NotificationEventID: eventID,
		MasterID:            masterID,
		Variant:             event.Variant,
		Type:                event.Type,
		Message:             event.Message,
	}

	queueType := models.QueueFor(event.Variant)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewInsertFailedError("begin enqueue tx", err)
	}
	defer tx.Rollback()

	if err := s.notifications.InsertTx(ctx, tx, notification); err != nil {
		return 0, err
	}

	for i := range contents {
		contents[i].NotificationID = notification.ID
		if err := s.notifications.InsertContentTx(ctx, tx, &contents[i]); err != nil {
			return 0, err
		}
	}

	if _, err := s.queue.InsertTx(ctx, tx, notification.ID, queueType); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewInsertFailedError("commit enqueue tx", err)
	}

	metrics.NotificationsEnqueued.WithLabelValues(string(queueType)).Inc()
	s.logger.Info("notification enqueued", map[string]interface{}{
		"notificationId": notification.ID,
		"variant":        event.Variant,
		"queue":          queueType,
		"contentRows":    len(contents),
	})

	return notification.ID, nil
}

// GetNotification exposes a notification record, for status visibility.
func (s *Service) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	return s.notifications.Get(ctx, id)
}
