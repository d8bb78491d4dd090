// internal/workers/email/handler.go
package email

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
	"notification-system/internal/common/metrics"
	"notification-system/internal/models"
	"notification-system/internal/providers"
	"notification-system/internal/store"
)

// EmailSender delivers one email payload.
type EmailSender interface {
	Send(ctx context.Context, payload providers.EmailPayload) error
}

// AuditSink records terminal notification transitions.
type AuditSink interface {
	IndexTerminal(ctx context.Context, n *models.Notification, queue models.QueueType, retryAttempts int)
}

// Handler drains the email queue: claim, load, deliver via SES, complete.
type Handler struct {
	config        *Config
	db            *sql.DB
	notifications *store.NotificationStore
	queue         *store.QueueStore
	masters       *store.MasterStore
	users         *store.UserStore
	provider      EmailSender
	audit         AuditSink
	claimant      string
	logger        logger.Logger
}

func NewHandler(cfg *Config, db *sql.DB, notifications *store.NotificationStore, queue *store.QueueStore,
	masters *store.MasterStore, users *store.UserStore, provider EmailSender, audit AuditSink, log logger.Logger) *Handler {
	claimant := "email-" + uuid.NewString()
	return &Handler{
		config:        cfg,
		db:            db,
		notifications: notifications,
		queue:         queue,
		masters:       masters,
		users:         users,
		provider:      provider,
		audit:         audit,
		claimant:      claimant,
		logger:        log.WithFields(map[string]interface{}{"worker": WorkerName, "claimant": claimant}),
	}
}

// Run polls the email queue until ctx is cancelled. The initial delay
// staggers worker startup within the process.
func (h *Handler) Run(ctx context.Context) {
	select {
	case <-time.After(h.config.StartDelay):
	case <-ctx.Done():
		return
	}

	h.logger.Info("worker started", map[string]interface{}{
		"pollInterval": h.config.PollInterval.String(),
		"batchSize":    h.config.BatchSize,
	})

	ticker := time.NewTicker(h.config.PollInterval)
	defer ticker.Stop()

	for {
		h.ProcessBatch(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			h.logger.Info("worker stopped", nil)
			return
		}
	}
}

// ProcessBatch claims and works through one batch. Per-item errors never
// abort the batch.
func (h *Handler) ProcessBatch(ctx context.Context) {
	items, err := h.queue.Claim(ctx, models.QueueEmail, h.claimant, h.config.Lease, h.config.BatchSize)
	if err != nil {
		h.logger.Error("claim failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(items) == 0 {
		return
	}
	metrics.QueueClaims.WithLabelValues(string(models.QueueEmail)).Add(float64(len(items)))

	for idx, item := range items {
		if ctx.Err() != nil {
			return
		}
		h.processItem(ctx, item)
		if idx < len(items)-1 {
			select {
			case <-time.After(h.config.RateDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Handler) processItem(ctx context.Context, item models.QueueItem) {
	start := time.Now()

	n, err := h.notifications.Get(ctx, item.NotificationID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			h.retire(ctx, item, "notification record missing")
			return
		}
		h.release(ctx, item, err)
		return
	}

	if n.Status != models.StatusPending {
		// already terminal, just retire the stray queue row
		h.retire(ctx, item, "")
		return
	}

	if n.MasterID != nil {
		master, err := h.masters.GetMaster(ctx, *n.MasterID)
		if err != nil {
			h.release(ctx, item, err)
			return
		}
		if !master.IsActive {
			h.completeFailed(ctx, item, n, apperrors.NewMasterInactiveError(master.ID))
			return
		}
	}

	payload, err := h.buildPayload(ctx, n)
	if err != nil {
		h.fail(ctx, item, n, err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, h.config.SendTimeout)
	err = h.provider.Send(sendCtx, *payload)
	cancel()

	if err != nil {
		h.fail(ctx, item, n, err)
		return
	}

	h.completeSent(ctx, item, n)
	metrics.DispatchDuration.WithLabelValues(string(models.QueueEmail)).Observe(time.Since(start).Seconds())
}

func (h *Handler) buildPayload(ctx context.Context, n *models.Notification) (*providers.EmailPayload, error) {
	contact, err := h.users.GetContact(ctx, n.UserID)
	if err != nil {
		return nil, err
	}
	if contact.Email == "" {
		return nil, apperrors.NewValidationError("recipient has no email address")
	}

	payload := &providers.EmailPayload{
		To:      contact.Email,
		Subject: n.Type,
		Message: n.Message,
	}

	contents, err := h.notifications.Contents(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range contents {
		if c.EmailTemplate == nil {
			continue
		}
		var blob templateBlob
		if err := json.Unmarshal([]byte(c.Content), &blob); err != nil {
			return nil, apperrors.NewValidationError("email content blob is not valid JSON")
		}
		payload.TemplateName = blob.EmailTemplate
		payload.TemplateData = blob.TemplateData
		if blob.Subject != "" {
			payload.Subject = blob.Subject
		}
		break
	}
	return payload, nil
}

// fail routes a delivery error: retryable failures below the retry budget
// release the claim, everything else retires the item as FAILED.
func (h *Handler) fail(ctx context.Context, item models.QueueItem, n *models.Notification, cause error) {
	if apperrors.IsRetryable(cause) && item.RetryAttempts+1 < h.config.MaxRetries {
		h.release(ctx, item, cause)
		return
	}
	h.completeFailed(ctx, item, n, cause)
}

func (h *Handler) release(ctx context.Context, item models.QueueItem, cause error) {
	if err := h.queue.Release(ctx, item.ID, cause.Error()); err != nil {
		h.logger.Error("release failed", map[string]interface{}{"queueId": item.ID, "error": err.Error()})
		return
	}
	metrics.DispatchRetried.WithLabelValues(string(models.QueueEmail)).Inc()
	h.logger.Warn("delivery attempt failed, released for retry", map[string]interface{}{
		"queueId":       item.ID,
		"retryAttempts": item.RetryAttempts + 1,
		"error":         cause.Error(),
	})
}

func (h *Handler) completeSent(ctx context.Context, item models.QueueItem, n *models.Notification) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.logger.Error("complete tx begin failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer tx.Rollback()

	if err := h.notifications.MarkSentTx(ctx, tx, n.ID); err != nil {
		h.logger.Error("mark sent failed", map[string]interface{}{"notificationId": n.ID, "error": err.Error()})
		return
	}
	if err := h.queue.RetireTx(ctx, tx, item.ID, ""); err != nil {
		h.logger.Error("retire failed", map[string]interface{}{"queueId": item.ID, "error": err.Error()})
		return
	}
	if err := tx.Commit(); err != nil {
		h.logger.Error("complete tx commit failed", map[string]interface{}{"error": err.Error()})
		return
	}

	metrics.DispatchCompleted.WithLabelValues(string(models.QueueEmail)).Inc()
	n.Status = models.StatusSent
	h.audit.IndexTerminal(ctx, n, models.QueueEmail, item.RetryAttempts)
	h.logger.Info("notification sent", map[string]interface{}{"notificationId": n.ID})
}

func (h *Handler) completeFailed(ctx context.Context, item models.QueueItem, n *models.Notification, cause error) {
	reason := cause.Error()
	if stdErr, ok := cause.(*apperrors.StandardError); ok {
		reason = stdErr.Message
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.logger.Error("complete tx begin failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer tx.Rollback()

	if err := h.notifications.MarkFailedTx(ctx, tx, n.ID, reason); err != nil {
		h.logger.Error("mark failed failed", map[string]interface{}{"notificationId": n.ID, "error": err.Error()})
		return
	}
	if err := h.queue.RetireTx(ctx, tx, item.ID, reason); err != nil {
		h.logger.Error("retire failed", map[string]interface{}{"queueId": item.ID, "error": err.Error()})
		return
	}
	if err := tx.Commit(); err != nil {
		h.logger.Error("complete tx commit failed", map[string]interface{}{"error": err.Error()})
		return
	}

	code := string(apperrors.CodeOf(cause))
	metrics.DispatchFailed.WithLabelValues(string(models.QueueEmail), code).Inc()
	metrics.DeadLettered.WithLabelValues(string(models.QueueEmail), code).Inc()
	n.Status = models.StatusFailed
	n.FailedReason = store.TruncateReason(reason)
	h.audit.IndexTerminal(ctx, n, models.QueueEmail, item.RetryAttempts)
	h.logger.Warn("notification failed", map[string]interface{}{
		"notificationId": n.ID,
		"reason":         reason,
	})
}

// retire drops a queue row without touching the notification, used for
// stray rows whose record is already terminal or missing.
func (h *Handler) retire(ctx context.Context, item models.QueueItem, reason string) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		h.logger.Error("retire tx begin failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer tx.Rollback()

	if err := h.queue.RetireTx(ctx, tx, item.ID, reason); err != nil {
		h.logger.Error("retire failed", map[string]interface{}{"queueId": item.ID, "error": err.Error()})
		return
	}
	if err := tx.Commit(); err != nil {
		h.logger.Error("retire tx commit failed", map[string]interface{}{"error": err.Error()})
	}
}
