package whatsapp

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
	"notification-system/internal/models"
	"notification-system/internal/providers"
	"notification-system/internal/store"
)

type fakeSender struct {
	payloads []providers.WhatsAppPayload
	err      error
}

func (f *fakeSender) Send(ctx context.Context, payload providers.WhatsAppPayload) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

type fakeAudit struct {
	statuses []models.Status
}

func (f *fakeAudit) IndexTerminal(ctx context.Context, n *models.Notification, queue models.QueueType, retryAttempts int) {
	f.statuses = append(f.statuses, n.Status)
}

func testConfig() *Config {
	return &Config{
		PollInterval:    time.Second,
		BatchSize:       10,
		RateDelay:       time.Millisecond,
		MaxRetries:      3,
		Lease:           time.Minute,
		SendTimeout:     time.Second,
		DefaultTemplate: "generic_alert",
	}
}

func newTestHandler(t *testing.T, sender WhatsAppSender, audit AuditSink) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	h := NewHandler(testConfig(), db,
		store.NewNotificationStore(db), store.NewQueueStore(db),
		store.NewMasterStore(db), store.NewUserStore(db),
		sender, audit, log)
	return h, mock
}

func queueColumns() []string {
	return []string{
		"id", "notification_id", "type", "claimed_by", "claim_expires_at",
		"retry_attempts", "is_dead_letter", "dead_letter_at", "failed_reason", "created_at",
	}
}

func notificationColumns() []string {
	return []string{
		"id", "user_id", "application_form_id", "notification_event_id", "notification_master_id",
		"variant", "type", "message", "status", "sent_at", "failed_at", "failed_reason", "created_at",
	}
}

func contentColumns() []string {
	return []string{
		"id", "notification_id", "notification_event_id", "whatsapp_field_id",
		"email_template", "content", "created_at",
	}
}

func now() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func expectClaim(mock sqlmock.Sqlmock, retryAttempts int, masterID interface{}) {
	expiry := now().Add(time.Minute)
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(queueColumns()).
			AddRow(9, 55, models.QueueWhatsApp, "w", expiry, retryAttempts, false, nil, nil, now()))
	mock.ExpectQuery(`SELECT id, user_id`).
		WithArgs(int64(55)).
		WillReturnRows(sqlmock.NewRows(notificationColumns()).
			AddRow(55, 101, nil, nil, masterID, models.VariantWhatsApp, "otp", "Your OTP", models.StatusPending, nil, nil, nil, now()))
}

func expectActiveMaster(mock sqlmock.Sqlmock, id int64, template interface{}) {
	mock.ExpectQuery(`SELECT id, name, template, preview_image`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "template", "preview_image", "is_active", "created_at", "updated_at",
		}).AddRow(id, "OTP", template, nil, true, now(), now()))
}

func TestHandler_ProcessBatch_OrderedBodyValuesDelivered(t *testing.T) {
	sender := &fakeSender{}
	audit := &fakeAudit{}
	h, mock := newTestHandler(t, sender, audit)

	expectClaim(mock, 0, int64(4))
	expectActiveMaster(mock, 4, "otp_alert")
	mock.ExpectQuery(`SELECT email, phone FROM users`).
		WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).AddRow("s@example.com", "+919876543210"))
	mock.ExpectQuery(`FROM notification_contents`).
		WithArgs(int64(55)).
		WillReturnRows(sqlmock.NewRows(contentColumns()).
			AddRow(1, 55, nil, int64(10), nil, "123456", now()).
			AddRow(2, 55, nil, int64(11), nil, "5 min", now()))
	mock.ExpectBegin()
	mock.ExpectExec(`SET status = 'SENT'`).
		WithArgs(int64(55)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET is_dead_letter = TRUE`).
		WithArgs(int64(9), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h.ProcessBatch(context.Background())

	require.Len(t, sender.payloads, 1)
	assert.Equal(t, "+919876543210", sender.payloads[0].Phone)
	assert.Equal(t, "otp_alert", sender.payloads[0].TemplateName)
	assert.Equal(t, []string{"123456", "5 min"}, sender.payloads[0].BodyValues)
	assert.Equal(t, []models.Status{models.StatusSent}, audit.statuses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ProcessBatch_DefaultTemplateWithoutMaster(t *testing.T) {
	sender := &fakeSender{}
	h, mock := newTestHandler(t, sender, &fakeAudit{})

	expectClaim(mock, 0, nil)
	mock.ExpectQuery(`SELECT email, phone FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).AddRow("", "+911"))
	mock.ExpectQuery(`FROM notification_contents`).
		WillReturnRows(sqlmock.NewRows(contentColumns()))
	mock.ExpectBegin()
	mock.ExpectExec(`SET status = 'SENT'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET is_dead_letter = TRUE`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h.ProcessBatch(context.Background())

	require.Len(t, sender.payloads, 1)
	assert.Equal(t, "generic_alert", sender.payloads[0].TemplateName)
	assert.Empty(t, sender.payloads[0].BodyValues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ProcessBatch_InactiveMasterDeadLetters(t *testing.T) {
	sender := &fakeSender{}
	audit := &fakeAudit{}
	h, mock := newTestHandler(t, sender, audit)

	expectClaim(mock, 0, int64(4))
	mock.ExpectQuery(`SELECT id, name, template, preview_image`).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "template", "preview_image", "is_active", "created_at", "updated_at",
		}).AddRow(4, "OTP", nil, nil, false, now(), now()))
	mock.ExpectBegin()
	mock.ExpectExec(`SET status = 'FAILED'`).
		WithArgs(int64(55), "Notification master inactive").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET is_dead_letter = TRUE`).
		WithArgs(int64(9), "Notification master inactive").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h.ProcessBatch(context.Background())

	assert.Empty(t, sender.payloads)
	assert.Equal(t, []models.Status{models.StatusFailed}, audit.statuses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ProcessBatch_RetryableFailureReleasesClaim(t *testing.T) {
	sender := &fakeSender{err: apperrors.NewProviderError("whatsapp", assert.AnError)}
	h, mock := newTestHandler(t, sender, &fakeAudit{})

	expectClaim(mock, 0, nil)
	mock.ExpectQuery(`SELECT email, phone FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"email", "phone"}).AddRow("", "+911"))
	mock.ExpectQuery(`FROM notification_contents`).
		WillReturnRows(sqlmock.NewRows(contentColumns()))
	mock.ExpectExec(`retry_attempts = retry_attempts \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h.ProcessBatch(context.Background())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_ProcessBatch_TerminalNotificationRetiresRow(t *testing.T) {
	sender := &fakeSender{}
	h, mock := newTestHandler(t, sender, &fakeAudit{})

	expiry := now().Add(time.Minute)
	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows(queueColumns()).
			AddRow(9, 55, models.QueueWhatsApp, "w", expiry, 0, false, nil, nil, now()))
	mock.ExpectQuery(`SELECT id, user_id`).
		WillReturnRows(sqlmock.NewRows(notificationColumns()).
			AddRow(55, 101, nil, nil, nil, models.VariantWhatsApp, "otp", "m", models.StatusSent, now(), nil, nil, now()))
	mock.ExpectBegin()
	mock.ExpectExec(`SET is_dead_letter = TRUE`).
		WithArgs(int64(9), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	h.ProcessBatch(context.Background())

	assert.Empty(t, sender.payloads)
	assert.NoError(t, mock.ExpectationsWereMet())
}
