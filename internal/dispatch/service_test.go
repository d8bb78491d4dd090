package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
	"notification-system/internal/models"
	"notification-system/internal/store"
)

type stubLayouts struct {
	layout []models.LayoutSlot
	err    error
	calls  int
}

func (s *stubLayouts) ActiveLayout(ctx context.Context, masterID int64) ([]models.LayoutSlot, error) {
	s.calls++
	return s.layout, s.err
}

func newTestService(t *testing.T, layouts LayoutResolver) (*Service, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	svc := NewService(db, store.NewNotificationStore(db), store.NewQueueStore(db), layouts, log)
	return svc, mock
}

func insertedNotificationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "created_at"}).AddRow(55, testCreatedAt())
}

func TestService_Enqueue_WebVariant(t *testing.T) {
	svc, mock := newTestService(t, &stubLayouts{})

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs(int64(101), nil, nil, nil, models.VariantWeb, "admission", "Welcome", models.StatusPending).
		WillReturnRows(insertedNotificationRows())
	mock.ExpectQuery(`INSERT INTO notification_queue`).
		WithArgs(int64(55), models.QueueWeb).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, testCreatedAt()))
	mock.ExpectCommit()

	id, err := svc.Enqueue(context.Background(), &Event{
		UserID:  101,
		Variant: models.VariantWeb,
		Type:    "admission",
		Message: "Welcome",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Enqueue_WhatsAppWithEmbeddedLayout(t *testing.T) {
	layouts := &stubLayouts{}
	svc, mock := newTestService(t, layouts)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(insertedNotificationRows())
	mock.ExpectQuery(`INSERT INTO notification_contents`).
		WithArgs(int64(55), nil, int64(10), nil, "123456").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, testCreatedAt()))
	mock.ExpectQuery(`INSERT INTO notification_contents`).
		WithArgs(int64(55), nil, int64(11), nil, "5 min").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, testCreatedAt()))
	mock.ExpectQuery(`INSERT INTO notification_queue`).
		WithArgs(int64(55), models.QueueWhatsApp).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, testCreatedAt()))
	mock.ExpectCommit()

	id, err := svc.Enqueue(context.Background(), &Event{
		UserID:  101,
		Variant: models.VariantWhatsApp,
		Type:    "otp",
		Message: "Your OTP",
		NotificationEvent: &EventBody{
			NotificationMaster: &MasterRef{
				ID: 4,
				Meta: []MetaRef{
					{FieldID: 10, Sequence: 1, Flag: true},
					{FieldID: 11, Sequence: 2, Flag: true},
				},
			},
			BodyValues: []string{"123456", "5 min"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)
	assert.Equal(t, 0, layouts.calls, "embedded meta must bypass the registry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Enqueue_WhatsAppFallsBackToRegistryLayout(t *testing.T) {
	masterID := int64(4)
	layouts := &stubLayouts{layout: []models.LayoutSlot{{FieldID: 10, FieldName: "otpCode", Sequence: 1}}}
	svc, mock := newTestService(t, layouts)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(insertedNotificationRows())
	mock.ExpectQuery(`INSERT INTO notification_contents`).
		WithArgs(int64(55), nil, int64(10), nil, "123456").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, testCreatedAt()))
	mock.ExpectQuery(`INSERT INTO notification_queue`).
		WithArgs(int64(55), models.QueueWhatsApp).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, testCreatedAt()))
	mock.ExpectCommit()

	_, err := svc.Enqueue(context.Background(), &Event{
		UserID:               101,
		NotificationMasterID: &masterID,
		Variant:              models.VariantWhatsApp,
		Type:                 "otp",
		Message:              "Your OTP",
		NotificationEvent: &EventBody{
			BodyValues: []string{"123456"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, layouts.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Enqueue_InvalidEventTouchesNothing(t *testing.T) {
	svc, mock := newTestService(t, &stubLayouts{})

	_, err := svc.Enqueue(context.Background(), &Event{
		Variant: "CARRIER_PIGEON",
		Type:    "t",
		Message: "m",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Enqueue_RollsBackOnQueueInsertFailure(t *testing.T) {
	svc, mock := newTestService(t, &stubLayouts{})

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WillReturnRows(insertedNotificationRows())
	mock.ExpectQuery(`INSERT INTO notification_queue`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := svc.Enqueue(context.Background(), &Event{
		UserID:  101,
		Variant: models.VariantWeb,
		Type:    "t",
		Message: "m",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabaseInsertFailed, apperrors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
