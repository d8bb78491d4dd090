package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
	"notification-system/internal/dispatch"
	"notification-system/internal/models"
	"notification-system/internal/store"
)

type fakeRegistry struct {
	master    *models.Master
	masterErr error
	meta      *models.MasterMeta
	metaErr   error
	deleteErr error
	fields    []models.MasterField
}

func (f *fakeRegistry) CreateMaster(ctx context.Context, name string, template, previewImage *string, isActive bool) (*models.Master, error) {
	return f.master, f.masterErr
}
func (f *fakeRegistry) GetMaster(ctx context.Context, id int64) (*models.Master, error) {
	return f.master, f.masterErr
}
func (f *fakeRegistry) ListMasters(ctx context.Context) ([]models.Master, error) {
	if f.masterErr != nil {
		return nil, f.masterErr
	}
	if f.master == nil {
		return []models.Master{}, nil
	}
	return []models.Master{*f.master}, nil
}
func (f *fakeRegistry) UpdateMaster(ctx context.Context, id int64, patch store.MasterPatch) (*models.Master, error) {
	return f.master, f.masterErr
}
func (f *fakeRegistry) CreateField(ctx context.Context, masterID int64, name string) (*models.MasterField, error) {
	if f.masterErr != nil {
		return nil, f.masterErr
	}
	return &models.MasterField{ID: 10, MasterID: masterID, Name: name}, nil
}
func (f *fakeRegistry) ListFields(ctx context.Context, masterID int64) ([]models.MasterField, error) {
	return f.fields, f.masterErr
}
func (f *fakeRegistry) DeleteField(ctx context.Context, id int64) error { return f.deleteErr }
func (f *fakeRegistry) CreateMeta(ctx context.Context, masterID, fieldID int64, sequence int, flag bool) (*models.MasterMeta, error) {
	return f.meta, f.metaErr
}
func (f *fakeRegistry) UpdateMeta(ctx context.Context, id int64, patch store.MetaPatch) (*models.MasterMeta, error) {
	return f.meta, f.metaErr
}
func (f *fakeRegistry) DeleteMeta(ctx context.Context, id int64) error { return f.deleteErr }
func (f *fakeRegistry) ListMeta(ctx context.Context, masterID int64) ([]models.MasterMeta, error) {
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	return []models.MasterMeta{}, nil
}

type fakeDispatch struct {
	id           int64
	err          error
	notification *models.Notification
	lastEvent    *dispatch.Event
}

func (f *fakeDispatch) Enqueue(ctx context.Context, event *dispatch.Event) (int64, error) {
	f.lastEvent = event
	return f.id, f.err
}
func (f *fakeDispatch) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	return f.notification, f.err
}

func newTestRouter(t *testing.T, reg RegistryService, disp DispatchService) http.Handler {
	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	return NewRouter(NewHandlers(reg, disp, log), log)
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestAPI_CreateMaster(t *testing.T) {
	reg := &fakeRegistry{master: &models.Master{ID: 7, Name: "Fee Reminder", IsActive: true}}
	router := newTestRouter(t, reg, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodPost, "/masters", map[string]interface{}{"name": "Fee Reminder"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.OK)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "Fee Reminder", data["name"])
}

func TestAPI_CreateMaster_MissingNameIs400(t *testing.T) {
	router := newTestRouter(t, &fakeRegistry{}, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodPost, "/masters", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
}

func TestAPI_CreateMaster_DuplicateIs409(t *testing.T) {
	reg := &fakeRegistry{masterErr: apperrors.NewConflictError("notification master", "name: Fee Reminder")}
	router := newTestRouter(t, reg, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodPost, "/masters", map[string]interface{}{"name": "Fee Reminder"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, "DUPLICATE_RESOURCE", env.Error.Code)
}

func TestAPI_GetMaster_MissingIs404(t *testing.T) {
	reg := &fakeRegistry{masterErr: apperrors.NewNotFoundError("notification master", 42)}
	router := newTestRouter(t, reg, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodGet, "/masters/42", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "RESOURCE_NOT_FOUND", env.Error.Code)
}

func TestAPI_GetMaster_NonNumericIDIs400(t *testing.T) {
	router := newTestRouter(t, &fakeRegistry{}, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodGet, "/masters/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_DeleteField_ReferencedIs409(t *testing.T) {
	reg := &fakeRegistry{deleteErr: apperrors.NewConflictError("notification master field", "referenced by meta")}
	router := newTestRouter(t, reg, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodDelete, "/fields/10", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_EnqueueNotification(t *testing.T) {
	disp := &fakeDispatch{id: 55}
	router := newTestRouter(t, &fakeRegistry{}, disp)

	rec := doRequest(t, router, http.MethodPost, "/notifications", map[string]interface{}{
		"userId":  101,
		"variant": "WEB",
		"type":    "admission",
		"message": "Welcome",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.OK)
	assert.Equal(t, float64(55), env.Data.(map[string]interface{})["notificationId"])

	require.NotNil(t, disp.lastEvent)
	assert.Equal(t, int64(101), disp.lastEvent.UserID)
	assert.Equal(t, models.VariantWeb, disp.lastEvent.Variant)
}

func TestAPI_EnqueueNotification_ValidationFailureIs400(t *testing.T) {
	disp := &fakeDispatch{err: apperrors.NewValidationError("variant must be one of ...")}
	router := newTestRouter(t, &fakeRegistry{}, disp)

	rec := doRequest(t, router, http.MethodPost, "/notifications", map[string]interface{}{
		"userId": 101, "variant": "CARRIER_PIGEON", "type": "t", "message": "m",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetNotification(t *testing.T) {
	disp := &fakeDispatch{notification: &models.Notification{
		ID: 55, UserID: 101, Variant: models.VariantWeb, Status: models.StatusSent,
	}}
	router := newTestRouter(t, &fakeRegistry{}, disp)

	rec := doRequest(t, router, http.MethodGet, "/notifications/55", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "SENT", data["status"])
}

func TestAPI_Healthz(t *testing.T) {
	router := newTestRouter(t, &fakeRegistry{}, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.OK)
}

func TestAPI_UnknownDatabaseErrorIsOpaque500(t *testing.T) {
	reg := &fakeRegistry{masterErr: apperrors.NewQueryFailedError("list masters", assert.AnError)}
	router := newTestRouter(t, reg, &fakeDispatch{})

	rec := doRequest(t, router, http.MethodGet, "/masters", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.OK)
	assert.Equal(t, "DATABASE_QUERY_FAILED", env.Error.Code)
	assert.Empty(t, env.Error.Details, "internal details must not leak")
}
