// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/common/logger"
	"notification-system/internal/dispatch"
	"notification-system/internal/models"
	"notification-system/internal/store"
)

// RegistryService is the template-registry surface the API depends on.
type RegistryService interface {
	CreateMaster(ctx context.Context, name string, template, previewImage *string, isActive bool) (*models.Master, error)
	GetMaster(ctx context.Context, id int64) (*models.Master, error)
	ListMasters(ctx context.Context) ([]models.Master, error)
	UpdateMaster(ctx context.Context, id int64, patch store.MasterPatch) (*models.Master, error)
	CreateField(ctx context.Context, masterID int64, name string) (*models.MasterField, error)
	ListFields(ctx context.Context, masterID int64) ([]models.MasterField, error)
	DeleteField(ctx context.Context, id int64) error
	CreateMeta(ctx context.Context, masterID, fieldID int64, sequence int, flag bool) (*models.MasterMeta, error)
	UpdateMeta(ctx context.Context, id int64, patch store.MetaPatch) (*models.MasterMeta, error)
	DeleteMeta(ctx context.Context, id int64) error
	ListMeta(ctx context.Context, masterID int64) ([]models.MasterMeta, error)
}

// DispatchService is the enqueue surface the API depends on.
type DispatchService interface {
	Enqueue(ctx context.Context, event *dispatch.Event) (int64, error)
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
}

// Handlers carries the API dependencies.
type Handlers struct {
	registry RegistryService
	dispatch DispatchService
	logger   logger.Logger
}

func NewHandlers(registry RegistryService, dispatchSvc DispatchService, log logger.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		dispatch: dispatchSvc,
		logger:   log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError(name + " must be an integer")
	}
	return id, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.NewValidationError("request body is not valid JSON")
	}
	return nil
}

// --- masters ---

type createMasterRequest struct {
	Name         string  `json:"name"`
	Template     *string `json:"template"`
	PreviewImage *string `json:"previewImage"`
	IsActive     *bool   `json:"isActive"`
}

func (h *Handlers) createMaster(w http.ResponseWriter, r *http.Request) {
	var req createMasterRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" {
		respondError(w, apperrors.NewValidationError("name is required"))
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	m, err := h.registry.CreateMaster(r.Context(), req.Name, req.Template, req.PreviewImage, isActive)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, m)
}

func (h *Handlers) getMaster(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	m, err := h.registry.GetMaster(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, m)
}

func (h *Handlers) listMasters(w http.ResponseWriter, r *http.Request) {
	masters, err := h.registry.ListMasters(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, masters)
}

type updateMasterRequest struct {
	Name         *string `json:"name"`
	Template     *string `json:"template"`
	PreviewImage *string `json:"previewImage"`
	IsActive     *bool   `json:"isActive"`
}

func (h *Handlers) updateMaster(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req updateMasterRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	m, err := h.registry.UpdateMaster(r.Context(), id, store.MasterPatch{
		Name:         req.Name,
		Template:     req.Template,
		PreviewImage: req.PreviewImage,
		IsActive:     req.IsActive,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, m)
}

// --- fields ---

type createFieldRequest struct {
	NotificationMasterID int64  `json:"notificationMasterId"`
	Name                 string `json:"name"`
}

func (h *Handlers) createField(w http.ResponseWriter, r *http.Request) {
	var req createFieldRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.NotificationMasterID == 0 || req.Name == "" {
		respondError(w, apperrors.NewValidationError("notificationMasterId and name are required"))
		return
	}

	f, err := h.registry.CreateField(r.Context(), req.NotificationMasterID, req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, f)
}

func (h *Handlers) listFields(w http.ResponseWriter, r *http.Request) {
	masterID, err := pathID(r, "masterId")
	if err != nil {
		respondError(w, err)
		return
	}
	fields, err := h.registry.ListFields(r.Context(), masterID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, fields)
}

func (h *Handlers) deleteField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.registry.DeleteField(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]int64{"deleted": id})
}

// --- meta ---

type createMetaRequest struct {
	NotificationMasterID      int64 `json:"notificationMasterId"`
	NotificationMasterFieldID int64 `json:"notificationMasterFieldId"`
	Sequence                  int   `json:"sequence"`
	Flag                      bool  `json:"flag"`
}

func (h *Handlers) createMeta(w http.ResponseWriter, r *http.Request) {
	var req createMetaRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.NotificationMasterID == 0 || req.NotificationMasterFieldID == 0 {
		respondError(w, apperrors.NewValidationError("notificationMasterId and notificationMasterFieldId are required"))
		return
	}

	m, err := h.registry.CreateMeta(r.Context(), req.NotificationMasterID, req.NotificationMasterFieldID, req.Sequence, req.Flag)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, m)
}

type updateMetaRequest struct {
	Sequence *int  `json:"sequence"`
	Flag     *bool `json:"flag"`
}

func (h *Handlers) updateMeta(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req updateMetaRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	m, err := h.registry.UpdateMeta(r.Context(), id, store.MetaPatch{Sequence: req.Sequence, Flag: req.Flag})
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, m)
}

func (h *Handlers) deleteMeta(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.registry.DeleteMeta(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (h *Handlers) listMeta(w http.ResponseWriter, r *http.Request) {
	masterID, err := pathID(r, "masterId")
	if err != nil {
		respondError(w, err)
		return
	}
	meta, err := h.registry.ListMeta(r.Context(), masterID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, meta)
}

// --- notifications ---

func (h *Handlers) enqueueNotification(w http.ResponseWriter, r *http.Request) {
	var event dispatch.Event
	if err := decodeBody(r, &event); err != nil {
		respondError(w, err)
		return
	}

	id, err := h.dispatch.Enqueue(r.Context(), &event)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, map[string]int64{"notificationId": id})
}

func (h *Handlers) getNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	n, err := h.dispatch.GetNotification(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, n)
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}
