// internal/registry/service.go
// Package registry exposes the template registry: masters, their fields and
// the ordered meta layout, with a Redis cache in front of layout resolution.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notification-system/internal/common/logger"
	"notification-system/internal/models"
	"notification-system/internal/store"
)

const layoutCacheTTL = 5 * time.Minute

// Service wraps the master store with layout caching and invalidation.
// A nil redis client disables caching entirely.
type Service struct {
	masters *store.MasterStore
	cache   *redis.Client
	logger  logger.Logger
}

func NewService(masters *store.MasterStore, cache *redis.Client, log logger.Logger) *Service {
	return &Service{
		masters: masters,
		cache:   cache,
		logger:  log.WithFields(map[string]interface{}{"component": "registry"}),
	}
}

func layoutKey(masterID int64) string {
	return fmt.Sprintf("registry:layout:%d", masterID)
}

// CreateMaster creates a new master.
func (s *Service) CreateMaster(ctx context.Context, name string, template, previewImage *string, isActive bool) (*models.Master, error) {
	return s.masters.CreateMaster(ctx, name, template, previewImage, isActive)
}

// GetMaster fetches one master.
func (s *Service) GetMaster(ctx context.Context, id int64) (*models.Master, error) {
	return s.masters.GetMaster(ctx, id)
}

// ListMasters lists all masters.
func (s *Service) ListMasters(ctx context.Context) ([]models.Master, error) {
	return s.masters.ListMasters(ctx)
}

// UpdateMaster applies a patch and drops the master's cached layout.
func (s *Service) UpdateMaster(ctx context.Context, id int64, patch store.MasterPatch) (*models.Master, error) {
	m, err := s.masters.UpdateMaster(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidateLayout(ctx, id)
	return m, nil
}

// CreateField adds a field to a master.
func (s *Service) CreateField(ctx context.Context, masterID int64, name string) (*models.MasterField, error) {
	return s.masters.CreateField(ctx, masterID, name)
}

// ListFields lists a master's fields.
func (s *Service) ListFields(ctx context.Context, masterID int64) ([]models.MasterField, error) {
	return s.masters.ListFields(ctx, masterID)
}

// DeleteField deletes an unreferenced field. The layout cache is left alone
// because a referenced field cannot be deleted in the first place.
func (s *Service) DeleteField(ctx context.Context, id int64) error {
	return s.masters.DeleteField(ctx, id)
}

// CreateMeta binds a field into a master's layout and drops the cached
// layout.
func (s *Service) CreateMeta(ctx context.Context, masterID, fieldID int64, sequence int, flag bool) (*models.MasterMeta, error) {
	m, err := s.masters.CreateMeta(ctx, masterID, fieldID, sequence, flag)
	if err != nil {
		return nil, err
	}
	s.invalidateLayout(ctx, masterID)
	return m, nil
}

// UpdateMeta patches a meta row and drops the cached layout.
func (s *Service) UpdateMeta(ctx context.Context, id int64, patch store.MetaPatch) (*models.MasterMeta, error) {
	m, err := s.masters.UpdateMeta(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.invalidateLayout(ctx, m.MasterID)
	return m, nil
}

// DeleteMeta removes a meta row and drops the owning master's cached layout.
func (s *Service) DeleteMeta(ctx context.Context, id int64) error {
	// Fetch first so we know which layout to invalidate.
	meta, err := s.masters.GetMeta(ctx, id)
	if err != nil {
		return err
	}
	if err := s.masters.DeleteMeta(ctx, id); err != nil {
		return err
	}
	s.invalidateLayout(ctx, meta.MasterID)
	return nil
}

// ListMeta lists a master's meta rows ordered by sequence.
func (s *Service) ListMeta(ctx context.Context, masterID int64) ([]models.MasterMeta, error) {
	return s.masters.ListMeta(ctx, masterID)
}

// ActiveLayout resolves the positional template layout of a master, serving
// from Redis when a fresh copy exists.
func (s *Service) ActiveLayout(ctx context.Context, masterID int64) ([]models.LayoutSlot, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, layoutKey(masterID)).Result()
		if err == nil {
			var layout []models.LayoutSlot
			if jsonErr := json.Unmarshal([]byte(raw), &layout); jsonErr == nil {
				return layout, nil
			}
			// corrupt entry, fall through to the store
			s.cache.Del(ctx, layoutKey(masterID))
		}
	}

	layout, err := s.masters.ActiveLayout(ctx, masterID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(layout); err == nil {
			if err := s.cache.Set(ctx, layoutKey(masterID), raw, layoutCacheTTL).Err(); err != nil {
				s.logger.Warn("layout cache write failed", map[string]interface{}{
					"masterId": masterID,
					"error":    err.Error(),
				})
			}
		}
	}
	return layout, nil
}

func (s *Service) invalidateLayout(ctx context.Context, masterID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, layoutKey(masterID)).Err(); err != nil {
		s.logger.Warn("layout cache invalidation failed", map[string]interface{}{
			"masterId": masterID,
			"error":    err.Error(),
		})
	}
}
