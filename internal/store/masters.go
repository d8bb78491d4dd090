// internal/store/masters.go
// Package store implements the persistence layer for masters, notifications
// and the per-channel dispatch queue on top of database/sql + lib/pq.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/models"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"

	// listMastersCap bounds unpaginated master listings.
	listMastersCap = 1000
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// MasterStore persists notification masters, their fields and meta layout.
type MasterStore struct {
	db *sql.DB
}

func NewMasterStore(db *sql.DB) *MasterStore {
	return &MasterStore{db: db}
}

// MasterPatch carries optional updates for a master. Nil fields are left
// unchanged.
type MasterPatch struct {
	Name         *string
	Template     *string
	PreviewImage *string
	IsActive     *bool
}

// MetaPatch carries optional updates for a meta row.
type MetaPatch struct {
	Sequence *int
	Flag     *bool
}

// CreateMaster inserts a new master. Duplicate name or template values are
// reported as a conflict.
func (s *MasterStore) CreateMaster(ctx context.Context, name string, template, previewImage *string, isActive bool) (*models.Master, error) {
	m := &models.Master{
		Name:         name,
		Template:     template,
		PreviewImage: previewImage,
		IsActive:     isActive,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_masters (name, template, preview_image, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		name, template, previewImage, isActive,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflictError("notification master", fmt.Sprintf("name: %s", name))
		}
		return nil, apperrors.NewInsertFailedError("create master", err)
	}

	return m, nil
}

// GetMaster fetches one master by id.
func (s *MasterStore) GetMaster(ctx context.Context, id int64) (*models.Master, error) {
	m := &models.Master{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, template, preview_image, is_active, created_at, updated_at
		FROM notification_masters
		WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Template, &m.PreviewImage, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("notification master", id)
		}
		return nil, apperrors.NewQueryFailedError("get master", err)
	}
	return m, nil
}

// ListMasters returns all masters, capped at a fixed maximum.
func (s *MasterStore) ListMasters(ctx context.Context) ([]models.Master, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, template, preview_image, is_active, created_at, updated_at
		FROM notification_masters
		ORDER BY id
		LIMIT $1`,
		listMastersCap,
	)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("list masters", err)
	}
	defer rows.Close()

	masters := []models.Master{}
	for rows.Next() {
		var m models.Master
		if err := rows.Scan(&m.ID, &m.Name, &m.Template, &m.PreviewImage, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryFailedError("list masters", err)
		}
		masters = append(masters, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryFailedError("list masters", err)
	}
	return masters, nil
}

// UpdateMaster applies a partial update and returns the updated row.
func (s *MasterStore) UpdateMaster(ctx context.Context, id int64, patch MasterPatch) (*models.Master, error) {
	sets := []string{}
	args := []interface{}{}
	idx := 1

	if patch.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *patch.Name)
		idx++
	}
	if patch.Template != nil {
		sets = append(sets, fmt.Sprintf("template = $%d", idx))
		args = append(args, *patch.Template)
		idx++
	}
	if patch.PreviewImage != nil {
		sets = append(sets, fmt.Sprintf("preview_image = $%d", idx))
		args = append(args, *patch.PreviewImage)
		idx++
	}
	if patch.IsActive != nil {
		sets = append(sets, fmt.Sprintf("is_active = $%d", idx))
		args = append(args, *patch.IsActive)
		idx++
	}

	if len(sets) == 0 {
		return s.GetMaster(ctx, id)
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE notification_masters
		SET %s
		WHERE id = $%d
		RETURNING id, name, template, preview_image, is_active, created_at, updated_at`,
		strings.Join(sets, ", "), idx,
	)

	m := &models.Master{}
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&m.ID, &m.Name, &m.Template, &m.PreviewImage, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("notification master", id)
		}
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflictError("notification master", "name or template already in use")
		}
		return nil, apperrors.NewUpdateFailedError("update master", err)
	}
	return m, nil
}

// CreateField adds a named data slot to a master.
func (s *MasterStore) CreateField(ctx context.Context, masterID int64, name string) (*models.MasterField, error) {
	f := &models.MasterField{MasterID: masterID, Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_master_fields (notification_master_id, name)
		VALUES ($1, $2)
		RETURNING id`,
		masterID, name,
	).Scan(&f.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperrors.NewNotFoundError("notification master", masterID)
		}
		return nil, apperrors.NewInsertFailedError("create field", err)
	}
	return f, nil
}

// ListFields returns the fields owned by a master, in no guaranteed order.
func (s *MasterStore) ListFields(ctx context.Context, masterID int64) ([]models.MasterField, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_master_id, name
		FROM notification_master_fields
		WHERE notification_master_id = $1`,
		masterID,
	)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("list fields", err)
	}
	defer rows.Close()

	fields := []models.MasterField{}
	for rows.Next() {
		var f models.MasterField
		if err := rows.Scan(&f.ID, &f.MasterID, &f.Name); err != nil {
			return nil, apperrors.NewQueryFailedError("list fields", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryFailedError("list fields", err)
	}
	return fields, nil
}

// DeleteField removes a field. Deletion is refused while any meta row still
// references the field, so a layout can never point at a missing slot.
func (s *MasterStore) DeleteField(ctx context.Context, id int64) error {
	var refs int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification_master_meta
		WHERE notification_master_field_id = $1`,
		id,
	).Scan(&refs)
	if err != nil {
		return apperrors.NewQueryFailedError("delete field", err)
	}
	if refs > 0 {
		return apperrors.NewConflictError("notification master field",
			fmt.Sprintf("field %d is referenced by %d meta rows", id, refs))
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_master_fields WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewUpdateFailedError("delete field", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("notification master field", id)
	}
	return nil
}

// CreateMeta binds a field into a master's ordered layout. An active row may
// not share its sequence value with another active row of the same master.
func (s *MasterStore) CreateMeta(ctx context.Context, masterID, fieldID int64, sequence int, flag bool) (*models.MasterMeta, error) {
	if flag {
		taken, err := s.activeSequenceTaken(ctx, masterID, sequence, 0)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.NewConflictError("notification master meta",
				fmt.Sprintf("active sequence %d already in use for master %d", sequence, masterID))
		}
	}

	m := &models.MasterMeta{MasterID: masterID, FieldID: fieldID, Sequence: sequence, Flag: flag}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_master_meta (notification_master_id, notification_master_field_id, sequence, flag)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		masterID, fieldID, sequence, flag,
	).Scan(&m.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperrors.NewNotFoundError("notification master or field", masterID)
		}
		if isUniqueViolation(err) {
			return nil, apperrors.NewConflictError("notification master meta",
				fmt.Sprintf("active sequence %d already in use for master %d", sequence, masterID))
		}
		return nil, apperrors.NewInsertFailedError("create meta", err)
	}
	return m, nil
}

// UpdateMeta applies a partial update to a meta row, enforcing the active
// sequence uniqueness rule on the resulting state.
func (s *MasterStore) UpdateMeta(ctx context.Context, id int64, patch MetaPatch) (*models.MasterMeta, error) {
	existing, err := s.GetMeta(ctx, id)
	if err != nil {
		return nil, err
	}

	sequence := existing.Sequence
	if patch.Sequence != nil {
		sequence = *patch.Sequence
	}
	flag := existing.Flag
	if patch.Flag != nil {
		flag = *patch.Flag
	}

	if flag {
		taken, err := s.activeSequenceTaken(ctx, existing.MasterID, sequence, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.NewConflictError("notification master meta",
				fmt.Sprintf("active sequence %d already in use for master %d", sequence, existing.MasterID))
		}
	}

	m := &models.MasterMeta{}
	err = s.db.QueryRowContext(ctx, `
		UPDATE notification_master_meta
		SET sequence = $1, flag = $2
		WHERE id = $3
		RETURNING id, notification_master_id, notification_master_field_id, sequence, flag`,
		sequence, flag, id,
	).Scan(&m.ID, &m.MasterID, &m.FieldID, &m.Sequence, &m.Flag)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("notification master meta", id)
		}
		return nil, apperrors.NewUpdateFailedError("update meta", err)
	}
	return m, nil
}

// DeleteMeta removes a meta row.
func (s *MasterStore) DeleteMeta(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notification_master_meta WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewUpdateFailedError("delete meta", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("notification master meta", id)
	}
	return nil
}

// ListMeta returns the meta rows of a master ordered by sequence.
func (s *MasterStore) ListMeta(ctx context.Context, masterID int64) ([]models.MasterMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, notification_master_id, notification_master_field_id, sequence, flag
		FROM notification_master_meta
		WHERE notification_master_id = $1
		ORDER BY sequence ASC`,
		masterID,
	)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("list meta", err)
	}
	defer rows.Close()

	meta := []models.MasterMeta{}
	for rows.Next() {
		var m models.MasterMeta
		if err := rows.Scan(&m.ID, &m.MasterID, &m.FieldID, &m.Sequence, &m.Flag); err != nil {
			return nil, apperrors.NewQueryFailedError("list meta", err)
		}
		meta = append(meta, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryFailedError("list meta", err)
	}
	return meta, nil
}

// ActiveLayout resolves the positional template layout of a master: active
// meta rows ordered by sequence ascending, joined to their field names.
func (s *MasterStore) ActiveLayout(ctx context.Context, masterID int64) ([]models.LayoutSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, m.sequence
		FROM notification_master_meta m
		JOIN notification_master_fields f ON f.id = m.notification_master_field_id
		WHERE m.notification_master_id = $1 AND m.flag = TRUE
		ORDER BY m.sequence ASC`,
		masterID,
	)
	if err != nil {
		return nil, apperrors.NewQueryFailedError("active layout", err)
	}
	defer rows.Close()

	layout := []models.LayoutSlot{}
	for rows.Next() {
		var slot models.LayoutSlot
		if err := rows.Scan(&slot.FieldID, &slot.FieldName, &slot.Sequence); err != nil {
			return nil, apperrors.NewQueryFailedError("active layout", err)
		}
		layout = append(layout, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryFailedError("active layout", err)
	}
	return layout, nil
}

// GetMeta fetches one meta row by id.
func (s *MasterStore) GetMeta(ctx context.Context, id int64) (*models.MasterMeta, error) {
	m := &models.MasterMeta{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, notification_master_id, notification_master_field_id, sequence, flag
		FROM notification_master_meta
		WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.MasterID, &m.FieldID, &m.Sequence, &m.Flag)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("notification master meta", id)
		}
		return nil, apperrors.NewQueryFailedError("get meta", err)
	}
	return m, nil
}

func (s *MasterStore) activeSequenceTaken(ctx context.Context, masterID int64, sequence int, excludeID int64) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notification_master_meta
			WHERE notification_master_id = $1 AND sequence = $2 AND flag = TRUE AND id <> $3
		)`,
		masterID, sequence, excludeID,
	).Scan(&taken)
	if err != nil {
		return false, apperrors.NewQueryFailedError("check active sequence", err)
	}
	return taken, nil
}
