// internal/models/master.go
package models

import "time"

// Master is a named notification template definition. Masters are soft-
// disabled via IsActive rather than deleted.
type Master struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Template     *string   `json:"template,omitempty"`
	PreviewImage *string   `json:"previewImage,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// MasterField is one named data slot belonging to a Master.
type MasterField struct {
	ID       int64  `json:"id"`
	MasterID int64  `json:"notificationMasterId"`
	Name     string `json:"name"`
}

// MasterMeta binds a field into a Master's layout. Rows with Flag=true,
// ordered by Sequence ascending, define the positional template layout.
type MasterMeta struct {
	ID       int64 `json:"id"`
	MasterID int64 `json:"notificationMasterId"`
	FieldID  int64 `json:"notificationMasterFieldId"`
	Sequence int   `json:"sequence"`
	Flag     bool  `json:"flag"`
}

// LayoutSlot is one active, ordered template slot resolved from meta rows
// joined to their field names.
type LayoutSlot struct {
	FieldID   int64  `json:"fieldId"`
	FieldName string `json:"fieldName"`
	Sequence  int    `json:"sequence"`
}
