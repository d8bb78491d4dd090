// internal/dispatch/event.go
// Package dispatch accepts notification events, materializes channel-specific
// content rows and enqueues exactly one delivery marker per notification.
package dispatch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "notification-system/internal/common/errors"
	"notification-system/internal/models"
)

// Event is the enqueue payload supplied by external collaborators (the
// admissions/fees/exam backends).
type Event struct {
	UserID               int64          `json:"userId"`
	ApplicationFormID    *int64         `json:"applicationFormId,omitempty"`
	NotificationMasterID *int64         `json:"notificationMasterId,omitempty"`
	NotificationEvent    *EventBody     `json:"notificationEvent,omitempty"`
	Variant              models.Variant `json:"variant"`
	Type                 string         `json:"type"`
	Message              string         `json:"message"`
}

// EventBody carries the template-driven portion of an event.
type EventBody struct {
	ID                   *int64                 `json:"id,omitempty"`
	NotificationMasterID *int64                 `json:"notificationMasterId,omitempty"`
	NotificationMaster   *MasterRef             `json:"notificationMaster,omitempty"`
	EmailTemplate        string                 `json:"emailTemplate,omitempty"`
	Subject              string                 `json:"subject,omitempty"`
	TemplateData         map[string]interface{} `json:"templateData,omitempty"`
	BodyValues           []string               `json:"bodyValues,omitempty"`
}

// MasterRef is an event-embedded master reference, optionally carrying the
// layout meta inline so the registry need not be consulted.
type MasterRef struct {
	ID   int64     `json:"id"`
	Meta []MetaRef `json:"meta,omitempty"`
}

// MetaRef mirrors one layout binding supplied inline with an event.
type MetaRef struct {
	FieldID  int64 `json:"notificationMasterFieldId"`
	Sequence int   `json:"sequence"`
	Flag     bool  `json:"flag"`
}

const eventSchema = `{
	"type": "object",
	"required": ["userId", "variant", "type", "message"],
	"properties": {
		"userId": {"type": "integer", "minimum": 1},
		"applicationFormId": {"type": "integer"},
		"notificationMasterId": {"type": "integer"},
		"variant": {"enum": ["EMAIL", "WHATSAPP", "WEB", "SMS", "IN_APP"]},
		"type": {"type": "string", "minLength": 1},
		"message": {"type": "string"},
		"notificationEvent": {
			"type": "object",
			"properties": {
				"id": {"type": "integer"},
				"notificationMasterId": {"type": "integer"},
				"notificationMaster": {
					"type": "object",
					"required": ["id"],
					"properties": {
						"id": {"type": "integer"},
						"meta": {
							"type": "array",
							"items": {
								"type": "object",
								"required": ["notificationMasterFieldId", "sequence"],
								"properties": {
									"notificationMasterFieldId": {"type": "integer"},
									"sequence": {"type": "integer"},
									"flag": {"type": "boolean"}
								}
							}
						}
					}
				},
				"emailTemplate": {"type": "string"},
				"subject": {"type": "string"},
				"templateData": {"type": "object"},
				"bodyValues": {"type": "array", "items": {"type": "string"}}
			}
		}
	}
}`

var compiledEventSchema = gojsonschema.NewStringLoader(eventSchema)

// ValidateEvent checks an event against the enqueue payload schema.
func ValidateEvent(event *Event) error {
	result, err := gojsonschema.Validate(compiledEventSchema, gojsonschema.NewGoLoader(event))
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("schema evaluation failed: %v", err))
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return apperrors.NewValidationError(strings.Join(details, "; "))
	}
	return nil
}

// ResolveMasterID picks the master referenced by an event. Precedence:
// top-level id, then the event body's id, then the embedded master's id.
func ResolveMasterID(event *Event) *int64 {
	if event.NotificationMasterID != nil {
		return event.NotificationMasterID
	}
	if event.NotificationEvent != nil {
		if event.NotificationEvent.NotificationMasterID != nil {
			return event.NotificationEvent.NotificationMasterID
		}
		if event.NotificationEvent.NotificationMaster != nil {
			id := event.NotificationEvent.NotificationMaster.ID
			return &id
		}
	}
	return nil
}

// EmbeddedLayout builds a layout from meta supplied inline with the event:
// active rows ordered by sequence ascending. Returns nil when no inline meta
// is present, in which case the registry is the source of truth.
func EmbeddedLayout(event *Event) []models.LayoutSlot {
	if event.NotificationEvent == nil ||
		event.NotificationEvent.NotificationMaster == nil ||
		len(event.NotificationEvent.NotificationMaster.Meta) == 0 {
		return nil
	}

	refs := event.NotificationEvent.NotificationMaster.Meta
	slots := make([]models.LayoutSlot, 0, len(refs))
	for _, ref := range refs {
		if !ref.Flag {
			continue
		}
		slots = append(slots, models.LayoutSlot{
			FieldID:  ref.FieldID,
			Sequence: ref.Sequence,
		})
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Sequence < slots[j].Sequence })
	return slots
}
