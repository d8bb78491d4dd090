// internal/dispatch/materializer.go
package dispatch

import (
	"encoding/json"

	"notification-system/internal/models"
)

// emailPayload is the JSON blob stored in an email content row.
type emailPayload struct {
	TemplateData  map[string]interface{} `json:"templateData"`
	Subject       string                 `json:"subject"`
	EmailTemplate string                 `json:"emailTemplate"`
}

// Materialize translates one event into its channel-specific content rows.
//
// EMAIL with a template name yields exactly one row holding the serialized
// {templateData, subject, emailTemplate} blob. WHATSAPP zips the active
// layout (sequence ascending) with bodyValues positionally: slots past the
// end of bodyValues get an empty string, values past the end of the layout
// are discarded. Every other variant yields no rows and delivery relies on
// the notification message alone.
func Materialize(event *Event, layout []models.LayoutSlot) ([]models.NotificationContent, error) {
	switch event.Variant {
	case models.VariantEmail:
		return materializeEmail(event)
	case models.VariantWhatsApp:
		return materializeWhatsApp(event, layout), nil
	default:
		return nil, nil
	}
}

func materializeEmail(event *Event) ([]models.NotificationContent, error) {
	if event.NotificationEvent == nil || event.NotificationEvent.EmailTemplate == "" {
		return nil, nil
	}

	body := event.NotificationEvent
	blob, err := json.Marshal(emailPayload{
		TemplateData:  body.TemplateData,
		Subject:       body.Subject,
		EmailTemplate: body.EmailTemplate,
	})
	if err != nil {
		return nil, err
	}

	template := body.EmailTemplate
	return []models.NotificationContent{{
		NotificationEventID: body.ID,
		EmailTemplate:       &template,
		Content:             string(blob),
	}}, nil
}

func materializeWhatsApp(event *Event, layout []models.LayoutSlot) []models.NotificationContent {
	if len(layout) == 0 {
		return nil
	}

	var bodyValues []string
	var eventID *int64
	if event.NotificationEvent != nil {
		bodyValues = event.NotificationEvent.BodyValues
		eventID = event.NotificationEvent.ID
	}

	contents := make([]models.NotificationContent, 0, len(layout))
	for i, slot := range layout {
		value := ""
		if i < len(bodyValues) {
			value = bodyValues[i]
		}
		fieldID := slot.FieldID
		contents = append(contents, models.NotificationContent{
			NotificationEventID: eventID,
			WhatsAppFieldID:     &fieldID,
			Content:             value,
		})
	}
	return contents
}
