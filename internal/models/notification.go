// internal/models/notification.go
package models

import "time"

// Variant is the delivery medium a notification is addressed to.
type Variant string

const (
	VariantEmail    Variant = "EMAIL"
	VariantWhatsApp Variant = "WHATSAPP"
	VariantWeb      Variant = "WEB"
	VariantSMS      Variant = "SMS"
	VariantInApp    Variant = "IN_APP"
)

// Status is the lifecycle state of a notification. PENDING is the only
// non-terminal state; SENT and FAILED are terminal.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// QueueType identifies the per-channel dispatch queue.
type QueueType string

const (
	QueueEmail    QueueType = "EMAIL_QUEUE"
	QueueWhatsApp QueueType = "WHATSAPP_QUEUE"
	QueueWeb      QueueType = "WEB_QUEUE"
	QueueSMS      QueueType = "SMS_QUEUE"
	QueueInApp    QueueType = "IN_APP_QUEUE"
)

// QueueFor maps a variant to its dispatch queue. Unknown variants land in
// the in-app queue.
func QueueFor(v Variant) QueueType {
	switch v {
	case VariantWhatsApp:
		return QueueWhatsApp
	case VariantEmail:
		return QueueEmail
	case VariantWeb:
		return QueueWeb
	case VariantSMS:
		return QueueSMS
	default:
		return QueueInApp
	}
}

// Notification is the durable record of one dispatch attempt.
type Notification struct {
	ID                  int64      `json:"id"`
	UserID              int64      `json:"userId"`
	ApplicationFormID   *int64     `json:"applicationFormId,omitempty"`
	NotificationEventID *int64     `json:"notificationEventId,omitempty"`
	MasterID            *int64     `json:"notificationMasterId,omitempty"`
	Variant             Variant    `json:"variant"`
	Type                string     `json:"type"`
	Message             string     `json:"message"`
	Status              Status     `json:"status"`
	SentAt              *time.Time `json:"sentAt,omitempty"`
	FailedAt            *time.Time `json:"failedAt,omitempty"`
	FailedReason        string     `json:"failedReason,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// NotificationContent is one materialized piece of channel-specific payload.
// For WhatsApp there is one row per ordered template slot; for Email at most
// one row holding a JSON blob of {templateData, subject, emailTemplate}.
type NotificationContent struct {
	ID                  int64     `json:"id"`
	NotificationID      int64     `json:"notificationId"`
	NotificationEventID *int64    `json:"notificationEventId,omitempty"`
	WhatsAppFieldID     *int64    `json:"whatsappFieldId,omitempty"`
	EmailTemplate       *string   `json:"emailTemplate,omitempty"`
	Content             string    `json:"content"`
	CreatedAt           time.Time `json:"createdAt"`
}

// QueueItem is a pending-delivery marker for a notification on one channel.
// ClaimedBy/ClaimExpiresAt implement the worker lease; IsDeadLetter marks a
// retired row (delivered or terminally failed).
type QueueItem struct {
	ID             int64      `json:"id"`
	NotificationID int64      `json:"notificationId"`
	Type           QueueType  `json:"type"`
	ClaimedBy      *string    `json:"claimedBy,omitempty"`
	ClaimExpiresAt *time.Time `json:"claimExpiresAt,omitempty"`
	RetryAttempts  int        `json:"retryAttempts"`
	IsDeadLetter   bool       `json:"isDeadLetter"`
	DeadLetterAt   *time.Time `json:"deadLetterAt,omitempty"`
	FailedReason   string     `json:"failedReason,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
