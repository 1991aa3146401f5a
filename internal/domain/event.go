package domain

import "time"

// EventType identifies a webhook/dashboard notification.
type EventType string

const (
	EventMailReceived        EventType = "mail.received"
	EventForwardingRequested EventType = "forwarding.requested"
	EventForwardingUpdated   EventType = "forwarding.updated"
	EventForwardingCancelled EventType = "forwarding.cancelled"
)

// Event is the payload delivered to webhook endpoints and pushed to
// connected dashboard clients. Delivery is best-effort; failures are
// logged and retried but never fail the originating request.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Webhook is a user-registered notification endpoint.
type Webhook struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string     `json:"userId" gorm:"type:varchar(36);index;not null"`
	URL         string     `json:"url" gorm:"type:varchar(500);not null"`
	Events      []string   `json:"events" gorm:"serializer:json;type:json"`
	Secret      string     `json:"-" gorm:"type:varchar(255)"`
	IsActive    bool       `json:"isActive" gorm:"default:true"`
	LastError   string     `json:"lastError,omitempty" gorm:"type:text"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Subscribed reports whether the webhook wants the given event type.
func (w *Webhook) Subscribed(event EventType) bool {
	for _, e := range w.Events {
		if e == string(event) {
			return true
		}
	}
	return false
}

// WebhookDelivery records one attempt to deliver an event to a webhook.
type WebhookDelivery struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	WebhookID  string     `json:"webhookId" gorm:"type:varchar(36);index"`
	Event      EventType  `json:"event" gorm:"type:varchar(50)"`
	Payload    string     `json:"payload" gorm:"type:text"`
	StatusCode int        `json:"statusCode"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
	Attempts   int        `json:"attempts"`
	NextRetry  *time.Time `json:"nextRetry,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
