package domain

import "time"

// MailItem represents a piece of physical mail received at the virtual
// address and scanned into the platform.
type MailItem struct {
	ID               string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID           string      `json:"userId" gorm:"type:varchar(36);index;not null"`
	Sender           string      `json:"sender" gorm:"type:varchar(255)"`
	Description      string      `json:"description" gorm:"type:varchar(500)"`
	Tag              string      `json:"tag" gorm:"type:varchar(100);index"` // free text, e.g. "HMRC", "Companies House"
	ScanURL          string      `json:"scanUrl" gorm:"type:varchar(500)"`
	ForwardingStatus *MailStatus `json:"forwardingStatus,omitempty" gorm:"type:varchar(20);index"` // nil until a forward is first requested
	StorageExpiresAt *time.Time  `json:"storageExpiresAt,omitempty"`
	ReceivedAt       time.Time   `json:"receivedAt"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// OwnedBy reports whether the given user may act on this item as its
// owner.
func (m *MailItem) OwnedBy(userID string) bool {
	return m.UserID == userID
}

// CurrentStatus returns the item's forwarding status, defaulting to
// Requested for items whose forward has just been initiated.
func (m *MailItem) CurrentStatus() MailStatus {
	if m.ForwardingStatus == nil {
		return MailStatusRequested
	}
	return *m.ForwardingStatus
}

// ForwardingRequest is a user's instruction to physically forward one
// mail item to an external address. Its status uses the coarser
// forwarding vocabulary, which allows out-of-band cancellation.
type ForwardingRequest struct {
	ID             string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailItemID     string           `json:"mailItemId" gorm:"type:varchar(36);index;not null"`
	UserID         string           `json:"userId" gorm:"type:varchar(36);index;not null"`
	RecipientName  string           `json:"recipientName" gorm:"type:varchar(255)"`
	AddressLine1   string           `json:"addressLine1" gorm:"type:varchar(255)"`
	AddressLine2   string           `json:"addressLine2,omitempty" gorm:"type:varchar(255)"`
	City           string           `json:"city" gorm:"type:varchar(100)"`
	Postcode       string           `json:"postcode" gorm:"type:varchar(20)"`
	Country        string           `json:"country" gorm:"type:varchar(100)"`
	Notes          string           `json:"notes,omitempty" gorm:"type:text"`
	Status         ForwardingStatus `json:"status" gorm:"type:varchar(20);index;default:'requested'"`
	IdempotencyKey string           `json:"-" gorm:"type:varchar(128)"` // audit copy of the header, if one was sent
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
