package storage

import (
	"errors"
	"time"

	"virtualaddresshub/backend/internal/domain"
)

var (
	// ErrMailItemNotFound is returned when no mail item matches the id.
	ErrMailItemNotFound = errors.New("mail item not found")
	// ErrRequestNotFound is returned when no forwarding request matches the id.
	ErrRequestNotFound = errors.New("forwarding request not found")
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrWebhookNotFound is returned when no webhook matches the id.
	ErrWebhookNotFound = errors.New("webhook not found")
	// ErrEmailExists is returned when registering a duplicate email.
	ErrEmailExists = errors.New("email already exists")
)

// MailItemRepository defines mail item persistence.
type MailItemRepository interface {
	SaveMailItem(item *domain.MailItem) error
	GetMailItem(id string) (*domain.MailItem, error)
	ListMailItemsByUserID(userID string) ([]domain.MailItem, error)
	ListMailItems(page, pageSize int) ([]domain.MailItem, int, error)
	UpdateMailItemStatus(id string, status domain.MailStatus) error
	UpdateMailItemExpiry(id string, expiresAt *time.Time) error
	CountExpiredMailItems(now time.Time) (int, error)
}

// ForwardingRequestRepository defines forwarding request persistence.
type ForwardingRequestRepository interface {
	SaveForwardingRequest(req *domain.ForwardingRequest) error
	GetForwardingRequest(id string) (*domain.ForwardingRequest, error)
	ListForwardingRequestsByUserID(userID string) ([]domain.ForwardingRequest, error)
	ListForwardingRequestsByMailItem(mailItemID string) ([]domain.ForwardingRequest, error)
	UpdateForwardingRequestStatus(id string, status domain.ForwardingStatus) error
}

// UserRepository defines user persistence.
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	UpdateUserKycStatus(userID string, status domain.KycStatus) error
	UpdateLastLogin(userID string) error
	ListUsers(page, pageSize int, search string) ([]domain.User, int, error)
}

// WebhookRepository defines webhook persistence.
type WebhookRepository interface {
	CreateWebhook(webhook *domain.Webhook) error
	GetWebhook(id string) (*domain.Webhook, error)
	ListWebhooks(userID string) ([]domain.Webhook, error)
	ListActiveWebhooks() ([]domain.Webhook, error)
	UpdateWebhook(webhook *domain.Webhook) error
	DeleteWebhook(id string) error
	RecordDelivery(delivery *domain.WebhookDelivery) error
	// GetPendingDeliveries claims failed deliveries whose backoff has
	// elapsed, clearing their retry schedule. Each delivery record is
	// returned at most once; the retry writes its own record.
	GetPendingDeliveries(limit int) ([]domain.WebhookDelivery, error)
}

// Store aggregates all repositories behind a single dependency.
type Store interface {
	MailItemRepository
	ForwardingRequestRepository
	UserRepository
	WebhookRepository

	Close() error
	Health() error
}
