package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/monitoring"
	"virtualaddresshub/backend/internal/storage"
)

// ErrNoScanAvailable reports a mail item that has no scanned copy yet.
var ErrNoScanAvailable = errors.New("no scan available for this mail item")

// MailItemService handles intake and read access for scanned mail.
type MailItemService struct {
	store       storage.Store
	metrics     *monitoring.Metrics
	events      EventPublisher
	log         *zap.Logger
	now         func() time.Time
	storageDays int
}

// MailItemOption configures a MailItemService.
type MailItemOption func(*MailItemService)

// WithMailItemClock overrides the service clock.
func WithMailItemClock(now func() time.Time) MailItemOption {
	return func(s *MailItemService) { s.now = now }
}

// WithMailItemEvents attaches an event sink.
func WithMailItemEvents(events EventPublisher) MailItemOption {
	return func(s *MailItemService) { s.events = events }
}

// NewMailItemService builds the service. storageDays sets the default
// retention window stamped on new items; zero disables expiry.
func NewMailItemService(store storage.Store, metrics *monitoring.Metrics, log *zap.Logger, storageDays int, opts ...MailItemOption) *MailItemService {
	s := &MailItemService{
		store:       store,
		metrics:     metrics,
		log:         log,
		now:         time.Now,
		storageDays: storageDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IntakeInput describes a piece of mail logged by operations staff.
type IntakeInput struct {
	UserID      string
	Sender      string
	Description string
	Tag         string
	ScanURL     string
	ReceivedAt  *time.Time
}

// Intake logs a newly received mail item against a user's address and
// stamps the retention window.
func (s *MailItemService) Intake(ctx context.Context, input IntakeInput) (*domain.MailItem, error) {
	if _, err := s.store.GetUserByID(input.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	receivedAt := now
	if input.ReceivedAt != nil {
		receivedAt = *input.ReceivedAt
	}

	var expiresAt *time.Time
	if s.storageDays > 0 {
		t := receivedAt.Add(time.Duration(s.storageDays) * 24 * time.Hour)
		expiresAt = &t
	}

	item := &domain.MailItem{
		ID:               uuid.New().String(),
		UserID:           input.UserID,
		Sender:           input.Sender,
		Description:      input.Description,
		Tag:              input.Tag,
		ScanURL:          input.ScanURL,
		StorageExpiresAt: expiresAt,
		ReceivedAt:       receivedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.SaveMailItem(item); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MailItemsReceived.Inc()
	}
	s.log.Info("mail item logged",
		zap.String("mail_item_id", item.ID),
		zap.String("user_id", item.UserID),
		zap.String("tag", item.Tag),
	)

	if s.events != nil {
		s.events.Publish(domain.Event{
			ID:        uuid.New().String(),
			Type:      domain.EventMailReceived,
			Timestamp: now,
			Data:      item,
		})
	}
	return item, nil
}

// Get returns one mail item, enforcing ownership.
func (s *MailItemService) Get(mailItemID, callerID string) (*domain.MailItem, error) {
	item, err := s.store.GetMailItem(mailItemID)
	if err != nil {
		return nil, err
	}
	caller, err := s.store.GetUserByID(callerID)
	if err != nil {
		return nil, err
	}
	if !item.OwnedBy(caller.ID) && !caller.IsAdmin() {
		return nil, ErrNotOwner
	}
	return item, nil
}

// List returns the caller's mail items, newest first.
func (s *MailItemService) List(userID string) ([]domain.MailItem, error) {
	return s.store.ListMailItemsByUserID(userID)
}

// ScanURL resolves the download location for an item's scanned copy.
// Storage expiry restricts forwarding only; the scan stays readable
// for as long as the item exists, so this path never consults the
// expiry gate.
func (s *MailItemService) ScanURL(mailItemID, callerID string) (string, error) {
	item, err := s.Get(mailItemID, callerID)
	if err != nil {
		return "", err
	}
	if item.ScanURL == "" {
		return "", ErrNoScanAvailable
	}
	if s.metrics != nil {
		s.metrics.ScansDownloaded.Inc()
	}
	return item.ScanURL, nil
}

// UpdateExpiredGauge refreshes the expired-items gauge. Called from
// the background scan ticker.
func (s *MailItemService) UpdateExpiredGauge() {
	count, err := s.store.CountExpiredMailItems(s.now())
	if err != nil {
		s.log.Warn("failed to count expired mail items", zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.MailItemsExpired.Set(float64(count))
	}
}

// RunExpiryScan periodically refreshes the expired-items gauge until
// the context is cancelled.
func (s *MailItemService) RunExpiryScan(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.UpdateExpiredGauge()
		}
	}
}
