package service

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/storage"
)

// ErrInvalidKycStatus reports a KYC status outside the known set.
var ErrInvalidKycStatus = errors.New("invalid KYC status")

// AdminService exposes the back-office operations: user management,
// KYC adjudication and retention adjustments.
type AdminService struct {
	store storage.Store
	log   *zap.Logger
}

func NewAdminService(store storage.Store, log *zap.Logger) *AdminService {
	return &AdminService{store: store, log: log}
}

// ListUsers pages through accounts, optionally filtered by a search
// term matched against email and username.
func (s *AdminService) ListUsers(page, pageSize int, search string) ([]domain.User, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.ListUsers(page, pageSize, search)
}

// kycStatusAliases maps provider spellings onto the canonical set.
// Verification providers report the cleared state as either "approved"
// or "verified"; both are kept as-is since the gate accepts either.
var kycStatusAliases = map[string]domain.KycStatus{
	"not_started": domain.KycStatusNotStarted,
	"notstarted":  domain.KycStatusNotStarted,
	"pending":     domain.KycStatusPending,
	"in_review":   domain.KycStatusPending,
	"approved":    domain.KycStatusApproved,
	"verified":    domain.KycStatusVerified,
	"rejected":    domain.KycStatusRejected,
	"declined":    domain.KycStatusRejected,
}

// NormalizeKycStatus folds a provider-reported status string onto the
// canonical vocabulary.
func NormalizeKycStatus(input string) (domain.KycStatus, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if status, ok := kycStatusAliases[key]; ok {
		return status, nil
	}
	return "", ErrInvalidKycStatus
}

// SetKycStatus records a KYC decision for a user.
func (s *AdminService) SetKycStatus(userID, status string) (*domain.User, error) {
	normalized, err := NormalizeKycStatus(status)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateUserKycStatus(userID, normalized); err != nil {
		return nil, err
	}

	s.log.Info("kyc status updated",
		zap.String("user_id", userID),
		zap.String("status", string(normalized)),
	)
	return s.store.GetUserByID(userID)
}

// UpdateStorageExpiry adjusts a mail item's retention window. A nil
// expiresAt removes the window so the item never expires.
func (s *AdminService) UpdateStorageExpiry(mailItemID string, expiresAt *time.Time) (*domain.MailItem, error) {
	if err := s.store.UpdateMailItemExpiry(mailItemID, expiresAt); err != nil {
		return nil, err
	}

	s.log.Info("storage expiry updated",
		zap.String("mail_item_id", mailItemID),
	)
	return s.store.GetMailItem(mailItemID)
}

// ListAllMail pages through every mail item for the operations view.
func (s *AdminService) ListAllMail(page, pageSize int) ([]domain.MailItem, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.ListMailItems(page, pageSize)
}
