package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/guard"
	"virtualaddresshub/backend/internal/monitoring"
	"virtualaddresshub/backend/internal/storage"
)

var (
	// ErrNotOwner rejects access to another user's mail item.
	ErrNotOwner = errors.New("mail item belongs to another user")
	// ErrKycNotApproved blocks forwarding until identity verification
	// clears. Exempt official mail bypasses this check.
	ErrKycNotApproved = errors.New("identity verification required before forwarding")
	// ErrStorageExpired blocks forwarding of an item past its retention
	// window.
	ErrStorageExpired = errors.New("mail item storage period has expired")
	// ErrAdminOverrideRequired asks an admin to repeat the call with the
	// explicit override flag.
	ErrAdminOverrideRequired = errors.New("admin override required to forward expired item")
	// ErrDuplicateRequest rejects a repeated idempotency key.
	ErrDuplicateRequest = errors.New("duplicate forwarding request")
	// ErrRateLimited rejects a caller over the forwarding request ceiling.
	ErrRateLimited = errors.New("too many forwarding requests")
	// ErrNoForwardInProgress rejects a status advance on an item that
	// has never been forwarded.
	ErrNoForwardInProgress = errors.New("no forward in progress for this mail item")
	// ErrRequestNotCancellable rejects cancellation of a request that
	// has already been dispatched or cancelled.
	ErrRequestNotCancellable = errors.New("forwarding request can no longer be cancelled")
)

// EventPublisher receives domain events for webhook and dashboard
// fan-out. Publishing is fire-and-forget.
type EventPublisher interface {
	Publish(event domain.Event)
}

// ForwardingService owns the forwarding request pipeline and the mail
// status lifecycle. Every inbound request passes, in order: ownership,
// the admission guard, the storage expiry gate, the KYC gate, and the
// status transition table. The guard runs before the gates so that a
// rejected retry burns neither its idempotency key nor gate work.
type ForwardingService struct {
	store   storage.Store
	guard   guard.Guard
	metrics *monitoring.Metrics
	events  EventPublisher
	log     *zap.Logger
	now     func() time.Time
}

// ForwardingOption configures a ForwardingService.
type ForwardingOption func(*ForwardingService)

// WithForwardingClock overrides the service clock.
func WithForwardingClock(now func() time.Time) ForwardingOption {
	return func(s *ForwardingService) { s.now = now }
}

// WithEventPublisher attaches an event sink.
func WithEventPublisher(events EventPublisher) ForwardingOption {
	return func(s *ForwardingService) { s.events = events }
}

func NewForwardingService(store storage.Store, g guard.Guard, metrics *monitoring.Metrics, log *zap.Logger, opts ...ForwardingOption) *ForwardingService {
	s := &ForwardingService{
		store:   store,
		guard:   g,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequestInput carries a forwarding request submission.
// CallerID is the authenticated user; for an admin it may differ from
// the mail item's owner.
type CreateRequestInput struct {
	MailItemID     string
	CallerID       string
	IdempotencyKey string
	RecipientName  string
	AddressLine1   string
	AddressLine2   string
	City           string
	Postcode       string
	Country        string
	Notes          string
	AdminOverride  bool
}

// CreateRequest runs the full admission pipeline and, on success,
// records the forwarding request and moves the mail item into the
// Requested state.
func (s *ForwardingService) CreateRequest(ctx context.Context, input CreateRequestInput) (*domain.ForwardingRequest, error) {
	start := s.now()

	item, err := s.store.GetMailItem(input.MailItemID)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(input.CallerID)
	if err != nil {
		return nil, err
	}

	// An admin may forward on a user's behalf. The request still
	// belongs to the item's owner, and it is the owner's verification
	// state the KYC gate consults.
	owner := user
	if !item.OwnedBy(user.ID) {
		if !user.IsAdmin() {
			return nil, ErrNotOwner
		}
		owner, err = s.store.GetUserByID(item.UserID)
		if err != nil {
			return nil, err
		}
	}

	decision, err := s.guard.Check(ctx, user.ID, input.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("guard check failed: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordGuardDecision(decision.String())
	}
	switch decision {
	case guard.DuplicateRequest:
		return nil, ErrDuplicateRequest
	case guard.RateLimited:
		return nil, ErrRateLimited
	}

	switch domain.CheckStorageExpiry(item.StorageExpiresAt, user.IsAdmin(), input.AdminOverride, s.now()) {
	case domain.ExpiryExpired:
		if s.metrics != nil {
			s.metrics.RecordExpiryRejection("expired")
		}
		return nil, ErrStorageExpired
	case domain.ExpiryAdminOverrideRequired:
		if s.metrics != nil {
			s.metrics.RecordExpiryRejection("admin_override_required")
		}
		return nil, ErrAdminOverrideRequired
	}

	if !domain.CanForwardMail(owner.KycStatus, item.Tag) {
		if s.metrics != nil {
			s.metrics.KycRejections.Inc()
		}
		return nil, ErrKycNotApproved
	}

	// The item enters the mail lifecycle at Requested. A repeat forward
	// of an item already in flight is rejected by the transition table.
	if item.ForwardingStatus != nil {
		return nil, &domain.TransitionError{From: item.CurrentStatus(), To: domain.MailStatusRequested}
	}

	now := s.now()
	req := &domain.ForwardingRequest{
		ID:             uuid.New().String(),
		MailItemID:     item.ID,
		UserID:         owner.ID,
		RecipientName:  input.RecipientName,
		AddressLine1:   input.AddressLine1,
		AddressLine2:   input.AddressLine2,
		City:           input.City,
		Postcode:       input.Postcode,
		Country:        input.Country,
		Notes:          input.Notes,
		Status:         domain.ForwardingStatusRequested,
		IdempotencyKey: input.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.SaveForwardingRequest(req); err != nil {
		return nil, fmt.Errorf("failed to save forwarding request: %w", err)
	}

	requested := domain.MailStatusRequested
	item.ForwardingStatus = &requested
	item.UpdatedAt = now
	if err := s.store.SaveMailItem(item); err != nil {
		return nil, fmt.Errorf("failed to update mail item: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ForwardingRequested.Inc()
		s.metrics.ForwardingLatency.Observe(s.now().Sub(start).Seconds())
	}
	s.log.Info("forwarding request accepted",
		zap.String("request_id", req.ID),
		zap.String("mail_item_id", item.ID),
		zap.String("user_id", owner.ID),
		zap.String("caller_id", user.ID),
	)

	s.publish(domain.EventForwardingRequested, req)
	return req, nil
}

// AdvanceStatus moves a mail item one step along its lifecycle. The
// target is normalized from free-form input; illegal moves, including
// repeats of the current state and skipped steps, are rejected.
func (s *ForwardingService) AdvanceStatus(ctx context.Context, mailItemID, target string) (*domain.MailItem, error) {
	item, err := s.store.GetMailItem(mailItemID)
	if err != nil {
		return nil, err
	}

	if item.ForwardingStatus == nil {
		return nil, ErrNoForwardInProgress
	}

	to, err := domain.NormalizeMailStatus(target)
	if err != nil {
		return nil, err
	}

	from := item.CurrentStatus()
	if !domain.IsTransitionAllowed(from, to) {
		if s.metrics != nil {
			s.metrics.RecordTransitionRejected(string(from), string(to))
		}
		return nil, &domain.TransitionError{From: from, To: to}
	}

	if err := s.store.UpdateMailItemStatus(item.ID, to); err != nil {
		return nil, err
	}
	item.ForwardingStatus = &to
	item.UpdatedAt = s.now()

	// Keep the request-level status in step with the item.
	s.syncRequestStatus(item.ID, to)

	if s.metrics != nil {
		s.metrics.RecordTransition(string(from), string(to))
	}
	s.log.Info("mail status advanced",
		zap.String("mail_item_id", item.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	s.publish(domain.EventForwardingUpdated, item)
	return item, nil
}

// syncRequestStatus mirrors a mail status change onto the item's open
// forwarding requests. Cancelled requests are left alone.
func (s *ForwardingService) syncRequestStatus(mailItemID string, status domain.MailStatus) {
	var reqStatus domain.ForwardingStatus
	switch status {
	case domain.MailStatusProcessing:
		reqStatus = domain.ForwardingStatusInProgress
	case domain.MailStatusDispatched, domain.MailStatusDelivered:
		reqStatus = domain.ForwardingStatusDispatched
	default:
		return
	}

	requests, err := s.store.ListForwardingRequestsByMailItem(mailItemID)
	if err != nil {
		s.log.Warn("failed to list requests for status sync",
			zap.String("mail_item_id", mailItemID), zap.Error(err))
		return
	}
	for i := range requests {
		if requests[i].Status == domain.ForwardingStatusCancelled {
			continue
		}
		if requests[i].Status == reqStatus {
			continue
		}
		if err := s.store.UpdateForwardingRequestStatus(requests[i].ID, reqStatus); err != nil {
			s.log.Warn("failed to sync request status",
				zap.String("request_id", requests[i].ID), zap.Error(err))
		}
	}
}

// Cancel withdraws a forwarding request. Cancellation is allowed while
// the request is requested or in progress; a dispatched parcel cannot
// be recalled. The mail item returns to the never-forwarded state so
// the user may submit a fresh request later.
func (s *ForwardingService) Cancel(ctx context.Context, requestID, callerID string) (*domain.ForwardingRequest, error) {
	req, err := s.store.GetForwardingRequest(requestID)
	if err != nil {
		return nil, err
	}

	caller, err := s.store.GetUserByID(callerID)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller.ID && !caller.IsAdmin() {
		return nil, ErrNotOwner
	}

	switch req.Status {
	case domain.ForwardingStatusRequested, domain.ForwardingStatusInProgress:
	default:
		return nil, ErrRequestNotCancellable
	}

	if err := s.store.UpdateForwardingRequestStatus(req.ID, domain.ForwardingStatusCancelled); err != nil {
		return nil, err
	}
	req.Status = domain.ForwardingStatusCancelled
	req.UpdatedAt = s.now()

	if item, err := s.store.GetMailItem(req.MailItemID); err == nil {
		item.ForwardingStatus = nil
		item.UpdatedAt = s.now()
		if err := s.store.SaveMailItem(item); err != nil {
			s.log.Warn("failed to reset mail item after cancellation",
				zap.String("mail_item_id", item.ID), zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.ForwardingCancelled.Inc()
	}
	s.log.Info("forwarding request cancelled",
		zap.String("request_id", req.ID),
		zap.String("cancelled_by", caller.ID),
	)

	s.publish(domain.EventForwardingCancelled, req)
	return req, nil
}

// GetRequest returns one forwarding request, enforcing ownership.
func (s *ForwardingService) GetRequest(requestID, callerID string) (*domain.ForwardingRequest, error) {
	req, err := s.store.GetForwardingRequest(requestID)
	if err != nil {
		return nil, err
	}
	caller, err := s.store.GetUserByID(callerID)
	if err != nil {
		return nil, err
	}
	if req.UserID != caller.ID && !caller.IsAdmin() {
		return nil, ErrNotOwner
	}
	return req, nil
}

// ListRequests returns the caller's forwarding requests, newest first.
func (s *ForwardingService) ListRequests(userID string) ([]domain.ForwardingRequest, error) {
	return s.store.ListForwardingRequestsByUserID(userID)
}

// ForwardingOptions describes what a user could do with a mail item
// right now. It evaluates the gates without consuming guard state, so
// a preview never burns an idempotency key or a rate-limit slot.
type ForwardingOptions struct {
	CanForward     bool                `json:"canForward"`
	BlockedReason  string              `json:"blockedReason,omitempty"`
	CurrentStatus  *domain.MailStatus  `json:"currentStatus,omitempty"`
	NextStatuses   []domain.MailStatus `json:"nextStatuses"`
	KycExempt      bool                `json:"kycExempt"`
	StorageExpired bool                `json:"storageExpired"`
}

// Options previews the forwarding gates for a mail item.
func (s *ForwardingService) Options(mailItemID, callerID string) (*ForwardingOptions, error) {
	item, err := s.store.GetMailItem(mailItemID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(callerID)
	if err != nil {
		return nil, err
	}
	owner := user
	if !item.OwnedBy(user.ID) {
		if !user.IsAdmin() {
			return nil, ErrNotOwner
		}
		owner, err = s.store.GetUserByID(item.UserID)
		if err != nil {
			return nil, err
		}
	}

	opts := &ForwardingOptions{
		CurrentStatus: item.ForwardingStatus,
		NextStatuses:  []domain.MailStatus{},
		KycExempt:     domain.CanForwardMail(domain.KycStatusNotStarted, item.Tag),
	}
	if item.ForwardingStatus != nil {
		opts.NextStatuses = domain.NextStatuses(item.CurrentStatus())
	}

	switch domain.CheckStorageExpiry(item.StorageExpiresAt, user.IsAdmin(), false, s.now()) {
	case domain.ExpiryExpired:
		opts.StorageExpired = true
		opts.BlockedReason = "storage_expired"
		return opts, nil
	case domain.ExpiryAdminOverrideRequired:
		opts.StorageExpired = true
		opts.BlockedReason = "admin_override_required"
		return opts, nil
	}

	if !domain.CanForwardMail(owner.KycStatus, item.Tag) {
		opts.BlockedReason = "kyc_not_approved"
		return opts, nil
	}
	if item.ForwardingStatus != nil {
		opts.BlockedReason = "forward_in_progress"
		return opts, nil
	}

	opts.CanForward = true
	return opts, nil
}

func (s *ForwardingService) publish(eventType domain.EventType, data interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: s.now(),
		Data:      data,
	})
}
