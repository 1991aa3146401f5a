// Package memory provides an in-memory Store used for development and
// tests. It mirrors the behavior of the SQL store but keeps everything
// behind a single RWMutex.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/storage"
)

// Store holds all entities in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	mailItems   map[string]*domain.MailItem
	itemsByUser map[string][]string

	requests       map[string]*domain.ForwardingRequest
	requestsByUser map[string][]string
	requestsByItem map[string][]string

	users   map[string]*domain.User
	byEmail map[string]string

	webhooks   map[string]*domain.Webhook
	deliveries []*domain.WebhookDelivery
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		mailItems:      make(map[string]*domain.MailItem),
		itemsByUser:    make(map[string][]string),
		requests:       make(map[string]*domain.ForwardingRequest),
		requestsByUser: make(map[string][]string),
		requestsByItem: make(map[string][]string),
		users:          make(map[string]*domain.User),
		byEmail:        make(map[string]string),
		webhooks:       make(map[string]*domain.Webhook),
		deliveries:     make([]*domain.WebhookDelivery, 0),
	}
}

// ========== Mail items ==========

func (s *Store) SaveMailItem(item *domain.MailItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.mailItems[item.ID]; !exists {
		s.itemsByUser[item.UserID] = append(s.itemsByUser[item.UserID], item.ID)
	}
	clone := *item
	s.mailItems[item.ID] = &clone
	return nil
}

func (s *Store) GetMailItem(id string) (*domain.MailItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.mailItems[id]
	if !ok {
		return nil, storage.ErrMailItemNotFound
	}
	clone := *item
	return &clone, nil
}

func (s *Store) ListMailItemsByUserID(userID string) ([]domain.MailItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.itemsByUser[userID]
	items := make([]domain.MailItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.mailItems[id]; ok {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ReceivedAt.After(items[j].ReceivedAt)
	})
	return items, nil
}

func (s *Store) ListMailItems(page, pageSize int) ([]domain.MailItem, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.MailItem, 0, len(s.mailItems))
	for _, item := range s.mailItems {
		all = append(all, *item)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ReceivedAt.After(all[j].ReceivedAt)
	})

	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.MailItem{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *Store) UpdateMailItemStatus(id string, status domain.MailStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.mailItems[id]
	if !ok {
		return storage.ErrMailItemNotFound
	}
	item.ForwardingStatus = &status
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateMailItemExpiry(id string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.mailItems[id]
	if !ok {
		return storage.ErrMailItemNotFound
	}
	item.StorageExpiresAt = expiresAt
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CountExpiredMailItems(now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.mailItems {
		if item.StorageExpiresAt != nil && now.After(*item.StorageExpiresAt) {
			count++
		}
	}
	return count, nil
}

// ========== Forwarding requests ==========

func (s *Store) SaveForwardingRequest(req *domain.ForwardingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; !exists {
		s.requestsByUser[req.UserID] = append(s.requestsByUser[req.UserID], req.ID)
		s.requestsByItem[req.MailItemID] = append(s.requestsByItem[req.MailItemID], req.ID)
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *Store) GetForwardingRequest(id string) (*domain.ForwardingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, storage.ErrRequestNotFound
	}
	clone := *req
	return &clone, nil
}

func (s *Store) ListForwardingRequestsByUserID(userID string) ([]domain.ForwardingRequest, error) {
	return s.listRequests(s.requestsByUser, userID), nil
}

func (s *Store) ListForwardingRequestsByMailItem(mailItemID string) ([]domain.ForwardingRequest, error) {
	return s.listRequests(s.requestsByItem, mailItemID), nil
}

func (s *Store) listRequests(index map[string][]string, key string) []domain.ForwardingRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := index[key]
	out := make([]domain.ForwardingRequest, 0, len(ids))
	for _, id := range ids {
		if req, ok := s.requests[id]; ok {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) UpdateForwardingRequestStatus(id string, status domain.ForwardingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return storage.ErrRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now().UTC()
	return nil
}

// ========== Users ==========

func (s *Store) CreateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return storage.ErrEmailExists
	}
	clone := *user
	s.users[user.ID] = &clone
	s.byEmail[email] = user.ID
	return nil
}

func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	clone := *s.users[id]
	return &clone, nil
}

func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return storage.ErrUserNotFound
	}
	clone := *user
	clone.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = &clone
	return nil
}

func (s *Store) UpdateUserKycStatus(userID string, status domain.KycStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	user.KycStatus = status
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateLastLogin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}

func (s *Store) ListUsers(page, pageSize int, search string) ([]domain.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(search)
	all := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		if search != "" &&
			!strings.Contains(strings.ToLower(user.Email), search) &&
			!strings.Contains(strings.ToLower(user.Username), search) {
			continue
		}
		all = append(all, *user)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.User{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// ========== Webhooks ==========

func (s *Store) CreateWebhook(webhook *domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *webhook
	s.webhooks[webhook.ID] = &clone
	return nil
}

func (s *Store) GetWebhook(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	webhook, ok := s.webhooks[id]
	if !ok {
		return nil, storage.ErrWebhookNotFound
	}
	clone := *webhook
	return &clone, nil
}

func (s *Store) ListWebhooks(userID string) ([]domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Webhook, 0)
	for _, webhook := range s.webhooks {
		if webhook.UserID == userID {
			out = append(out, *webhook)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListActiveWebhooks() ([]domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Webhook, 0)
	for _, webhook := range s.webhooks {
		if webhook.IsActive {
			out = append(out, *webhook)
		}
	}
	return out, nil
}

func (s *Store) UpdateWebhook(webhook *domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[webhook.ID]; !ok {
		return storage.ErrWebhookNotFound
	}
	clone := *webhook
	clone.UpdatedAt = time.Now().UTC()
	s.webhooks[webhook.ID] = &clone
	return nil
}

func (s *Store) DeleteWebhook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[id]; !ok {
		return storage.ErrWebhookNotFound
	}
	delete(s.webhooks, id)
	return nil
}

func (s *Store) RecordDelivery(delivery *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *delivery
	s.deliveries = append(s.deliveries, &clone)
	return nil
}

func (s *Store) GetPendingDeliveries(limit int) ([]domain.WebhookDelivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]domain.WebhookDelivery, 0)
	for _, d := range s.deliveries {
		if d.Success || d.NextRetry == nil || d.NextRetry.After(now) {
			continue
		}
		out = append(out, *d)
		d.NextRetry = nil
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ========== Lifecycle ==========

func (s *Store) Close() error {
	return nil
}

func (s *Store) Health() error {
	return nil
}
