package service

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/monitoring"
	"virtualaddresshub/backend/internal/pool"
	"virtualaddresshub/backend/internal/storage"
)

// WebhookService manages user-registered notification endpoints and
// delivers events to them. Deliveries run on a bounded worker pool and
// are signed with the endpoint's HMAC secret.
type WebhookService struct {
	store      storage.Store
	httpClient *http.Client
	workers    *pool.WorkerPool
	metrics    *monitoring.Metrics
	log        *zap.Logger
	maxRetries int
}

func NewWebhookService(store storage.Store, workers *pool.WorkerPool, metrics *monitoring.Metrics, log *zap.Logger, timeout time.Duration, maxRetries int) *WebhookService {
	return &WebhookService{
		store:      store,
		httpClient: &http.Client{Timeout: timeout},
		workers:    workers,
		metrics:    metrics,
		log:        log,
		maxRetries: maxRetries,
	}
}

// CreateWebhookInput registers a new endpoint.
type CreateWebhookInput struct {
	UserID string   `json:"-"`
	URL    string   `json:"url" binding:"required,url"`
	Events []string `json:"events" binding:"required,min=1"`
}

// UpdateWebhookInput patches an endpoint.
type UpdateWebhookInput struct {
	URL      string   `json:"url" binding:"omitempty,url"`
	Events   []string `json:"events" binding:"omitempty,min=1"`
	IsActive *bool    `json:"isActive"`
}

// CreateWebhook registers an endpoint. The signing secret is generated
// server-side and returned once in the response.
func (s *WebhookService) CreateWebhook(input CreateWebhookInput) (*domain.Webhook, error) {
	now := time.Now()
	webhook := &domain.Webhook{
		ID:        uuid.New().String(),
		UserID:    input.UserID,
		URL:       input.URL,
		Events:    input.Events,
		Secret:    uuid.New().String(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateWebhook(webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

// GetWebhook returns one endpoint.
func (s *WebhookService) GetWebhook(id string) (*domain.Webhook, error) {
	return s.store.GetWebhook(id)
}

// ListWebhooks returns a user's endpoints.
func (s *WebhookService) ListWebhooks(userID string) ([]domain.Webhook, error) {
	return s.store.ListWebhooks(userID)
}

// UpdateWebhook patches an endpoint.
func (s *WebhookService) UpdateWebhook(id string, input UpdateWebhookInput) (*domain.Webhook, error) {
	webhook, err := s.store.GetWebhook(id)
	if err != nil {
		return nil, err
	}

	if input.URL != "" {
		webhook.URL = input.URL
	}
	if len(input.Events) > 0 {
		webhook.Events = input.Events
	}
	if input.IsActive != nil {
		webhook.IsActive = *input.IsActive
	}
	webhook.UpdatedAt = time.Now()

	if err := s.store.UpdateWebhook(webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

// DeleteWebhook removes an endpoint.
func (s *WebhookService) DeleteWebhook(id string) error {
	return s.store.DeleteWebhook(id)
}

// Publish fans an event out to every active endpoint subscribed to its
// type. It satisfies EventPublisher and never blocks the caller beyond
// queue admission.
func (s *WebhookService) Publish(event domain.Event) {
	webhooks, err := s.store.ListActiveWebhooks()
	if err != nil {
		s.log.Warn("failed to list webhooks for event", zap.Error(err))
		return
	}

	for i := range webhooks {
		webhook := webhooks[i]
		if !webhook.Subscribed(event.Type) {
			continue
		}
		if !s.workers.TrySubmit(func() { s.deliver(&webhook, event, 1) }) {
			s.log.Warn("webhook queue full, dropping delivery",
				zap.String("webhook_id", webhook.ID),
				zap.String("event", string(event.Type)),
			)
			if s.metrics != nil {
				s.metrics.RecordWebhookDelivery("dropped")
			}
		}
	}
}

// deliver performs one signed POST and records the attempt.
func (s *WebhookService) deliver(webhook *domain.Webhook, event domain.Event, attempt int) {
	delivery := &domain.WebhookDelivery{
		ID:        uuid.New().String(),
		WebhookID: webhook.ID,
		Event:     event.Type,
		Attempts:  attempt,
		CreatedAt: time.Now(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		delivery.Error = fmt.Sprintf("failed to marshal payload: %v", err)
		s.record(delivery)
		return
	}
	delivery.Payload = string(payload)

	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		delivery.Error = fmt.Sprintf("failed to create request: %v", err)
		s.record(delivery)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sign(payload, webhook.Secret))
	req.Header.Set("X-Webhook-Event", string(event.Type))
	req.Header.Set("X-Webhook-ID", delivery.ID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		delivery.Error = fmt.Sprintf("request failed: %v", err)
		delivery.NextRetry = s.nextRetry(attempt)
		s.record(delivery)
		return
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Success = true
	} else {
		delivery.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
		delivery.NextRetry = s.nextRetry(attempt)
	}
	s.record(delivery)
}

func (s *WebhookService) record(delivery *domain.WebhookDelivery) {
	outcome := "failure"
	if delivery.Success {
		outcome = "success"
	}
	if s.metrics != nil {
		s.metrics.RecordWebhookDelivery(outcome)
	}
	if err := s.store.RecordDelivery(delivery); err != nil {
		s.log.Warn("failed to record webhook delivery", zap.Error(err))
	}
}

// nextRetry computes the exponential backoff schedule, returning nil
// once attempts are exhausted.
func (s *WebhookService) nextRetry(attempt int) *time.Time {
	if attempt >= s.maxRetries {
		return nil
	}
	backoff := time.Duration(1<<uint(attempt-1)) * time.Minute
	t := time.Now().Add(backoff)
	return &t
}

// RetryFailedDeliveries re-queues failed deliveries whose backoff has
// elapsed. Driven by a background ticker.
func (s *WebhookService) RetryFailedDeliveries() error {
	deliveries, err := s.store.GetPendingDeliveries(10)
	if err != nil {
		return err
	}

	for _, delivery := range deliveries {
		webhook, err := s.store.GetWebhook(delivery.WebhookID)
		if err != nil {
			continue
		}

		var event domain.Event
		if err := json.Unmarshal([]byte(delivery.Payload), &event); err != nil {
			continue
		}

		attempt := delivery.Attempts + 1
		wh := webhook
		s.workers.TrySubmit(func() { s.deliver(wh, event, attempt) })
	}
	return nil
}

// sign produces the HMAC-SHA256 header value for a payload.
func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
