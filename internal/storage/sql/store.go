// Package sql implements Store on MySQL or PostgreSQL through GORM.
package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/storage"
)

// Store is the SQL-backed implementation of storage.Store.
type Store struct {
	db     *sql.DB
	gormDB *gorm.DB
}

// NewStore opens a connection pool for the given driver ("mysql" or
// "postgres"), runs the schema migration and returns the store.
func NewStore(driverName, dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{db: db, gormDB: gormDB}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Migrate runs the schema migration against an existing GORM handle.
// Used by cmd/migrate.
func Migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&domain.User{},
		&domain.MailItem{},
		&domain.ForwardingRequest{},
		&domain.Webhook{},
		&domain.WebhookDelivery{},
	)
}

func (s *Store) migrate() error {
	return Migrate(s.gormDB)
}

// ========== Mail items ==========

func (s *Store) SaveMailItem(item *domain.MailItem) error {
	return s.gormDB.Save(item).Error
}

func (s *Store) GetMailItem(id string) (*domain.MailItem, error) {
	var item domain.MailItem
	if err := s.gormDB.First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListMailItemsByUserID(userID string) ([]domain.MailItem, error) {
	var items []domain.MailItem
	err := s.gormDB.
		Where("user_id = ?", userID).
		Order("received_at DESC").
		Find(&items).Error
	return items, err
}

func (s *Store) ListMailItems(page, pageSize int) ([]domain.MailItem, int, error) {
	var total int64
	if err := s.gormDB.Model(&domain.MailItem{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []domain.MailItem
	err := s.gormDB.
		Order("received_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	return items, int(total), err
}

func (s *Store) UpdateMailItemStatus(id string, status domain.MailStatus) error {
	res := s.gormDB.Model(&domain.MailItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"forwarding_status": status,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMailItemNotFound
	}
	return nil
}

func (s *Store) UpdateMailItemExpiry(id string, expiresAt *time.Time) error {
	res := s.gormDB.Model(&domain.MailItem{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"storage_expires_at": expiresAt,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrMailItemNotFound
	}
	return nil
}

func (s *Store) CountExpiredMailItems(now time.Time) (int, error) {
	var count int64
	err := s.gormDB.Model(&domain.MailItem{}).
		Where("storage_expires_at IS NOT NULL AND storage_expires_at < ?", now).
		Count(&count).Error
	return int(count), err
}

// ========== Forwarding requests ==========

func (s *Store) SaveForwardingRequest(req *domain.ForwardingRequest) error {
	return s.gormDB.Save(req).Error
}

func (s *Store) GetForwardingRequest(id string) (*domain.ForwardingRequest, error) {
	var req domain.ForwardingRequest
	if err := s.gormDB.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (s *Store) ListForwardingRequestsByUserID(userID string) ([]domain.ForwardingRequest, error) {
	var requests []domain.ForwardingRequest
	err := s.gormDB.
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (s *Store) ListForwardingRequestsByMailItem(mailItemID string) ([]domain.ForwardingRequest, error) {
	var requests []domain.ForwardingRequest
	err := s.gormDB.
		Where("mail_item_id = ?", mailItemID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (s *Store) UpdateForwardingRequestStatus(id string, status domain.ForwardingStatus) error {
	res := s.gormDB.Model(&domain.ForwardingRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrRequestNotFound
	}
	return nil
}

// ========== Users ==========

func (s *Store) CreateUser(user *domain.User) error {
	err := s.gormDB.Create(user).Error
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate") {
		return storage.ErrEmailExists
	}
	return err
}

func (s *Store) GetUserByID(id string) (*domain.User, error) {
	var user domain.User
	if err := s.gormDB.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := s.gormDB.First(&user, "email = ?", strings.ToLower(email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUser(user *domain.User) error {
	return s.gormDB.Save(user).Error
}

func (s *Store) UpdateUserKycStatus(userID string, status domain.KycStatus) error {
	res := s.gormDB.Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"kyc_status": status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

func (s *Store) UpdateLastLogin(userID string) error {
	return s.gormDB.Model(&domain.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now().UTC()).Error
}

func (s *Store) ListUsers(page, pageSize int, search string) ([]domain.User, int, error) {
	query := s.gormDB.Model(&domain.User{})
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(username) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []domain.User
	err := query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	return users, int(total), err
}

// ========== Webhooks ==========

func (s *Store) CreateWebhook(webhook *domain.Webhook) error {
	return s.gormDB.Create(webhook).Error
}

func (s *Store) GetWebhook(id string) (*domain.Webhook, error) {
	var webhook domain.Webhook
	if err := s.gormDB.First(&webhook, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrWebhookNotFound
		}
		return nil, err
	}
	return &webhook, nil
}

func (s *Store) ListWebhooks(userID string) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	err := s.gormDB.
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&webhooks).Error
	return webhooks, err
}

func (s *Store) ListActiveWebhooks() ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	err := s.gormDB.Where("is_active = ?", true).Find(&webhooks).Error
	return webhooks, err
}

func (s *Store) UpdateWebhook(webhook *domain.Webhook) error {
	return s.gormDB.Save(webhook).Error
}

func (s *Store) DeleteWebhook(id string) error {
	res := s.gormDB.Delete(&domain.Webhook{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrWebhookNotFound
	}
	return nil
}

func (s *Store) RecordDelivery(delivery *domain.WebhookDelivery) error {
	return s.gormDB.Create(delivery).Error
}

func (s *Store) GetPendingDeliveries(limit int) ([]domain.WebhookDelivery, error) {
	var deliveries []domain.WebhookDelivery
	err := s.gormDB.
		Where("success = ? AND next_retry IS NOT NULL AND next_retry <= ?", false, time.Now().UTC()).
		Limit(limit).
		Find(&deliveries).Error
	if err != nil || len(deliveries) == 0 {
		return deliveries, err
	}

	ids := make([]string, len(deliveries))
	for i := range deliveries {
		ids[i] = deliveries[i].ID
	}
	err = s.gormDB.Model(&domain.WebhookDelivery{}).
		Where("id IN ?", ids).
		Update("next_retry", nil).Error
	return deliveries, err
}

// ========== Lifecycle ==========

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}
