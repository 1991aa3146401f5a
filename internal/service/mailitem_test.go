package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/storage"
	"virtualaddresshub/backend/internal/storage/memory"
)

func newMailFixture(t *testing.T, storageDays int) (*MailItemService, *memory.Store, *testClock, *memoryPublisher) {
	t.Helper()
	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	events := &memoryPublisher{}
	service := NewMailItemService(store, nil, zap.NewNop(), storageDays,
		WithMailItemClock(clock.Now),
		WithMailItemEvents(events),
	)
	return service, store, clock, events
}

func seedAccount(t *testing.T, store *memory.Store, role domain.UserRole) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:       uuid.New().String(),
		Email:    uuid.New().String() + "@example.com",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, store.CreateUser(user))
	return user
}

func TestMailItemService_Intake(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps the retention window", func(t *testing.T) {
		service, store, clock, events := newMailFixture(t, 30)
		user := seedAccount(t, store, domain.RoleUser)

		item, err := service.Intake(ctx, IntakeInput{
			UserID: user.ID,
			Sender: "HM Revenue & Customs",
			Tag:    "HMRC",
		})

		require.NoError(t, err)
		require.NotNil(t, item.StorageExpiresAt)
		assert.Equal(t, clock.Now().Add(30*24*time.Hour), *item.StorageExpiresAt)
		assert.Equal(t, clock.Now(), item.ReceivedAt)
		assert.Nil(t, item.ForwardingStatus)

		require.Len(t, events.events, 1)
		assert.Equal(t, domain.EventMailReceived, events.events[0].Type)
	})

	t.Run("zero storage days disables expiry", func(t *testing.T) {
		service, store, _, _ := newMailFixture(t, 0)
		user := seedAccount(t, store, domain.RoleUser)

		item, err := service.Intake(ctx, IntakeInput{UserID: user.ID, Sender: "Bank"})
		require.NoError(t, err)
		assert.Nil(t, item.StorageExpiresAt)
	})

	t.Run("backdated intake counts from receipt", func(t *testing.T) {
		service, store, clock, _ := newMailFixture(t, 30)
		user := seedAccount(t, store, domain.RoleUser)

		receivedAt := clock.Now().Add(-10 * 24 * time.Hour)
		item, err := service.Intake(ctx, IntakeInput{
			UserID:     user.ID,
			Sender:     "Bank",
			ReceivedAt: &receivedAt,
		})
		require.NoError(t, err)
		require.NotNil(t, item.StorageExpiresAt)
		assert.Equal(t, receivedAt.Add(30*24*time.Hour), *item.StorageExpiresAt)
	})

	t.Run("unknown user", func(t *testing.T) {
		service, _, _, _ := newMailFixture(t, 30)
		_, err := service.Intake(ctx, IntakeInput{UserID: "nonexistent", Sender: "x"})
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})
}

func TestMailItemService_Get(t *testing.T) {
	ctx := context.Background()
	service, store, _, _ := newMailFixture(t, 30)
	owner := seedAccount(t, store, domain.RoleUser)
	other := seedAccount(t, store, domain.RoleUser)
	admin := seedAccount(t, store, domain.RoleAdmin)

	item, err := service.Intake(ctx, IntakeInput{UserID: owner.ID, Sender: "x"})
	require.NoError(t, err)

	t.Run("owner reads", func(t *testing.T) {
		got, err := service.Get(item.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, item.ID, got.ID)
	})

	t.Run("stranger is rejected", func(t *testing.T) {
		_, err := service.Get(item.ID, other.ID)
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("admin reads any item", func(t *testing.T) {
		_, err := service.Get(item.ID, admin.ID)
		assert.NoError(t, err)
	})
}

func TestMailItemService_ScanURL(t *testing.T) {
	ctx := context.Background()
	service, store, clock, _ := newMailFixture(t, 30)
	user := seedAccount(t, store, domain.RoleUser)

	withScan, err := service.Intake(ctx, IntakeInput{
		UserID:  user.ID,
		Sender:  "x",
		ScanURL: "https://scans.example.com/abc.pdf",
	})
	require.NoError(t, err)

	noScan, err := service.Intake(ctx, IntakeInput{UserID: user.ID, Sender: "y"})
	require.NoError(t, err)

	t.Run("returns the location", func(t *testing.T) {
		url, err := service.ScanURL(withScan.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://scans.example.com/abc.pdf", url)
	})

	t.Run("no scan recorded", func(t *testing.T) {
		_, err := service.ScanURL(noScan.ID, user.ID)
		assert.ErrorIs(t, err, ErrNoScanAvailable)
	})

	t.Run("expired items stay readable", func(t *testing.T) {
		clock.Advance(31 * 24 * time.Hour)
		url, err := service.ScanURL(withScan.ID, user.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, url)
	})
}
