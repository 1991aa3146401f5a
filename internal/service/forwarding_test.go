package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/guard"
	"virtualaddresshub/backend/internal/storage/memory"
)

// memoryPublisher records published events for assertions.
type memoryPublisher struct {
	events []domain.Event
}

func (p *memoryPublisher) Publish(event domain.Event) {
	p.events = append(p.events, event)
}

type forwardingFixture struct {
	service *ForwardingService
	store   *memory.Store
	events  *memoryPublisher
	clock   *testClock
}

// testClock is a settable time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newForwardingFixture(t *testing.T) *forwardingFixture {
	t.Helper()
	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	events := &memoryPublisher{}
	g := guard.NewMemoryGuard(guard.DefaultConfig(), guard.WithClock(clock.Now))

	service := NewForwardingService(store, g, nil, zap.NewNop(),
		WithForwardingClock(clock.Now),
		WithEventPublisher(events),
	)
	return &forwardingFixture{service: service, store: store, events: events, clock: clock}
}

func (f *forwardingFixture) seedUser(t *testing.T, role domain.UserRole, kyc domain.KycStatus) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:        uuid.New().String(),
		Email:     uuid.New().String() + "@example.com",
		Role:      role,
		KycStatus: kyc,
		IsActive:  true,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.store.CreateUser(user))
	return user
}

func (f *forwardingFixture) seedMailItem(t *testing.T, userID, tag string, expiresAt *time.Time) *domain.MailItem {
	t.Helper()
	item := &domain.MailItem{
		ID:               uuid.New().String(),
		UserID:           userID,
		Sender:           "Example Sender",
		Tag:              tag,
		StorageExpiresAt: expiresAt,
		ReceivedAt:       f.clock.Now(),
		CreatedAt:        f.clock.Now(),
		UpdatedAt:        f.clock.Now(),
	}
	require.NoError(t, f.store.SaveMailItem(item))
	return item
}

func addressInput(mailItemID, callerID, key string) CreateRequestInput {
	return CreateRequestInput{
		MailItemID:     mailItemID,
		CallerID:       callerID,
		IdempotencyKey: key,
		RecipientName:  "Jordan Example",
		AddressLine1:   "1 Example Street",
		City:           "London",
		Postcode:       "EC1A 1AA",
		Country:        "GB",
	}
}

func TestForwardingService_CreateRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		req, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, "key-1"))

		require.NoError(t, err)
		assert.Equal(t, domain.ForwardingStatusRequested, req.Status)
		assert.Equal(t, item.ID, req.MailItemID)
		assert.Equal(t, "key-1", req.IdempotencyKey)

		stored, err := f.store.GetMailItem(item.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.ForwardingStatus)
		assert.Equal(t, domain.MailStatusRequested, *stored.ForwardingStatus)

		require.Len(t, f.events.events, 1)
		assert.Equal(t, domain.EventForwardingRequested, f.events.events[0].Type)
	})

	t.Run("rejects another user's item", func(t *testing.T) {
		f := newForwardingFixture(t)
		owner := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		other := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, owner.ID, "", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, other.ID, ""))
		assert.ErrorIs(t, err, ErrNotOwner)
	})

	t.Run("admin may forward any user's item", func(t *testing.T) {
		f := newForwardingFixture(t)
		owner := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		admin := f.seedUser(t, domain.RoleAdmin, domain.KycStatusVerified)
		item := f.seedMailItem(t, owner.ID, "", nil)

		req, err := f.service.CreateRequest(ctx, addressInput(item.ID, admin.ID, ""))
		require.NoError(t, err)

		// The request belongs to the item's owner, not the admin, so
		// the owner can see and cancel it.
		assert.Equal(t, owner.ID, req.UserID)
		listed, err := f.service.ListRequests(owner.ID)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		_, err = f.service.Cancel(ctx, req.ID, owner.ID)
		assert.NoError(t, err)
	})

	t.Run("on-behalf forwarding checks the owner's verification", func(t *testing.T) {
		f := newForwardingFixture(t)
		owner := f.seedUser(t, domain.RoleUser, domain.KycStatusPending)
		admin := f.seedUser(t, domain.RoleAdmin, domain.KycStatusVerified)
		item := f.seedMailItem(t, owner.ID, "", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, admin.ID, ""))
		assert.ErrorIs(t, err, ErrKycNotApproved)
	})

	t.Run("duplicate idempotency key", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, "key-1"))
		require.NoError(t, err)

		_, err = f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, "key-1"))
		assert.ErrorIs(t, err, ErrDuplicateRequest)
	})

	t.Run("rate limit after three requests", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)

		for i := 0; i < 3; i++ {
			item := f.seedMailItem(t, user.ID, "", nil)
			_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
			require.NoError(t, err)
		}

		item := f.seedMailItem(t, user.ID, "", nil)
		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		assert.ErrorIs(t, err, ErrRateLimited)

		// Past the window the same item is forwardable again.
		f.clock.Advance(11 * time.Minute)
		_, err = f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		assert.NoError(t, err)
	})

	t.Run("blocked without KYC approval", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusPending)
		item := f.seedMailItem(t, user.ID, "Bank Statement", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		assert.ErrorIs(t, err, ErrKycNotApproved)
	})

	t.Run("official mail bypasses KYC", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusNotStarted)
		item := f.seedMailItem(t, user.ID, "HMRC", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		assert.NoError(t, err)
	})

	t.Run("expired item blocks non-admins", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		expired := f.clock.Now().Add(-time.Hour)
		item := f.seedMailItem(t, user.ID, "", &expired)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		assert.ErrorIs(t, err, ErrStorageExpired)
	})

	t.Run("admin override is a two-step flow", func(t *testing.T) {
		f := newForwardingFixture(t)
		admin := f.seedUser(t, domain.RoleAdmin, domain.KycStatusVerified)
		expired := f.clock.Now().Add(-time.Hour)
		item := f.seedMailItem(t, admin.ID, "", &expired)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, admin.ID, ""))
		assert.ErrorIs(t, err, ErrAdminOverrideRequired)

		input := addressInput(item.ID, admin.ID, "")
		input.AdminOverride = true
		_, err = f.service.CreateRequest(ctx, input)
		assert.NoError(t, err)
	})

	t.Run("forward already in progress", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)

		_, err = f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		var transition *domain.TransitionError
		assert.True(t, errors.As(err, &transition))
	})

	t.Run("guard runs before the gates", func(t *testing.T) {
		// A KYC-blocked user repeating an idempotency key sees the
		// duplicate rejection, not the KYC one.
		f := newForwardingFixture(t)
		blocked := f.seedUser(t, domain.RoleUser, domain.KycStatusNotStarted)
		item := f.seedMailItem(t, blocked.ID, "", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, blocked.ID, "key-x"))
		assert.ErrorIs(t, err, ErrKycNotApproved)

		_, err = f.service.CreateRequest(ctx, addressInput(item.ID, blocked.ID, "key-x"))
		assert.ErrorIs(t, err, ErrDuplicateRequest)
	})
}

func TestForwardingService_AdvanceStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("full lifecycle", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		req, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)

		for _, step := range []struct {
			target string
			mail   domain.MailStatus
			req    domain.ForwardingStatus
		}{
			{"processing", domain.MailStatusProcessing, domain.ForwardingStatusInProgress},
			{"shipped", "", ""}, // forwarding synonym, must be rejected
			{"Dispatched", domain.MailStatusDispatched, domain.ForwardingStatusDispatched},
			{"delivered", domain.MailStatusDelivered, domain.ForwardingStatusDispatched},
		} {
			updated, err := f.service.AdvanceStatus(ctx, item.ID, step.target)
			if step.mail == "" {
				assert.Error(t, err, "target %q", step.target)
				continue
			}
			require.NoError(t, err, "target %q", step.target)
			assert.Equal(t, step.mail, *updated.ForwardingStatus)

			stored, err := f.store.GetForwardingRequest(req.ID)
			require.NoError(t, err)
			assert.Equal(t, step.req, stored.Status)
		}
	})

	t.Run("rejects skips and regressions", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)
		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)

		for _, target := range []string{"requested", "dispatched", "delivered"} {
			_, err := f.service.AdvanceStatus(ctx, item.ID, target)
			var transition *domain.TransitionError
			assert.True(t, errors.As(err, &transition), "target %q", target)
		}

		_, err = f.service.AdvanceStatus(ctx, item.ID, "processing")
		require.NoError(t, err)
		_, err = f.service.AdvanceStatus(ctx, item.ID, "requested")
		assert.Error(t, err)
	})

	t.Run("invalid vocabulary", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)
		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)

		_, err = f.service.AdvanceStatus(ctx, item.ID, "teleported")
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	})

	t.Run("item never forwarded", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		_, err := f.service.AdvanceStatus(ctx, item.ID, "processing")
		assert.ErrorIs(t, err, ErrNoForwardInProgress)
	})
}

func TestForwardingService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel resets the mail item", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		req, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)

		cancelled, err := f.service.Cancel(ctx, req.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ForwardingStatusCancelled, cancelled.Status)

		stored, err := f.store.GetMailItem(item.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.ForwardingStatus)

		// The item may be forwarded again.
		_, err = f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		assert.NoError(t, err)
	})

	t.Run("cancel while in progress", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		req, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)
		_, err = f.service.AdvanceStatus(ctx, item.ID, "processing")
		require.NoError(t, err)

		_, err = f.service.Cancel(ctx, req.ID, user.ID)
		assert.NoError(t, err)
	})

	t.Run("dispatched parcel cannot be recalled", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		req, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)
		_, err = f.service.AdvanceStatus(ctx, item.ID, "processing")
		require.NoError(t, err)
		_, err = f.service.AdvanceStatus(ctx, item.ID, "dispatched")
		require.NoError(t, err)

		_, err = f.service.Cancel(ctx, req.ID, user.ID)
		assert.ErrorIs(t, err, ErrRequestNotCancellable)
	})

	t.Run("only the owner or an admin may cancel", func(t *testing.T) {
		f := newForwardingFixture(t)
		owner := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		other := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		admin := f.seedUser(t, domain.RoleAdmin, domain.KycStatusVerified)
		item := f.seedMailItem(t, owner.ID, "", nil)

		req, err := f.service.CreateRequest(ctx, addressInput(item.ID, owner.ID, ""))
		require.NoError(t, err)

		_, err = f.service.Cancel(ctx, req.ID, other.ID)
		assert.ErrorIs(t, err, ErrNotOwner)

		_, err = f.service.Cancel(ctx, req.ID, admin.ID)
		assert.NoError(t, err)
	})
}

func TestForwardingService_Options(t *testing.T) {
	ctx := context.Background()

	t.Run("forwardable item", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		opts, err := f.service.Options(item.ID, user.ID)
		require.NoError(t, err)
		assert.True(t, opts.CanForward)
		assert.Empty(t, opts.BlockedReason)
	})

	t.Run("reports KYC block and exemption", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusNotStarted)
		blocked := f.seedMailItem(t, user.ID, "Invoice", nil)
		exempt := f.seedMailItem(t, user.ID, "Companies House", nil)

		opts, err := f.service.Options(blocked.ID, user.ID)
		require.NoError(t, err)
		assert.False(t, opts.CanForward)
		assert.Equal(t, "kyc_not_approved", opts.BlockedReason)
		assert.False(t, opts.KycExempt)

		opts, err = f.service.Options(exempt.ID, user.ID)
		require.NoError(t, err)
		assert.True(t, opts.CanForward)
		assert.True(t, opts.KycExempt)
	})

	t.Run("reports storage expiry", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		admin := f.seedUser(t, domain.RoleAdmin, domain.KycStatusVerified)
		expired := f.clock.Now().Add(-time.Hour)
		item := f.seedMailItem(t, user.ID, "", &expired)

		opts, err := f.service.Options(item.ID, user.ID)
		require.NoError(t, err)
		assert.True(t, opts.StorageExpired)
		assert.Equal(t, "storage_expired", opts.BlockedReason)

		opts, err = f.service.Options(item.ID, admin.ID)
		require.NoError(t, err)
		assert.True(t, opts.StorageExpired)
		assert.Equal(t, "admin_override_required", opts.BlockedReason)
	})

	t.Run("preview consumes no guard state", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		for i := 0; i < 10; i++ {
			_, err := f.service.Options(item.ID, user.ID)
			require.NoError(t, err)
		}

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		assert.NoError(t, err)
	})

	t.Run("reports forward in progress", func(t *testing.T) {
		f := newForwardingFixture(t)
		user := f.seedUser(t, domain.RoleUser, domain.KycStatusApproved)
		item := f.seedMailItem(t, user.ID, "", nil)

		_, err := f.service.CreateRequest(ctx, addressInput(item.ID, user.ID, ""))
		require.NoError(t, err)

		opts, err := f.service.Options(item.ID, user.ID)
		require.NoError(t, err)
		assert.False(t, opts.CanForward)
		assert.Equal(t, "forward_in_progress", opts.BlockedReason)
		assert.Equal(t, []domain.MailStatus{domain.MailStatusProcessing}, opts.NextStatuses)
	})
}
