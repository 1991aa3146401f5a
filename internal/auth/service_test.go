package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"virtualaddresshub/backend/internal/domain"
	"virtualaddresshub/backend/internal/storage/memory"
)

func TestService_Register(t *testing.T) {
	service := NewService(memory.NewStore())

	t.Run("creates an unverified user account", func(t *testing.T) {
		user, err := service.Register(RegisterInput{
			Email:    "New.User@Example.com",
			Password: "Password123!",
			Username: "newuser",
		})

		require.NoError(t, err)
		assert.Equal(t, "new.user@example.com", user.Email)
		assert.Equal(t, domain.RoleUser, user.Role)
		assert.Equal(t, domain.KycStatusNotStarted, user.KycStatus)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "Password123!", user.PasswordHash)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := service.Register(RegisterInput{
			Email:    "new.user@example.com",
			Password: "Password123!",
			Username: "again",
		})
		assert.ErrorIs(t, err, ErrEmailExists)
	})

	t.Run("rejects malformed email", func(t *testing.T) {
		for _, email := range []string{"", "plain", "no@tld", "spaces in@example.com"} {
			_, err := service.Register(RegisterInput{Email: email, Password: "Password123!"})
			assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
		}
	})

	t.Run("rejects short and oversized passwords", func(t *testing.T) {
		_, err := service.Register(RegisterInput{Email: "short@example.com", Password: "short"})
		assert.Error(t, err)

		_, err = service.Register(RegisterInput{Email: "long@example.com", Password: strings.Repeat("x", 73)})
		assert.Error(t, err)
	})
}

func TestService_Login(t *testing.T) {
	store := memory.NewStore()
	service := NewService(store)

	user, err := service.Register(RegisterInput{
		Email:    "login@example.com",
		Password: "Password123!",
		Username: "login",
	})
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		got, err := service.Login(LoginInput{Email: "Login@Example.COM", Password: "Password123!"})
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := service.Login(LoginInput{Email: "login@example.com", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := service.Login(LoginInput{Email: "nobody@example.com", Password: "Password123!"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive account", func(t *testing.T) {
		stored, err := store.GetUserByID(user.ID)
		require.NoError(t, err)
		stored.IsActive = false
		require.NoError(t, store.UpdateUser(stored))

		_, err = service.Login(LoginInput{Email: "login@example.com", Password: "Password123!"})
		assert.ErrorIs(t, err, ErrUserInactive)
	})
}

func TestService_ChangePassword(t *testing.T) {
	service := NewService(memory.NewStore())

	user, err := service.Register(RegisterInput{
		Email:    "change@example.com",
		Password: "OldPassword1!",
	})
	require.NoError(t, err)

	t.Run("requires the old password", func(t *testing.T) {
		err := service.ChangePassword(user.ID, "wrong", "NewPassword1!")
		assert.Error(t, err)
	})

	t.Run("changes and old stops working", func(t *testing.T) {
		require.NoError(t, service.ChangePassword(user.ID, "OldPassword1!", "NewPassword1!"))

		_, err := service.Login(LoginInput{Email: "change@example.com", Password: "OldPassword1!"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = service.Login(LoginInput{Email: "change@example.com", Password: "NewPassword1!"})
		assert.NoError(t, err)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Password123!")
	require.NoError(t, err)

	assert.True(t, CheckPassword("Password123!", hash))
	assert.False(t, CheckPassword("Password123", hash))

	// Hashes are salted.
	other, err := HashPassword("Password123!")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}
