// Package auth handles account registration, login and password
// verification.
package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"virtualaddresshub/backend/internal/domain"
)

var (
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrEmailExists        = errors.New("email already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is inactive")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// UserRepository is the slice of the store the auth service needs.
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	UpdateLastLogin(userID string) error
}

// Service implements registration and login on top of a UserRepository.
type Service struct {
	userRepo UserRepository
}

func NewService(userRepo UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// RegisterInput carries the registration form fields.
type RegisterInput struct {
	Email    string
	Password string
	Username string
}

// LoginInput carries the login form fields.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates a new account. New accounts start with role "user"
// and KYC status "not_started"; forwarding stays blocked until KYC
// clears.
func (s *Service) Register(input RegisterInput) (*domain.User, error) {
	if !ValidateEmail(input.Email) {
		return nil, ErrInvalidEmail
	}

	if err := ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	if user, err := s.userRepo.GetUserByEmail(strings.ToLower(input.Email)); err == nil && user != nil {
		return nil, ErrEmailExists
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(input.Email),
		Username:     input.Username,
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		KycStatus:    domain.KycStatusNotStarted,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and returns the account.
func (s *Service) Login(input LoginInput) (*domain.User, error) {
	user, err := s.userRepo.GetUserByEmail(strings.ToLower(input.Email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	_ = s.userRepo.UpdateLastLogin(user.ID)
	return user, nil
}

// GetUserByID looks up an account by ID.
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.userRepo.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ChangePassword verifies the old password and stores a new hash.
func (s *Service) ChangePassword(userID, oldPassword, newPassword string) error {
	user, err := s.userRepo.GetUserByID(userID)
	if err != nil {
		return ErrUserNotFound
	}

	if !CheckPassword(oldPassword, user.PasswordHash) {
		return errors.New("invalid old password")
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = newHash
	user.UpdatedAt = time.Now()
	return s.userRepo.UpdateUser(user)
}

// ValidateEmail checks the address shape.
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword enforces the bcrypt-compatible length bounds.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return errors.New("password must be at most 72 characters")
	}
	return nil
}

// HashPassword produces a bcrypt hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
