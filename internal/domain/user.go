package domain

import "time"

// UserRole distinguishes account holders from back-office staff.
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
	RoleSuper UserRole = "super"
)

// User represents a registered account holder.
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Username     string     `json:"username,omitempty" gorm:"type:varchar(100)"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255)"`
	Role         UserRole   `json:"role" gorm:"type:varchar(20);default:'user';index"`
	KycStatus    KycStatus  `json:"kycStatus" gorm:"type:varchar(20);default:'not_started';index"`
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// IsAdmin reports whether the user holds back-office privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuper
}

// IsSuper reports whether the user is a super administrator.
func (u *User) IsSuper() bool {
	return u.Role == RoleSuper
}
