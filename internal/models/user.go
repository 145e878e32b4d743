package models

import "time"

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type User struct {
	ID              string     `gorm:"primaryKey;size:27"`
	Name            string     `gorm:"size:120"`
	Email           string     `gorm:"size:320;uniqueIndex;not null"`
	EmailVerifiedAt *time.Time
	Image           *string
	PasswordHash    []byte
	Role            UserRole   `gorm:"size:16;not null;default:user"`
	Status          UserStatus `gorm:"size:16;not null;default:active"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Accounts []Account `gorm:"constraint:OnDelete:CASCADE"`
}

// HasPassword reports whether the user can sign in with credentials.
func (u User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}

func (u User) ImageURL() string {
	if u.Image == nil {
		return ""
	}
	return *u.Image
}

// Account links a user to an identity at an OAuth provider.
type Account struct {
	ID                string `gorm:"primaryKey;size:27"`
	UserID            string `gorm:"size:27;index;not null"`
	Provider          string `gorm:"size:32;not null;uniqueIndex:idx_accounts_provider_account"`
	ProviderAccountID string `gorm:"size:191;not null;uniqueIndex:idx_accounts_provider_account"`
	AccessToken       string
	RefreshToken      string
	TokenType         string `gorm:"size:32"`
	Scope             string
	ExpiresAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OAuthIdentity is the profile an OAuth provider returned for a sign-in.
type OAuthIdentity struct {
	Provider          string
	ProviderAccountID string
	Email             string
	EmailVerified     bool
	Name              string
	Picture           string
	AccessToken       string
	RefreshToken      string
	TokenType         string
	Scope             string
	ExpiresAt         *time.Time
}
