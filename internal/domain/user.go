package domain

import (
	"strings"
	"time"
)

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the stored account. ID is immutable and is the only value used as a token subject.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// IsEmailAccount reports whether a login identifier names an email address.
// Usernames never contain "@", so the two namespaces cannot overlap.
func IsEmailAccount(account string) bool {
	return strings.Contains(account, "@")
}

// ValidUsername reports whether name can be registered as a username.
func ValidUsername(name string) bool {
	return name != "" && !IsEmailAccount(name)
}
