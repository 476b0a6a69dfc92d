package domain

import (
	"time"

	"github.com/hightide-labs/identity/pkg/idx"
)

// User is owned by the profile subsystem; the identity core reads it and only
// ever patches last_login. PasswordHash is nil for accounts that authenticate
// exclusively through OAuth2.
type User struct {
	ID             idx.ID
	Name           string
	Email          *string
	EmailVerified  bool // callers guarantee Email is set when this is true
	Enabled        bool
	Admin          bool
	PasswordHash   *string // argon2id PHC encoded
	CreatedAt      time.Time
	LastLogin      *time.Time
	LastNameChange *time.Time
}

// HasPassword reports whether password login is available for the user.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
