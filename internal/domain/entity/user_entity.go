package entity

import (
	"time"
)

// User is the aggregate root for the auth domain.
// PasswordHash is a bcrypt hash; the plaintext never leaves the service layer.
//
// A user is created inactive and flips to active exactly once, through email
// verification.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	PhoneNumber  string
	IsActive     bool
	IsDisabled   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
