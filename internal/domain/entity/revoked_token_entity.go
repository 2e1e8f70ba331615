package entity

import "time"

// RevokedToken is a bearer token string that must no longer be honored,
// regardless of its cryptographic validity. Rows are append-only.
type RevokedToken struct {
	ID        string
	Token     string
	CreatedAt time.Time
}
