package repository

import "context"

// RevocationRepository records spent bearer tokens. Record is an atomic
// insert-if-absent: for any token string, exactly one caller ever observes
// inserted=true, which is what makes single-use tokens single use under
// concurrent replay.
type RevocationRepository interface {
	// Record stores the token and reports whether this call inserted it.
	Record(ctx context.Context, token string) (inserted bool, err error)
	// IsRevoked reports whether the token was previously recorded.
	IsRevoked(ctx context.Context, token string) (bool, error)
}
