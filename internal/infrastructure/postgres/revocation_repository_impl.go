package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eatright/eatright-api/internal/domain/repository"
)

// RevocationRepository is the append-only token blacklist. The unique index
// on the token column is what enforces single use: under concurrent replay,
// ON CONFLICT DO NOTHING lets exactly one insert through.
type RevocationRepository struct {
	pool *pgxpool.Pool
}

func NewRevocationRepository(pool *pgxpool.Pool) *RevocationRepository {
	return &RevocationRepository{pool: pool}
}

func (r *RevocationRepository) Record(ctx context.Context, token string) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		INSERT INTO revoked_tokens (token)
		VALUES ($1)
		ON CONFLICT (token) DO NOTHING
	`, token)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() == 1, nil
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token = $1)
	`, token).Scan(&revoked)
	if err != nil {
		return false, err
	}
	return revoked, nil
}

var _ repository.RevocationRepository = (*RevocationRepository)(nil)
