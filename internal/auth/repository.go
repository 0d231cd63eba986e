package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository mirrors externally-owned users into the local store so
// that bucket and file records have a foreign key target.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a user mirror repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts or refreshes the mirrored user row.
func (r *Repository) Upsert(ctx context.Context, userID uuid.UUID, email string) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
INSERT INTO users (id, email)
VALUES ($1, $2)
ON CONFLICT (id)
DO UPDATE SET email = EXCLUDED.email, updated_at = NOW();`

	if _, err := r.pool.Exec(ctx, query, userID, email); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
