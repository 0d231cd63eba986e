package bucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repositoryTimeout = 5 * time.Second

// Repository provides access to bucket persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a bucket repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a bucket record for a freshly provisioned remote repository.
func (r *Repository) Create(ctx context.Context, b Bucket) (Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}

	query := `
INSERT INTO buckets (id, owner_id, name, provider_id, used_size_mb, max_size_mb, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, owner_id, name, provider_id, used_size_mb, max_size_mb, active, created_at, updated_at;`

	row := r.pool.QueryRow(ctx, query, b.ID, b.OwnerID, b.Name, b.ProviderID, b.UsedMB, b.MaxMB, b.Active)

	var stored Bucket
	if err := scanBucket(row, &stored); err != nil {
		return Bucket{}, fmt.Errorf("create bucket: %w", err)
	}
	return stored, nil
}

// ListActiveByOwner returns the user's active buckets oldest first.
// Creation order matters: the allocator fills earlier buckets before
// creating new ones.
func (r *Repository) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
SELECT id, owner_id, name, provider_id, used_size_mb, max_size_mb, active, created_at, updated_at
FROM buckets
WHERE owner_id = $1 AND active
ORDER BY created_at ASC;`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		if err := scanBucket(rows, &b); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return buckets, nil
}

// Get fetches a single bucket ensuring ownership.
func (r *Repository) Get(ctx context.Context, ownerID, bucketID uuid.UUID) (Bucket, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	query := `
SELECT id, owner_id, name, provider_id, used_size_mb, max_size_mb, active, created_at, updated_at
FROM buckets
WHERE id = $1 AND owner_id = $2;`

	var b Bucket
	if err := scanBucket(r.pool.QueryRow(ctx, query, bucketID, ownerID), &b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bucket{}, ErrBucketNotFound
		}
		return Bucket{}, fmt.Errorf("get bucket: %w", err)
	}
	return b, nil
}

// CountByOwner returns how many buckets the user has, active or not.
// Sequence numbers for new bucket names start from this count + 1.
func (r *Repository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM buckets WHERE owner_id = $1;`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count buckets: %w", err)
	}
	return count, nil
}

// UpdateUsedSize unconditionally overwrites the cached used-size counter.
// Callers compute the new value, clamping at zero where a delta applies.
func (r *Repository) UpdateUsedSize(ctx context.Context, bucketID uuid.UUID, usedMB float64) error {
	ctx, cancel := context.WithTimeout(ctx, repositoryTimeout)
	defer cancel()

	commandTag, err := r.pool.Exec(ctx,
		`UPDATE buckets SET used_size_mb = $2, updated_at = NOW() WHERE id = $1;`, bucketID, usedMB)
	if err != nil {
		return fmt.Errorf("update used size: %w", err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrBucketNotFound
	}
	return nil
}

func scanBucket(row pgx.Row, b *Bucket) error {
	return row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&b.ProviderID,
		&b.UsedMB,
		&b.MaxMB,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
}
