package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoTimeout = 5 * time.Second

// Repository provides access to file metadata storage.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a new file repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fileColumns = `id, owner_id, bucket_id, storage_name, original_name, size_mb, content_type, download_url, release_id, asset_id, created_at, updated_at`

// Create inserts metadata for a new file.
func (r *Repository) Create(ctx context.Context, meta Metadata) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}

	query := `
INSERT INTO files (id, owner_id, bucket_id, storage_name, original_name, size_mb, content_type, download_url, release_id, asset_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + fileColumns + `;`

	row := r.pool.QueryRow(ctx, query,
		meta.ID,
		meta.OwnerID,
		meta.BucketID,
		meta.StorageName,
		meta.OriginalName,
		meta.SizeMB,
		meta.ContentType,
		meta.DownloadURL,
		meta.ReleaseID,
		meta.AssetID,
	)

	var stored Metadata
	if err := scanFile(row, &stored); err != nil {
		return Metadata{}, fmt.Errorf("create file metadata: %w", err)
	}
	return stored, nil
}

// Get fetches metadata for a single file ensuring ownership.
func (r *Repository) Get(ctx context.Context, ownerID, fileID uuid.UUID) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND owner_id = $2;`

	var meta Metadata
	if err := scanFile(r.pool.QueryRow(ctx, query, fileID, ownerID), &meta); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Metadata{}, ErrFileNotFound
		}
		return Metadata{}, fmt.Errorf("get file metadata: %w", err)
	}
	return meta, nil
}

// List returns the user's files newest first.
func (r *Repository) List(ctx context.Context, ownerID uuid.UUID) ([]Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 ORDER BY created_at DESC;`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []Metadata
	for rows.Next() {
		var meta Metadata
		if err := scanFile(rows, &meta); err != nil {
			return nil, fmt.Errorf("scan file metadata: %w", err)
		}
		files = append(files, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return files, nil
}

// Delete removes metadata and returns the deleted record.
func (r *Repository) Delete(ctx context.Context, ownerID, fileID uuid.UUID) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `DELETE FROM files WHERE id = $1 AND owner_id = $2 RETURNING ` + fileColumns + `;`

	var meta Metadata
	if err := scanFile(r.pool.QueryRow(ctx, query, fileID, ownerID), &meta); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Metadata{}, ErrFileNotFound
		}
		return Metadata{}, fmt.Errorf("delete file metadata: %w", err)
	}
	return meta, nil
}

// CountsByBucket returns per-bucket file counts for the user's storage
// statistics.
func (r *Repository) CountsByBucket(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT bucket_id, COUNT(*) FROM files WHERE owner_id = $1 GROUP BY bucket_id;`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count files by bucket: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var bucketID uuid.UUID
		var count int64
		if err := rows.Scan(&bucketID, &count); err != nil {
			return nil, fmt.Errorf("scan file count: %w", err)
		}
		counts[bucketID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file counts: %w", err)
	}
	return counts, nil
}

func scanFile(row pgx.Row, meta *Metadata) error {
	return row.Scan(
		&meta.ID,
		&meta.OwnerID,
		&meta.BucketID,
		&meta.StorageName,
		&meta.OriginalName,
		&meta.SizeMB,
		&meta.ContentType,
		&meta.DownloadURL,
		&meta.ReleaseID,
		&meta.AssetID,
		&meta.CreatedAt,
		&meta.UpdatedAt,
	)
}
