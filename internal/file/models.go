package file

import (
	"time"

	"github.com/google/uuid"
)

// Metadata represents a stored file. StorageName is the generated,
// collision-resistant name the asset is stored under; OriginalName is
// what the uploader provided.
type Metadata struct {
	ID           uuid.UUID `json:"id"`
	OwnerID      uuid.UUID `json:"owner_id"`
	BucketID     uuid.UUID `json:"bucket_id"`
	StorageName  string    `json:"storage_name"`
	OriginalName string    `json:"original_name"`
	SizeMB       float64   `json:"size_mb"`
	ContentType  string    `json:"content_type"`
	DownloadURL  string    `json:"download_url"`
	ReleaseID    int64     `json:"release_id"`
	AssetID      int64     `json:"asset_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BucketSummary is the destination view returned alongside an upload.
type BucketSummary struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	UsedMB float64   `json:"used_mb"`
	MaxMB  float64   `json:"max_mb"`
}

// UploadResult composes the stored metadata with its destination bucket.
type UploadResult struct {
	File   Metadata      `json:"file"`
	Bucket BucketSummary `json:"bucket"`
}

// DeletedFile summarizes a completed delete.
type DeletedFile struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	SizeMB       float64   `json:"size_mb"`
	BucketID     uuid.UUID `json:"bucket_id"`
}

// BatchFailure records one item of a batch that did not complete.
type BatchFailure struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// UploadBatchResult itemizes a batch upload. Success is true only when
// no item failed.
type UploadBatchResult struct {
	Successful []UploadResult `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
	Success    bool           `json:"success"`
}

// DeleteBatchResult itemizes a batch delete.
type DeleteBatchResult struct {
	Successful []DeletedFile  `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
	Success    bool           `json:"success"`
}

// BucketUsage is one bucket's slice of the user's storage statistics.
type BucketUsage struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	UsedMB      float64   `json:"used_mb"`
	MaxMB       float64   `json:"max_mb"`
	PercentUsed float64   `json:"percent_used"`
	FileCount   int64     `json:"file_count"`
}

// StorageStats aggregates per-bucket usage with totals.
type StorageStats struct {
	Buckets     []BucketUsage `json:"buckets"`
	TotalUsedMB float64       `json:"total_used_mb"`
	TotalMaxMB  float64       `json:"total_max_mb"`
	TotalFiles  int64         `json:"total_files"`
	BucketCount int           `json:"bucket_count"`
}
