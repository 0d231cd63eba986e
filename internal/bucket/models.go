package bucket

import (
	"time"

	"github.com/google/uuid"
)

// Bucket is a provider-hosted repository used as a storage unit. UsedMB
// is a cached counter; the provider-side aggregate asset size is the
// source of truth and the cache is re-synced by reconciliation.
type Bucket struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Name       string    `json:"name"`
	ProviderID int64     `json:"provider_id"`
	UsedMB     float64   `json:"used_mb"`
	MaxMB      float64   `json:"max_mb"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SyncReport describes one reconciliation of a bucket's cached counter
// against the provider-reported size.
type SyncReport struct {
	BucketID   uuid.UUID `json:"bucket_id"`
	Name       string    `json:"name"`
	CachedMB   float64   `json:"cached_mb"`
	ActualMB   float64   `json:"actual_mb"`
	DeltaMB    float64   `json:"delta_mb"`
	AssetCount int       `json:"asset_count"`
	Updated    bool      `json:"updated"`
}

// ValidationReport aggregates a bulk reconciliation pass over all of a
// user's active buckets.
type ValidationReport struct {
	Checked  int             `json:"checked"`
	Updated  int             `json:"updated"`
	Reports  []SyncReport    `json:"reports"`
	Failures []BucketFailure `json:"failures,omitempty"`
}

// BucketFailure records a bucket whose reconciliation could not complete.
type BucketFailure struct {
	BucketID uuid.UUID `json:"bucket_id"`
	Name     string    `json:"name"`
	Reason   string    `json:"reason"`
}
