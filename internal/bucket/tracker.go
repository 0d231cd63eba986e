package bucket

import (
	"context"
	"log/slog"
	"math"

	"gitvault/internal/metrics"
	"gitvault/internal/provider"

	"github.com/google/uuid"
)

// Reconciliation thresholds. The interactive single-bucket sync is more
// sensitive; the bulk validation pass tolerates more drift to avoid
// needless writes.
const (
	SyncThresholdMB     = 1.0
	ValidateThresholdMB = 10.0
)

type trackerStore interface {
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]Bucket, error)
	UpdateUsedSize(ctx context.Context, bucketID uuid.UUID, usedMB float64) error
}

type usageSource interface {
	GetAggregateAssetSize(ctx context.Context, repoName string) (provider.Usage, error)
}

// Tracker owns the cached used-capacity counter of each bucket and its
// reconciliation against the provider-reported ground truth.
type Tracker struct {
	store trackerStore
	usage usageSource
	log   *slog.Logger
}

// NewTracker constructs a capacity tracker.
func NewTracker(store trackerStore, usage usageSource, log *slog.Logger) *Tracker {
	return &Tracker{store: store, usage: usage, log: log}
}

// GetAvailableBucket scans the user's active buckets in creation order
// and returns the first with room for requiredMB. Filling older buckets
// first keeps the bucket count bounded while leaving headroom in newer
// ones for rotation. The second return is false when none qualifies.
func (t *Tracker) GetAvailableBucket(ctx context.Context, ownerID uuid.UUID, requiredMB float64) (Bucket, bool, error) {
	buckets, err := t.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return Bucket{}, false, err
	}

	for _, b := range buckets {
		if b.UsedMB+requiredMB <= b.MaxMB {
			return b, true, nil
		}
	}
	return Bucket{}, false, nil
}

// UpdateSize unconditionally overwrites the cached counter. Callers are
// responsible for computing the new value as max(0, old+delta); the
// tracker itself never clamps.
func (t *Tracker) UpdateSize(ctx context.Context, bucketID uuid.UUID, usedMB float64) error {
	return t.store.UpdateUsedSize(ctx, bucketID, usedMB)
}

// Reconcile fetches the true aggregate asset size for the bucket and
// overwrites the cache when the drift exceeds thresholdMB.
func (t *Tracker) Reconcile(ctx context.Context, b Bucket, thresholdMB float64) (SyncReport, error) {
	usage, err := t.usage.GetAggregateAssetSize(ctx, b.Name)
	if err != nil {
		return SyncReport{}, err
	}

	actualMB := float64(usage.TotalBytes) / (1 << 20)
	report := SyncReport{
		BucketID:   b.ID,
		Name:       b.Name,
		CachedMB:   b.UsedMB,
		ActualMB:   actualMB,
		DeltaMB:    b.UsedMB - actualMB,
		AssetCount: usage.AssetCount,
	}

	if math.Abs(report.DeltaMB) <= thresholdMB {
		return report, nil
	}

	if err := t.store.UpdateUsedSize(ctx, b.ID, actualMB); err != nil {
		return SyncReport{}, err
	}
	report.Updated = true
	metrics.ReconcileAdjustments.Inc()

	t.log.Info("bucket size reconciled",
		"bucket", b.Name, "cached_mb", report.CachedMB, "actual_mb", actualMB, "delta_mb", report.DeltaMB)
	return report, nil
}

// ValidateAll reconciles every active bucket of the user with the bulk
// threshold. A provider failure for one bucket is recorded and does not
// abort the pass.
func (t *Tracker) ValidateAll(ctx context.Context, ownerID uuid.UUID) (ValidationReport, error) {
	buckets, err := t.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return ValidationReport{}, err
	}

	report := ValidationReport{Reports: make([]SyncReport, 0, len(buckets))}
	for _, b := range buckets {
		report.Checked++
		sync, err := t.Reconcile(ctx, b, ValidateThresholdMB)
		if err != nil {
			t.log.Warn("bucket validation failed", "bucket", b.Name, "error", err)
			report.Failures = append(report.Failures, BucketFailure{
				BucketID: b.ID,
				Name:     b.Name,
				Reason:   err.Error(),
			})
			continue
		}
		if sync.Updated {
			report.Updated++
		}
		report.Reports = append(report.Reports, sync)
	}
	return report, nil
}
