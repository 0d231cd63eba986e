package bucket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gitvault/internal/provider"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mb(n float64) int64 {
	return int64(n * (1 << 20))
}

func TestGetAvailableBucketPrefersOldest(t *testing.T) {
	ownerID := uuid.New()
	older := Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "vault-a-1", UsedMB: 100, MaxMB: 800, CreatedAt: time.Now().Add(-time.Hour)}
	newer := Bucket{ID: uuid.New(), OwnerID: ownerID, Name: "vault-a-2", UsedMB: 0, MaxMB: 800, CreatedAt: time.Now()}

	store := &fakeTrackerStore{buckets: []Bucket{older, newer}}
	tracker := NewTracker(store, &fakeUsageSource{}, testLogger())

	got, ok, err := tracker.GetAvailableBucket(context.Background(), ownerID, 50)
	if err != nil {
		t.Fatalf("GetAvailableBucket returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a qualifying bucket")
	}
	if got.ID != older.ID {
		t.Fatalf("expected oldest bucket %s, got %s", older.Name, got.Name)
	}
}

func TestGetAvailableBucketSkipsFullBuckets(t *testing.T) {
	ownerID := uuid.New()
	full := Bucket{ID: uuid.New(), Name: "vault-a-1", UsedMB: 780, MaxMB: 800}
	open := Bucket{ID: uuid.New(), Name: "vault-a-2", UsedMB: 10, MaxMB: 800}

	store := &fakeTrackerStore{buckets: []Bucket{full, open}}
	tracker := NewTracker(store, &fakeUsageSource{}, testLogger())

	got, ok, err := tracker.GetAvailableBucket(context.Background(), ownerID, 50)
	if err != nil || !ok {
		t.Fatalf("expected qualifying bucket, ok=%v err=%v", ok, err)
	}
	if got.ID != open.ID {
		t.Fatalf("expected bucket with room, got %s", got.Name)
	}
}

func TestGetAvailableBucketNoneQualify(t *testing.T) {
	store := &fakeTrackerStore{buckets: []Bucket{{ID: uuid.New(), UsedMB: 799, MaxMB: 800}}}
	tracker := NewTracker(store, &fakeUsageSource{}, testLogger())

	_, ok, err := tracker.GetAvailableBucket(context.Background(), uuid.New(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no qualifying bucket")
	}
}

func TestReconcileOverwritesBeyondThreshold(t *testing.T) {
	b := Bucket{ID: uuid.New(), Name: "vault-a-1", UsedMB: 100, MaxMB: 800}
	store := &fakeTrackerStore{buckets: []Bucket{b}}
	usage := &fakeUsageSource{usages: map[string]provider.Usage{
		"vault-a-1": {AssetCount: 3, TotalBytes: mb(85)},
	}}
	tracker := NewTracker(store, usage, testLogger())

	for _, threshold := range []float64{SyncThresholdMB, ValidateThresholdMB} {
		store.updates = nil
		report, err := tracker.Reconcile(context.Background(), b, threshold)
		if err != nil {
			t.Fatalf("Reconcile(threshold=%v) returned error: %v", threshold, err)
		}
		if !report.Updated {
			t.Fatalf("expected update at threshold %v", threshold)
		}
		if report.DeltaMB != 15 {
			t.Fatalf("expected delta 15, got %v", report.DeltaMB)
		}
		if len(store.updates) != 1 || store.updates[0].usedMB != 85 {
			t.Fatalf("expected cached value overwritten to 85, got %+v", store.updates)
		}
	}
}

func TestReconcileSkipsWithinThreshold(t *testing.T) {
	b := Bucket{ID: uuid.New(), Name: "vault-a-1", UsedMB: 100, MaxMB: 800}
	store := &fakeTrackerStore{buckets: []Bucket{b}}
	usage := &fakeUsageSource{usages: map[string]provider.Usage{
		"vault-a-1": {AssetCount: 3, TotalBytes: mb(100.5)},
	}}
	tracker := NewTracker(store, usage, testLogger())

	report, err := tracker.Reconcile(context.Background(), b, SyncThresholdMB)
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if report.Updated {
		t.Fatalf("expected no update for sub-threshold drift")
	}
	if len(store.updates) != 0 {
		t.Fatalf("expected no store writes, got %+v", store.updates)
	}
}

func TestValidateAllContinuesPastFailure(t *testing.T) {
	ownerID := uuid.New()
	broken := Bucket{ID: uuid.New(), Name: "vault-a-1", UsedMB: 100, MaxMB: 800}
	drifted := Bucket{ID: uuid.New(), Name: "vault-a-2", UsedMB: 200, MaxMB: 800}

	store := &fakeTrackerStore{buckets: []Bucket{broken, drifted}}
	usage := &fakeUsageSource{
		usages: map[string]provider.Usage{"vault-a-2": {AssetCount: 1, TotalBytes: mb(150)}},
		errs:   map[string]error{"vault-a-1": errors.New("provider unavailable")},
	}
	tracker := NewTracker(store, usage, testLogger())

	report, err := tracker.ValidateAll(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("ValidateAll returned error: %v", err)
	}
	if report.Checked != 2 {
		t.Fatalf("expected 2 checked, got %d", report.Checked)
	}
	if len(report.Failures) != 1 || report.Failures[0].Name != "vault-a-1" {
		t.Fatalf("expected one failure for vault-a-1, got %+v", report.Failures)
	}
	if report.Updated != 1 {
		t.Fatalf("expected 1 updated, got %d", report.Updated)
	}
}

// --- fakes ---

type sizeUpdate struct {
	bucketID uuid.UUID
	usedMB   float64
}

type fakeTrackerStore struct {
	buckets []Bucket
	updates []sizeUpdate
	listErr error
}

func (f *fakeTrackerStore) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]Bucket, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.buckets, nil
}

func (f *fakeTrackerStore) UpdateUsedSize(ctx context.Context, bucketID uuid.UUID, usedMB float64) error {
	f.updates = append(f.updates, sizeUpdate{bucketID: bucketID, usedMB: usedMB})
	return nil
}

type fakeUsageSource struct {
	usages map[string]provider.Usage
	errs   map[string]error
}

func (f *fakeUsageSource) GetAggregateAssetSize(ctx context.Context, repoName string) (provider.Usage, error) {
	if err, ok := f.errs[repoName]; ok {
		return provider.Usage{}, err
	}
	return f.usages[repoName], nil
}
