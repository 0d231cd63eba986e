package bucket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gitvault/internal/apperr"
	"gitvault/internal/metrics"
	"gitvault/internal/provider"

	"github.com/google/uuid"
)

// Rotation is advisory: once a bucket would cross this share of its
// ceiling, new uploads are steered to a fresh bucket before the hard
// limit is reached.
const rotateThreshold = 0.9

type repoCreator interface {
	RepositoryExists(ctx context.Context, name string) (bool, error)
	CreateRepository(ctx context.Context, name, description string) (provider.Repository, error)
}

type allocatorStore interface {
	Create(ctx context.Context, b Bucket) (Bucket, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type capacitySource interface {
	GetAvailableBucket(ctx context.Context, ownerID uuid.UUID, requiredMB float64) (Bucket, bool, error)
}

// Allocator decides which bucket backs a new file, creating buckets
// lazily and applying the rotation policy.
type Allocator struct {
	tracker      capacitySource
	store        allocatorStore
	git          repoCreator
	maxBucketMB  float64
	maxNameTries int
	log          *slog.Logger
}

// NewAllocator constructs an allocator. maxNameTries bounds the
// collision retry on bucket names; values below 1 fall back to 1.
func NewAllocator(tracker capacitySource, store allocatorStore, git repoCreator, maxBucketMB float64, maxNameTries int, log *slog.Logger) *Allocator {
	if maxNameTries < 1 {
		maxNameTries = 1
	}
	return &Allocator{
		tracker:      tracker,
		store:        store,
		git:          git,
		maxBucketMB:  maxBucketMB,
		maxNameTries: maxNameTries,
		log:          log,
	}
}

// GetAvailableBucket returns a destination bucket with room for the
// file, creating one when no existing bucket qualifies. It never
// reports "no space": creation is the unconditional fallback. The
// per-user bucket ceiling is a precondition enforced by the caller.
func (a *Allocator) GetAvailableBucket(ctx context.Context, ownerID uuid.UUID, fileSizeBytes int64) (Bucket, error) {
	requiredMB := BytesToMB(fileSizeBytes)

	b, ok, err := a.tracker.GetAvailableBucket(ctx, ownerID, requiredMB)
	if err != nil {
		return Bucket{}, apperr.Wrap(apperr.KindPersistence, "allocator.GetAvailableBucket", "scan buckets", err)
	}
	if ok {
		return b, nil
	}

	count, err := a.store.CountByOwner(ctx, ownerID)
	if err != nil {
		return Bucket{}, apperr.Wrap(apperr.KindPersistence, "allocator.GetAvailableBucket", "count buckets", err)
	}
	return a.CreateBucket(ctx, ownerID, count+1)
}

// CreateBucket provisions a remote repository named after the user and
// sequence number and persists the matching record with a zeroed
// counter. On a name collision it moves to the next sequence number, so
// sequence numbers may end up sparse. Attempts are bounded; exhausting
// them is an allocation failure.
func (a *Allocator) CreateBucket(ctx context.Context, ownerID uuid.UUID, seq int) (Bucket, error) {
	const op = "allocator.CreateBucket"

	for attempt := 0; attempt < a.maxNameTries; attempt++ {
		name := BucketName(ownerID, seq+attempt)

		exists, err := a.git.RepositoryExists(ctx, name)
		if err != nil {
			return Bucket{}, err
		}
		if exists {
			a.log.Debug("bucket name taken, trying next sequence", "name", name)
			continue
		}

		repo, err := a.git.CreateRepository(ctx, name, "gitvault storage bucket")
		if err != nil {
			return Bucket{}, err
		}

		stored, err := a.store.Create(ctx, Bucket{
			OwnerID:    ownerID,
			Name:       repo.Name,
			ProviderID: repo.ID,
			UsedMB:     0,
			MaxMB:      a.maxBucketMB,
			Active:     true,
		})
		if err != nil {
			return Bucket{}, apperr.Wrap(apperr.KindPersistence, op, "persist bucket record", err)
		}

		metrics.BucketsCreated.Inc()
		a.log.Info("bucket created", "name", stored.Name, "owner", ownerID, "sequence", seq+attempt)
		return stored, nil
	}

	return Bucket{}, apperr.Wrap(apperr.KindAllocation, op,
		fmt.Sprintf("no free bucket name after %d attempts", a.maxNameTries), ErrNameExhausted)
}

// ShouldRotate reports whether adding additionalMB would push the
// bucket past the soft rotation threshold. This is consulted before
// upload, separately from the hard capacity check.
func (a *Allocator) ShouldRotate(b Bucket, additionalMB float64) bool {
	return b.UsedMB+additionalMB > rotateThreshold*b.MaxMB
}

// BytesToMB converts a byte count to megabytes.
func BytesToMB(n int64) float64 {
	return float64(n) / (1 << 20)
}

// BucketName derives the deterministic repository name for a user and
// sequence number. The short id keeps names inside provider limits
// while staying unique enough per owner namespace.
func BucketName(ownerID uuid.UUID, seq int) string {
	short := strings.SplitN(ownerID.String(), "-", 2)[0]
	return fmt.Sprintf("vault-%s-%d", short, seq)
}
