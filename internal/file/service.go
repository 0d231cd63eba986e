package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"gitvault/internal/apperr"
	"gitvault/internal/bucket"
	"gitvault/internal/config"
	"gitvault/internal/metrics"
	"gitvault/internal/provider"

	"github.com/google/uuid"
)

type metadataStore interface {
	Create(ctx context.Context, meta Metadata) (Metadata, error)
	Get(ctx context.Context, ownerID, fileID uuid.UUID) (Metadata, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]Metadata, error)
	Delete(ctx context.Context, ownerID, fileID uuid.UUID) (Metadata, error)
	CountsByBucket(ctx context.Context, ownerID uuid.UUID) (map[uuid.UUID]int64, error)
}

type bucketStore interface {
	Get(ctx context.Context, ownerID, bucketID uuid.UUID) (bucket.Bucket, error)
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]bucket.Bucket, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type destinationAllocator interface {
	GetAvailableBucket(ctx context.Context, ownerID uuid.UUID, fileSizeBytes int64) (bucket.Bucket, error)
	CreateBucket(ctx context.Context, ownerID uuid.UUID, seq int) (bucket.Bucket, error)
	ShouldRotate(b bucket.Bucket, additionalMB float64) bool
}

type capacityTracker interface {
	GetAvailableBucket(ctx context.Context, ownerID uuid.UUID, requiredMB float64) (bucket.Bucket, bool, error)
	UpdateSize(ctx context.Context, bucketID uuid.UUID, usedMB float64) error
	Reconcile(ctx context.Context, b bucket.Bucket, thresholdMB float64) (bucket.SyncReport, error)
	ValidateAll(ctx context.Context, ownerID uuid.UUID) (bucket.ValidationReport, error)
}

type releaseStore interface {
	CreateRelease(ctx context.Context, repoName, tag string) (provider.Release, error)
	UploadAsset(ctx context.Context, repoName string, releaseID int64, filename, contentType string, content io.Reader) (provider.Asset, error)
	DeleteAsset(ctx context.Context, repoName string, assetID int64) error
}

// UploadInput is one incoming file as handed over by the HTTP layer.
type UploadInput struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Service coordinates the multi-system side effects of uploads and
// deletes so that the remote asset, the metadata record, and the cached
// capacity counter move together.
type Service struct {
	files   metadataStore
	buckets bucketStore
	alloc   destinationAllocator
	tracker capacityTracker
	git     releaseStore
	cfg     config.StorageConfig
	allowed map[string]struct{}
	log     *slog.Logger
}

// NewService constructs the file operation coordinator.
func NewService(files metadataStore, buckets bucketStore, alloc destinationAllocator, tracker capacityTracker, git releaseStore, cfg config.StorageConfig, log *slog.Logger) *Service {
	var allowed map[string]struct{}
	if len(cfg.AllowedContentTypes) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedContentTypes))
		for _, ct := range cfg.AllowedContentTypes {
			allowed[strings.ToLower(ct)] = struct{}{}
		}
	}
	return &Service{
		files:   files,
		buckets: buckets,
		alloc:   alloc,
		tracker: tracker,
		git:     git,
		cfg:     cfg,
		allowed: allowed,
		log:     log,
	}
}

// AllocateDestination returns the bucket a file of the given size would
// land in, creating one when needed. The per-user bucket ceiling is
// enforced here, before the allocator runs.
func (s *Service) AllocateDestination(ctx context.Context, ownerID uuid.UUID, fileSizeBytes int64) (bucket.Bucket, error) {
	if _, err := s.checkBucketCeiling(ctx, ownerID, bucket.BytesToMB(fileSizeBytes)); err != nil {
		return bucket.Bucket{}, err
	}
	return s.alloc.GetAvailableBucket(ctx, ownerID, fileSizeBytes)
}

// Upload runs the full upload sequence: validate, allocate, rotate if
// the destination is near capacity, store the asset, persist metadata,
// and bump the cached counter. A persistence failure after a successful
// remote upload is surfaced without remote rollback; the orphaned asset
// is an accepted inconsistency reclaimed out of band.
func (s *Service) Upload(ctx context.Context, ownerID uuid.UUID, in UploadInput) (UploadResult, error) {
	const op = "file.Upload"

	if err := s.validate(in); err != nil {
		metrics.UploadFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return UploadResult{}, err
	}

	sizeMB := bucket.BytesToMB(in.Size)
	storageName := makeStorageName(in.Name)

	count, err := s.checkBucketCeiling(ctx, ownerID, sizeMB)
	if err != nil {
		metrics.UploadFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return UploadResult{}, err
	}

	dest, err := s.alloc.GetAvailableBucket(ctx, ownerID, in.Size)
	if err != nil {
		metrics.UploadFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return UploadResult{}, err
	}

	// Pre-emptive rotation: the file that would push the destination
	// past the soft threshold becomes the first file of a new bucket.
	if s.alloc.ShouldRotate(dest, sizeMB) && count < s.cfg.MaxBucketsPerUser {
		fresh, err := s.alloc.CreateBucket(ctx, ownerID, count+1)
		if err != nil {
			s.log.Warn("rotation failed, keeping current bucket", "bucket", dest.Name, "error", err)
		} else {
			metrics.Rotations.Inc()
			dest = fresh
		}
	}

	tag := "upload-" + uuid.NewString()
	release, err := s.git.CreateRelease(ctx, dest.Name, tag)
	if err != nil {
		metrics.UploadFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return UploadResult{}, err
	}

	asset, err := s.git.UploadAsset(ctx, dest.Name, release.ID, storageName, in.ContentType, in.Content)
	if err != nil {
		metrics.UploadFailures.WithLabelValues(string(apperr.KindOf(err))).Inc()
		return UploadResult{}, err
	}

	meta, err := s.files.Create(ctx, Metadata{
		OwnerID:      ownerID,
		BucketID:     dest.ID,
		StorageName:  storageName,
		OriginalName: in.Name,
		SizeMB:       sizeMB,
		ContentType:  in.ContentType,
		DownloadURL:  asset.DownloadURL,
		ReleaseID:    release.ID,
		AssetID:      asset.ID,
	})
	if err != nil {
		s.log.Error("metadata insert failed after remote upload, asset orphaned",
			"bucket", dest.Name, "asset_id", asset.ID, "storage_name", storageName, "error", err)
		metrics.UploadFailures.WithLabelValues(string(apperr.KindPersistence)).Inc()
		return UploadResult{}, apperr.Wrap(apperr.KindPersistence, op, "persist file metadata", err)
	}

	newUsed := max(0, dest.UsedMB+sizeMB)
	if err := s.tracker.UpdateSize(ctx, dest.ID, newUsed); err != nil {
		s.log.Error("capacity counter update failed, cache stale until reconciliation",
			"bucket", dest.Name, "error", err)
		metrics.UploadFailures.WithLabelValues(string(apperr.KindPersistence)).Inc()
		return UploadResult{}, apperr.Wrap(apperr.KindPersistence, op, "update capacity counter", err)
	}

	metrics.UploadsTotal.Inc()
	return UploadResult{
		File: meta,
		Bucket: BucketSummary{
			ID:     dest.ID,
			Name:   dest.Name,
			UsedMB: newUsed,
			MaxMB:  dest.MaxMB,
		},
	}, nil
}

// UploadBatch processes files strictly sequentially with a fixed delay
// between successful uploads, bounding load on the provider API. Each
// item's outcome is independent.
func (s *Service) UploadBatch(ctx context.Context, ownerID uuid.UUID, items []UploadInput) (UploadBatchResult, error) {
	if len(items) == 0 {
		return UploadBatchResult{}, apperr.New(apperr.KindValidation, "file.UploadBatch", "no files provided")
	}
	if len(items) > s.cfg.MaxBatchFiles {
		return UploadBatchResult{}, apperr.Wrap(apperr.KindValidation, "file.UploadBatch",
			fmt.Sprintf("batch exceeds %d files", s.cfg.MaxBatchFiles), ErrBatchTooLarge)
	}

	result := UploadBatchResult{}
	for i, in := range items {
		uploaded, err := s.Upload(ctx, ownerID, in)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{
				Name:   in.Name,
				Kind:   string(apperr.KindOf(err)),
				Reason: err.Error(),
			})
			continue
		}
		result.Successful = append(result.Successful, uploaded)

		if i < len(items)-1 && s.cfg.BatchUploadDelay > 0 {
			select {
			case <-time.After(s.cfg.BatchUploadDelay):
			case <-ctx.Done():
				return UploadBatchResult{}, apperr.Wrap(apperr.KindInternal, "file.UploadBatch", "batch cancelled", ctx.Err())
			}
		}
	}
	result.Success = len(result.Failed) == 0
	return result, nil
}

// Delete removes a file. The remote asset delete is best effort: a
// not-found from the provider counts as success and any other provider
// failure is logged and swallowed, since metadata consistency for the
// user takes priority over remote cleanup.
func (s *Service) Delete(ctx context.Context, ownerID, fileID uuid.UUID) (DeletedFile, error) {
	const op = "file.Delete"

	meta, err := s.files.Get(ctx, ownerID, fileID)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return DeletedFile{}, apperr.Wrap(apperr.KindNotFound, op, "file not found", err)
		}
		return DeletedFile{}, apperr.Wrap(apperr.KindPersistence, op, "load file metadata", err)
	}

	b, err := s.buckets.Get(ctx, ownerID, meta.BucketID)
	if err != nil {
		s.log.Warn("owning bucket missing, skipping remote cleanup", "file", fileID, "error", err)
	} else {
		if err := s.git.DeleteAsset(ctx, b.Name, meta.AssetID); err != nil {
			s.log.Warn("remote asset delete failed, proceeding with metadata cleanup",
				"bucket", b.Name, "asset_id", meta.AssetID, "error", err)
		}
	}

	if _, err := s.files.Delete(ctx, ownerID, fileID); err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return DeletedFile{}, apperr.Wrap(apperr.KindNotFound, op, "file not found", err)
		}
		return DeletedFile{}, apperr.Wrap(apperr.KindPersistence, op, "delete file metadata", err)
	}

	if b.ID != uuid.Nil {
		newUsed := max(0, b.UsedMB-meta.SizeMB)
		if err := s.tracker.UpdateSize(ctx, b.ID, newUsed); err != nil {
			s.log.Error("capacity counter decrement failed, cache stale until reconciliation",
				"bucket", b.Name, "error", err)
		}
	}

	metrics.DeletesTotal.Inc()
	return DeletedFile{
		ID:           meta.ID,
		OriginalName: meta.OriginalName,
		SizeMB:       meta.SizeMB,
		BucketID:     meta.BucketID,
	}, nil
}

// DeleteBatch removes files sequentially with independent outcomes.
func (s *Service) DeleteBatch(ctx context.Context, ownerID uuid.UUID, fileIDs []uuid.UUID) (DeleteBatchResult, error) {
	if len(fileIDs) == 0 {
		return DeleteBatchResult{}, apperr.New(apperr.KindValidation, "file.DeleteBatch", "no file ids provided")
	}
	if len(fileIDs) > s.cfg.MaxBatchFiles {
		return DeleteBatchResult{}, apperr.Wrap(apperr.KindValidation, "file.DeleteBatch",
			fmt.Sprintf("batch exceeds %d files", s.cfg.MaxBatchFiles), ErrBatchTooLarge)
	}

	result := DeleteBatchResult{}
	for _, id := range fileIDs {
		deleted, err := s.Delete(ctx, ownerID, id)
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{
				Name:   id.String(),
				Kind:   string(apperr.KindOf(err)),
				Reason: err.Error(),
			})
			continue
		}
		result.Successful = append(result.Successful, deleted)
	}
	result.Success = len(result.Failed) == 0
	return result, nil
}

// Get returns the file metadata for the owner.
func (s *Service) Get(ctx context.Context, ownerID, fileID uuid.UUID) (Metadata, error) {
	meta, err := s.files.Get(ctx, ownerID, fileID)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return Metadata{}, apperr.Wrap(apperr.KindNotFound, "file.Get", "file not found", err)
		}
		return Metadata{}, apperr.Wrap(apperr.KindPersistence, "file.Get", "load file metadata", err)
	}
	return meta, nil
}

// List returns the user's files.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]Metadata, error) {
	return s.files.List(ctx, ownerID)
}

// Stats composes per-bucket usage with totals for the user.
func (s *Service) Stats(ctx context.Context, ownerID uuid.UUID) (StorageStats, error) {
	const op = "file.Stats"

	buckets, err := s.buckets.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return StorageStats{}, apperr.Wrap(apperr.KindPersistence, op, "list buckets", err)
	}
	counts, err := s.files.CountsByBucket(ctx, ownerID)
	if err != nil {
		return StorageStats{}, apperr.Wrap(apperr.KindPersistence, op, "count files", err)
	}

	stats := StorageStats{Buckets: make([]BucketUsage, 0, len(buckets)), BucketCount: len(buckets)}
	for _, b := range buckets {
		usage := BucketUsage{
			ID:        b.ID,
			Name:      b.Name,
			UsedMB:    b.UsedMB,
			MaxMB:     b.MaxMB,
			FileCount: counts[b.ID],
		}
		if b.MaxMB > 0 {
			usage.PercentUsed = 100 * b.UsedMB / b.MaxMB
		}
		stats.Buckets = append(stats.Buckets, usage)
		stats.TotalUsedMB += b.UsedMB
		stats.TotalMaxMB += b.MaxMB
		stats.TotalFiles += usage.FileCount
	}
	return stats, nil
}

// SyncBucket reconciles one bucket interactively with the tight threshold.
func (s *Service) SyncBucket(ctx context.Context, ownerID, bucketID uuid.UUID) (bucket.SyncReport, error) {
	b, err := s.buckets.Get(ctx, ownerID, bucketID)
	if err != nil {
		if errors.Is(err, bucket.ErrBucketNotFound) {
			return bucket.SyncReport{}, apperr.Wrap(apperr.KindNotFound, "file.SyncBucket", "bucket not found", err)
		}
		return bucket.SyncReport{}, apperr.Wrap(apperr.KindPersistence, "file.SyncBucket", "load bucket", err)
	}
	return s.tracker.Reconcile(ctx, b, bucket.SyncThresholdMB)
}

// ValidateBuckets runs the bulk reconciliation pass over the user's buckets.
func (s *Service) ValidateBuckets(ctx context.Context, ownerID uuid.UUID) (bucket.ValidationReport, error) {
	return s.tracker.ValidateAll(ctx, ownerID)
}

// checkBucketCeiling rejects allocations that would require a new
// bucket once the per-user ceiling is reached. Uploads that fit an
// existing bucket still go through at the ceiling. The bucket count is
// returned for reuse by the rotation decision.
func (s *Service) checkBucketCeiling(ctx context.Context, ownerID uuid.UUID, requiredMB float64) (int, error) {
	const op = "file.checkBucketCeiling"

	count, err := s.buckets.CountByOwner(ctx, ownerID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistence, op, "count buckets", err)
	}
	if count < s.cfg.MaxBucketsPerUser {
		return count, nil
	}

	_, ok, err := s.tracker.GetAvailableBucket(ctx, ownerID, requiredMB)
	if err != nil {
		return count, apperr.Wrap(apperr.KindPersistence, op, "scan buckets", err)
	}
	if ok {
		return count, nil
	}
	return count, apperr.New(apperr.KindAllocation, op,
		fmt.Sprintf("cannot create more than %d buckets", s.cfg.MaxBucketsPerUser))
}

func (s *Service) validate(in UploadInput) error {
	const op = "file.validate"

	if in.Size <= 0 {
		return apperr.Wrap(apperr.KindValidation, op, "file is empty", ErrEmptyFile)
	}
	if bucket.BytesToMB(in.Size) > s.cfg.MaxFileSizeMB {
		return apperr.Wrap(apperr.KindValidation, op,
			fmt.Sprintf("file exceeds %.0f MB", s.cfg.MaxFileSizeMB), ErrFileTooLarge)
	}
	if s.allowed != nil {
		if _, ok := s.allowed[strings.ToLower(in.ContentType)]; !ok {
			return apperr.Wrap(apperr.KindValidation, op,
				fmt.Sprintf("content type %q not allowed", in.ContentType), ErrContentTypeNotAllowed)
		}
	}
	if sanitizeFilename(in.Name) == "" {
		return apperr.Wrap(apperr.KindValidation, op, "filename is empty after sanitization", ErrInvalidFilename)
	}
	return nil
}

// makeStorageName builds a collision-resistant storage filename from
// the sanitized base name, a nanosecond timestamp, and a random suffix,
// keeping the original extension. No uniqueness check is needed.
func makeStorageName(original string) string {
	sanitized := sanitizeFilename(original)
	ext := path.Ext(sanitized)
	base := strings.TrimSuffix(sanitized, ext)
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s_%d_%s%s", base, time.Now().UnixNano(), suffix, ext)
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.TrimSpace(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		return ""
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return strings.Trim(sb.String(), "._")
}
