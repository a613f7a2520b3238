// Package jobs implements the expired-upload reclamation pipeline as pure
// functions from current time and store state to side effects plus a report,
// so cron, a queue consumer, or a test harness can invoke them identically.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imglink/imglink/models"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/utils"
)

// ErrUploadNotFound is returned by UploadStore lookups when the row is gone.
var ErrUploadNotFound = errors.New("upload not found")

// UploadStore is the metadata-store surface the sweep job needs.
type UploadStore interface {
	// ExpiredUploads returns active uploads whose custom deletion time is
	// strictly before now, bounded by limit.
	ExpiredUploads(ctx context.Context, now time.Time, limit int) ([]models.Upload, error)
	// GetUpload re-reads one row; returns ErrUploadNotFound when absent.
	GetUpload(ctx context.Context, id uint) (*models.Upload, error)
	// DeleteUpload removes the metadata row. Deleting an absent row is not an error.
	DeleteUpload(ctx context.Context, id uint) error
	// CreateFailedDeletion inserts a dead-letter entry.
	CreateFailedDeletion(ctx context.Context, fd *models.FailedDeletion) error
}

// SweepOptions tune one sweep run. Zero values fall back to production defaults.
type SweepOptions struct {
	BatchSize int
	Policy    storage.RetryPolicy
	Now       func() time.Time
}

func (o *SweepOptions) fill() {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Policy.MaxAttempts == 0 {
		o.Policy = storage.DefaultRetryPolicy
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// SweepReport is the sweep run's response payload.
type SweepReport struct {
	Deleted    int    `json:"deleted"`
	Errors     int    `json:"errors"`
	Tracked    int    `json:"tracked"`
	DeletedIDs []uint `json:"deletedIds"`
	FailedIDs  []uint `json:"failedIds"`
	Message    string `json:"message"`
	Duration   string `json:"duration"`
}

// SweepExpired deletes expired uploads: the backing object first, the metadata
// row only after storage confirms. Storage failures leave the row in place and
// produce a dead-letter entry; a row-delete failure after storage success is
// tracked as an orphan so only the dangling row needs manual cleanup.
// Per-record failures never abort the batch.
func SweepExpired(ctx context.Context, uploads UploadStore, deleter storage.Deleter, opts SweepOptions) (*SweepReport, error) {
	opts.fill()
	start := opts.Now()

	candidates, err := uploads.ExpiredUploads(ctx, start, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query expired uploads: %w", err)
	}

	report := &SweepReport{DeletedIDs: []uint{}, FailedIDs: []uint{}}
	if len(candidates) == 0 {
		report.Message = "No expired uploads found"
		report.Duration = durationSince(start, opts.Now)
		return report, nil
	}

	for _, candidate := range candidates {
		sweepOne(ctx, uploads, deleter, opts, candidate, report)
	}

	report.Message = fmt.Sprintf("Processed %d expired uploads", report.Deleted+report.Errors)
	report.Duration = durationSince(start, opts.Now)

	utils.Sugar.Infow("expiry sweep complete",
		"deleted", report.Deleted, "errors", report.Errors, "tracked", report.Tracked,
		"duration", report.Duration)
	return report, nil
}

// sweepOne processes a single candidate and recovers from panics so one bad
// record cannot take down the batch.
func sweepOne(ctx context.Context, uploads UploadStore, deleter storage.Deleter, opts SweepOptions, candidate models.Upload, report *SweepReport) {
	defer func() {
		if r := recover(); r != nil {
			utils.Sugar.Errorw("sweep record panicked", "upload_id", candidate.ID, "panic", r)
			report.Errors++
			report.FailedIDs = append(report.FailedIDs, candidate.ID)
		}
	}()

	// Re-check against a fresh read: another run may have processed the row,
	// or the owner may have pushed the deletion time out.
	fresh, err := uploads.GetUpload(ctx, candidate.ID)
	if errors.Is(err, ErrUploadNotFound) {
		return
	}
	if err != nil {
		report.Errors++
		report.FailedIDs = append(report.FailedIDs, candidate.ID)
		return
	}
	if !fresh.Expired(opts.Now()) {
		return
	}

	result := storage.DeleteWithRetry(ctx, deleter, fresh.StorageKey, opts.Policy)
	if !result.Success {
		// Never remove metadata before the object is confirmed gone, otherwise
		// the object becomes unreachable for any later cleanup.
		report.Errors++
		report.FailedIDs = append(report.FailedIDs, fresh.ID)
		trackFailure(ctx, uploads, report, &models.FailedDeletion{
			UploadID:   &fresh.ID,
			StorageKey: fresh.StorageKey,
			Reason:     result.Error,
			Status:     models.DeletionPending,
		})
		return
	}

	if err := uploads.DeleteUpload(ctx, fresh.ID); err != nil {
		// Orphan case: object already gone, row still present.
		report.Errors++
		report.FailedIDs = append(report.FailedIDs, fresh.ID)
		trackFailure(ctx, uploads, report, &models.FailedDeletion{
			UploadID:   &fresh.ID,
			StorageKey: fresh.StorageKey,
			Reason:     fmt.Sprintf("object already deleted from storage; metadata row removal failed: %v", err),
			Status:     models.DeletionPending,
		})
		return
	}

	report.Deleted++
	report.DeletedIDs = append(report.DeletedIDs, fresh.ID)
}

func trackFailure(ctx context.Context, uploads UploadStore, report *SweepReport, fd *models.FailedDeletion) {
	if err := uploads.CreateFailedDeletion(ctx, fd); err != nil {
		utils.Sugar.Errorw("failed to track dead-letter entry", "storage_key", fd.StorageKey, "error", err)
		return
	}
	report.Tracked++
}

func durationSince(start time.Time, now func() time.Time) string {
	return fmt.Sprintf("%dms", now().Sub(start).Milliseconds())
}
