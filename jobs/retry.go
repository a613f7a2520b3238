package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/imglink/imglink/models"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/utils"
)

// DeadLetterStore is the metadata-store surface the retry job needs.
type DeadLetterStore interface {
	// PendingDeletions returns pending entries with retry_count below
	// maxRetries, oldest first, bounded by limit.
	PendingDeletions(ctx context.Context, maxRetries, limit int) ([]models.FailedDeletion, error)
	// UpdateFailedDeletion persists a mutated entry.
	UpdateFailedDeletion(ctx context.Context, fd *models.FailedDeletion) error
}

// RetryOptions tune one retry run.
type RetryOptions struct {
	BatchSize  int
	MaxRetries int
	Policy     storage.RetryPolicy
	Now        func() time.Time
}

func (o *RetryOptions) fill() {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Policy.MaxAttempts == 0 {
		o.Policy = storage.DeadLetterRetryPolicy
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// RetryReport is the retry run's response payload.
type RetryReport struct {
	Resolved          int    `json:"resolved"`
	StillFailed       int    `json:"stillFailed"`
	PermanentlyFailed int    `json:"permanentlyFailed"`
	Message           string `json:"message"`
	Duration          string `json:"duration"`
}

// RetryFailedDeletions re-attempts dead-lettered deletions on a tighter retry
// budget. Entries that exhaust the maximum retry count transition permanently
// to failed and are excluded from future runs.
func RetryFailedDeletions(ctx context.Context, deadLetters DeadLetterStore, uploads UploadStore, deleter storage.Deleter, opts RetryOptions) (*RetryReport, error) {
	opts.fill()
	start := opts.Now()

	entries, err := deadLetters.PendingDeletions(ctx, opts.MaxRetries, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("query failed deletions: %w", err)
	}

	report := &RetryReport{}
	if len(entries) == 0 {
		report.Message = "No failed deletions to retry"
		report.Duration = durationSince(start, opts.Now)
		return report, nil
	}

	for i := range entries {
		retryOne(ctx, deadLetters, uploads, deleter, opts, &entries[i], report)
	}

	report.Message = fmt.Sprintf("Processed %d failed deletions", len(entries))
	report.Duration = durationSince(start, opts.Now)

	utils.Sugar.Infow("dead-letter retry complete",
		"resolved", report.Resolved, "still_failed", report.StillFailed,
		"permanently_failed", report.PermanentlyFailed, "duration", report.Duration)
	return report, nil
}

func retryOne(ctx context.Context, deadLetters DeadLetterStore, uploads UploadStore, deleter storage.Deleter, opts RetryOptions, entry *models.FailedDeletion, report *RetryReport) {
	defer func() {
		if r := recover(); r != nil {
			utils.Sugar.Errorw("dead-letter retry panicked", "id", entry.ID, "panic", r)
			entry.RetryCount++
			entry.Status = models.DeletionPending
			if err := deadLetters.UpdateFailedDeletion(ctx, entry); err != nil {
				utils.Sugar.Errorw("failed to reset panicked entry", "id", entry.ID, "error", err)
			}
			report.StillFailed++
		}
	}()

	// Visible in-flight state for observers and overlapping runs.
	now := opts.Now()
	entry.Status = models.DeletionRetrying
	entry.LastRetryAt = &now
	if err := deadLetters.UpdateFailedDeletion(ctx, entry); err != nil {
		utils.Sugar.Errorw("failed to mark entry retrying", "id", entry.ID, "error", err)
	}

	result := storage.DeleteWithRetry(ctx, deleter, entry.StorageKey, opts.Policy)
	if result.Success {
		// Storage is clean; remove the dangling upload row if one still exists.
		// Absence is not an error.
		if entry.UploadID != nil {
			if err := uploads.DeleteUpload(ctx, *entry.UploadID); err != nil {
				utils.Sugar.Warnw("resolved deletion but upload row cleanup failed",
					"upload_id", *entry.UploadID, "error", err)
			}
		}

		resolvedAt := opts.Now()
		entry.Status = models.DeletionResolved
		entry.ResolvedAt = &resolvedAt
		if err := deadLetters.UpdateFailedDeletion(ctx, entry); err != nil {
			utils.Sugar.Errorw("failed to mark entry resolved", "id", entry.ID, "error", err)
		}
		report.Resolved++
		return
	}

	entry.RetryCount++
	if entry.RetryCount >= opts.MaxRetries {
		entry.Status = models.DeletionFailed
		entry.AppendReason("Final attempt failed: %s", result.Error)
		report.PermanentlyFailed++
		utils.Sugar.Errorw("deletion permanently failed",
			"storage_key", entry.StorageKey, "retries", entry.RetryCount)
	} else {
		entry.Status = models.DeletionPending
		entry.AppendReason("Retry %d failed: %s", entry.RetryCount, result.Error)
		report.StillFailed++
	}
	if err := deadLetters.UpdateFailedDeletion(ctx, entry); err != nil {
		utils.Sugar.Errorw("failed to update entry after retry", "id", entry.ID, "error", err)
	}
}
