package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/jobs"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/utils"
)

// CronController exposes the reclamation jobs to an external scheduler.
// Responses are the raw job reports, not the API envelope, because the
// scheduler dashboards consume them directly.
type CronController struct {
	uploads     jobs.UploadStore
	deadLetters jobs.DeadLetterStore
	deleter     storage.Deleter
}

// NewCronController creates a new CronController instance. The gorm-backed
// store satisfies both job interfaces in production.
func NewCronController(uploads jobs.UploadStore, deadLetters jobs.DeadLetterStore, deleter storage.Deleter) *CronController {
	return &CronController{uploads: uploads, deadLetters: deadLetters, deleter: deleter}
}

// DeleteExpired runs one sweep over uploads whose scheduled deletion time has
// passed, deleting the stored object before the metadata row.
func (c *CronController) DeleteExpired(ctx *gin.Context) {
	cfg := config.Get()

	report, err := jobs.SweepExpired(ctx.Request.Context(), c.uploads, c.deleter, jobs.SweepOptions{
		BatchSize: cfg.SweepBatchSize,
	})
	if err != nil {
		utils.Sugar.Errorw("expired upload sweep failed", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, report)
}

// RetryFailedDeletions re-attempts dead-lettered storage deletions.
func (c *CronController) RetryFailedDeletions(ctx *gin.Context) {
	cfg := config.Get()

	report, err := jobs.RetryFailedDeletions(ctx.Request.Context(), c.deadLetters, c.uploads, c.deleter, jobs.RetryOptions{
		BatchSize:  cfg.RetryBatchSize,
		MaxRetries: cfg.DeletionMaxRetries,
	})
	if err != nil {
		utils.Sugar.Errorw("failed deletion retry run failed", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	ctx.JSON(http.StatusOK, report)
}
