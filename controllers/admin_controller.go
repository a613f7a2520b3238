package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imglink/imglink/models"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/store"
	"github.com/imglink/imglink/utils"
)

const (
	statsCacheKey      = "cache:admin:stats"
	statsCacheTTL      = 5 * time.Minute
	bulkDeleteMaxBatch = 100
)

// adminStore is the slice of the metadata store the moderation surface uses.
// *store.Store satisfies it.
type adminStore interface {
	AdminUploads(ctx context.Context, f store.AdminUploadFilter) ([]models.Upload, int64, error)
	UploadsByIDs(ctx context.Context, ids []uint) ([]models.Upload, error)
	DeleteUpload(ctx context.Context, id uint) error
	DistinctUploaders(ctx context.Context) ([]store.Uploader, error)
	Stats(ctx context.Context) (*store.UploadStats, error)
}

// AdminController exposes the moderation surface: listing every upload,
// bulk deletion and aggregate statistics.
type AdminController struct {
	store   adminStore
	deleter storage.Deleter
}

// NewAdminController creates a new AdminController instance.
func NewAdminController(s adminStore, deleter storage.Deleter) *AdminController {
	return &AdminController{store: s, deleter: deleter}
}

// ListUploads returns uploads across all users with filtering and sorting.
func (a *AdminController) ListUploads(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter := store.AdminUploadFilter{
		Search:  strings.TrimSpace(ctx.Query("search")),
		Status:  strings.TrimSpace(ctx.Query("status")),
		SortBy:  ctx.DefaultQuery("sort_by", "created_at"),
		SortAsc: ctx.Query("order") == "asc",
		Offset:  (page - 1) * pageSize,
		Limit:   pageSize,
	}

	uploads, total, err := a.store.AdminUploads(ctx.Request.Context(), filter)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to list uploads")
		return
	}

	utils.Success(ctx, gin.H{
		"uploads":   uploads,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListUploaders returns the users who currently own uploads.
func (a *AdminController) ListUploaders(ctx *gin.Context) {
	users, err := a.store.DistinctUploaders(ctx.Request.Context())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to list users")
		return
	}
	utils.Success(ctx, gin.H{"users": users})
}

// BulkDelete removes up to 100 uploads in one call. Storage objects go first,
// deleted concurrently in bounded chunks; only uploads whose object is gone
// get their metadata row removed. Each id fails independently, so the
// response separates deletedIds from failedIds.
func (a *AdminController) BulkDelete(ctx *gin.Context) {
	var req struct {
		IDs []uint `json:"ids" binding:"required,min=1"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid request payload")
		return
	}
	if len(req.IDs) > bulkDeleteMaxBatch {
		utils.Error(ctx, http.StatusBadRequest, 40042, "cannot delete more than 100 uploads at once")
		return
	}

	uploads, err := a.store.UploadsByIDs(ctx.Request.Context(), req.IDs)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to load uploads")
		return
	}

	keys := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		keys = append(keys, upload.StorageKey)
	}
	failedKeys := make(map[string]bool)
	for _, key := range storage.DeleteMany(ctx.Request.Context(), a.deleter, keys) {
		failedKeys[key] = true
	}

	found := make(map[uint]bool, len(uploads))
	deletedIDs := make([]uint, 0, len(req.IDs))
	failedIDs := make([]uint, 0)

	for _, upload := range uploads {
		found[upload.ID] = true

		if failedKeys[upload.StorageKey] {
			utils.Sugar.Errorw("bulk delete: storage deletion failed", "id", upload.ID, "key", upload.StorageKey)
			failedIDs = append(failedIDs, upload.ID)
			continue
		}

		if err := a.store.DeleteUpload(ctx.Request.Context(), upload.ID); err != nil {
			utils.Sugar.Errorw("bulk delete: metadata row removal failed", "id", upload.ID, "error", err)
			failedIDs = append(failedIDs, upload.ID)
			continue
		}

		deletedIDs = append(deletedIDs, upload.ID)
	}

	// Unknown ids count as failures so the caller can reconcile.
	for _, id := range req.IDs {
		if !found[id] {
			failedIDs = append(failedIDs, id)
		}
	}

	utils.CacheDelete(statsCacheKey)

	utils.Success(ctx, gin.H{
		"deleted":    len(deletedIDs),
		"errors":     len(failedIDs),
		"deletedIds": deletedIDs,
		"failedIds":  failedIDs,
	})
}

// Stats returns aggregate upload statistics, cached briefly in Redis.
func (a *AdminController) Stats(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(statsCacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	stats, err := a.store.Stats(ctx.Request.Context())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to compute stats")
		return
	}

	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: stats}
	utils.CacheSetJSON(statsCacheKey, wrapper, statsCacheTTL)
	utils.Success(ctx, stats)
}
