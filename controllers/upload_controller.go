package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/jobs"
	"github.com/imglink/imglink/middleware"
	"github.com/imglink/imglink/models"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/store"
	"github.com/imglink/imglink/utils"
)

// allowedImageTypes is the upload content-type allow list.
var allowedImageTypes = map[string]bool{
	"image/png":     true,
	"image/jpeg":    true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

// UploadController handles image uploads and owner-facing upload management.
type UploadController struct {
	store   *store.Store
	objects storage.Store
}

// NewUploadController creates a new UploadController instance.
func NewUploadController(s *store.Store, objects storage.Store) *UploadController {
	return &UploadController{store: s, objects: objects}
}

// Upload accepts a multipart image, stores the object, records the metadata
// row and returns the public URL. Anonymous callers are bounded by a
// per-session quota; signed-in users are not.
func (u *UploadController) Upload(ctx *gin.Context) {
	cfg := config.Get()

	userID, authenticated := middleware.UserID(ctx)
	sessionID := utils.GetOrCreateSessionID(ctx)

	if !authenticated {
		status := utils.CheckAnonymousUploadLimit(sessionID, cfg.AnonymousUploadLimit)
		if !status.Allowed {
			utils.Error(ctx, http.StatusTooManyRequests, 42910, "anonymous upload limit reached, sign in to continue")
			return
		}
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "no file provided")
		return
	}

	maxBytes := int64(cfg.UploadMaxSizeMB) << 20
	if fileHeader.Size > maxBytes {
		utils.Error(ctx, http.StatusBadRequest, 40031, fmt.Sprintf("file exceeds the %dMB limit", cfg.UploadMaxSizeMB))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		utils.Error(ctx, http.StatusBadRequest, 40032, "unsupported file type, only images are accepted")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to read uploaded file")
		return
	}
	defer src.Close()

	key := storage.NewStorageKey(cfg.S3KeyPrefix, fileHeader.Filename)
	if err := u.objects.PutObject(ctx.Request.Context(), key, contentType, src, fileHeader.Size); err != nil {
		utils.Sugar.Errorw("object upload failed", "key", key, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to store file")
		return
	}

	now := time.Now()
	upload := models.Upload{
		FileName:   fileHeader.Filename,
		FileSize:   fileHeader.Size,
		FileType:   contentType,
		StorageKey: key,
		PublicURL:  publicURL(cfg, key),
		Status:     models.UploadStatusActive,
		ExpiresAt:  now.AddDate(0, 0, cfg.UploadExpiryDays),
	}
	if authenticated {
		upload.UserID = &userID
	}

	if err := u.store.CreateUpload(ctx.Request.Context(), &upload); err != nil {
		// Roll the object back so storage does not accumulate unreferenced files.
		u.objects.DeleteObject(ctx.Request.Context(), key)
		utils.Sugar.Errorw("upload row insert failed", "key", key, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to record upload")
		return
	}

	if !authenticated {
		utils.IncrementAnonymousUploadCount(sessionID)
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success":    true,
		"url":        upload.PublicURL,
		"fileName":   upload.FileName,
		"fileSize":   upload.FileSize,
		"uploadedAt": upload.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// CheckLimit reports the caller's remaining anonymous upload quota.
// Signed-in users are always allowed.
func (u *UploadController) CheckLimit(ctx *gin.Context) {
	cfg := config.Get()

	if _, authenticated := middleware.UserID(ctx); authenticated {
		utils.Success(ctx, utils.UploadLimitStatus{Allowed: true, Remaining: -1, Limit: -1})
		return
	}

	sessionID := utils.GetOrCreateSessionID(ctx)
	utils.Success(ctx, utils.CheckAnonymousUploadLimit(sessionID, cfg.AnonymousUploadLimit))
}

// ListMine returns the authenticated user's uploads, newest first.
func (u *UploadController) ListMine(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	uploads, total, err := u.store.UploadsByOwner(ctx.Request.Context(), userID, (page-1)*pageSize, pageSize)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to list uploads")
		return
	}

	utils.Success(ctx, gin.H{
		"uploads":   uploads,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Delete removes one upload. The backing object is deleted first; the
// metadata row goes only after storage confirms, so a storage failure keeps
// the row visible and the caller can simply retry. Responses use the raw
// shapes the web client consumes, not the API envelope.
func (u *UploadController) Delete(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	id, err := parseID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image id"})
		return
	}

	upload, err := u.store.GetUpload(ctx.Request.Context(), id)
	if err == jobs.ErrUploadNotFound {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Image not found"})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !upload.OwnedBy(userID) {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	result := storage.DeleteWithRetry(ctx.Request.Context(), u.objects, upload.StorageKey, storage.DefaultRetryPolicy)
	if !result.Success {
		// No dead-letter tracking here: the row stays untouched so the user
		// can retry the whole operation.
		utils.Sugar.Errorw("owner delete: storage deletion failed", "key", upload.StorageKey, "error", result.Error)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete image from storage"})
		return
	}

	if err := u.store.DeleteUpload(ctx.Request.Context(), upload.ID); err != nil {
		utils.Sugar.Errorw("owner delete: metadata row removal failed", "id", upload.ID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Image deleted but record cleanup failed"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateExpiry sets or clears the upload's scheduled deletion time.
// A null deletion_time keeps the upload indefinitely.
func (u *UploadController) UpdateExpiry(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	id, err := parseID(ctx.Param("id"))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40033, "invalid upload id")
		return
	}

	var req struct {
		DeletionTime *time.Time `json:"deletion_time"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40034, "invalid request payload")
		return
	}

	if req.DeletionTime != nil && req.DeletionTime.Before(time.Now()) {
		utils.Error(ctx, http.StatusBadRequest, 40035, "deletion time must be in the future")
		return
	}

	upload, err := u.store.GetUpload(ctx.Request.Context(), id)
	if err == jobs.ErrUploadNotFound {
		utils.Error(ctx, http.StatusNotFound, 40430, "upload not found")
		return
	}
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to load upload")
		return
	}

	if !upload.OwnedBy(userID) {
		utils.Error(ctx, http.StatusForbidden, 40330, "you do not own this upload")
		return
	}

	if err := u.store.SetCustomDeletionTime(ctx.Request.Context(), upload.ID, req.DeletionTime); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50037, "failed to update deletion time")
		return
	}

	utils.Success(ctx, gin.H{"id": upload.ID, "deletion_time": req.DeletionTime})
}

func publicURL(cfg config.AppConfig, key string) string {
	base := strings.TrimRight(cfg.S3PublicURL, "/")
	if base == "" {
		base = strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	return base + "/" + key
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}
