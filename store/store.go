// Package store provides the gorm-backed metadata store for uploads and the
// failed-deletion dead-letter table.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/imglink/imglink/jobs"
	"github.com/imglink/imglink/models"
)

// Store wraps a gorm DB with the queries the service and the reclamation
// jobs need. It implements jobs.UploadStore and jobs.DeadLetterStore.
type Store struct {
	db *gorm.DB
}

// New creates a Store on top of an initialized gorm DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ExpiredUploads selects active uploads whose user-set deletion time is
// strictly in the past. Uploads without a custom deletion time are never
// selected: default retention is indefinite.
func (s *Store) ExpiredUploads(ctx context.Context, now time.Time, limit int) ([]models.Upload, error) {
	var uploads []models.Upload
	err := s.db.WithContext(ctx).
		Where("status = ?", models.UploadStatusActive).
		Where("custom_deletion_time IS NOT NULL AND custom_deletion_time < ?", now).
		Order("custom_deletion_time ASC").
		Limit(limit).
		Find(&uploads).Error
	return uploads, err
}

// GetUpload loads one upload row.
func (s *Store) GetUpload(ctx context.Context, id uint) (*models.Upload, error) {
	var upload models.Upload
	err := s.db.WithContext(ctx).First(&upload, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, jobs.ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

// DeleteUpload removes the metadata row. Absent rows are not an error.
func (s *Store) DeleteUpload(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Upload{}, id).Error
}

// CreateUpload inserts a new upload row.
func (s *Store) CreateUpload(ctx context.Context, upload *models.Upload) error {
	return s.db.WithContext(ctx).Create(upload).Error
}

// SetCustomDeletionTime sets or clears the user-controlled expiry.
func (s *Store) SetCustomDeletionTime(ctx context.Context, id uint, t *time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Upload{}).
		Where("id = ?", id).
		Update("custom_deletion_time", t).Error
}

// UploadsByOwner returns one page of a user's uploads, newest first.
func (s *Store) UploadsByOwner(ctx context.Context, userID uint, offset, limit int) ([]models.Upload, int64, error) {
	var uploads []models.Upload
	var total int64

	q := s.db.WithContext(ctx).Model(&models.Upload{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&uploads).Error
	return uploads, total, err
}

// UploadsByIDs loads the given uploads; missing ids are silently skipped.
func (s *Store) UploadsByIDs(ctx context.Context, ids []uint) ([]models.Upload, error) {
	var uploads []models.Upload
	err := s.db.WithContext(ctx).Find(&uploads, ids).Error
	return uploads, err
}

// CreateFailedDeletion inserts a dead-letter entry.
func (s *Store) CreateFailedDeletion(ctx context.Context, fd *models.FailedDeletion) error {
	if fd.Status == "" {
		fd.Status = models.DeletionPending
	}
	return s.db.WithContext(ctx).Create(fd).Error
}

// PendingDeletions selects retryable dead-letter entries, oldest first.
// Entries at or above maxRetries are excluded permanently.
func (s *Store) PendingDeletions(ctx context.Context, maxRetries, limit int) ([]models.FailedDeletion, error) {
	var entries []models.FailedDeletion
	err := s.db.WithContext(ctx).
		Where("status = ?", models.DeletionPending).
		Where("retry_count < ?", maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// UpdateFailedDeletion persists a mutated dead-letter entry.
func (s *Store) UpdateFailedDeletion(ctx context.Context, fd *models.FailedDeletion) error {
	if !fd.Status.Valid() {
		return errors.New("invalid deletion status: " + string(fd.Status))
	}
	return s.db.WithContext(ctx).Save(fd).Error
}
