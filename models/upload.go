package models

import (
	"time"

	"gorm.io/gorm"
)

// UploadStatus values stored on an Upload row. Deleted uploads are removed
// outright, so Active is the only live state.
const UploadStatusActive = "active"

// Upload records a stored object and its public URL. UserID is nil for
// anonymous uploads. CustomDeletionTime is the only field that makes an
// upload eligible for automatic reclamation: rows with a nil value are kept
// indefinitely, ExpiresAt is informational.
type Upload struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UserID             *uint      `gorm:"index" json:"user_id"`
	FileName           string     `gorm:"size:512;not null" json:"file_name"`
	FileSize           int64      `gorm:"not null" json:"file_size"`
	FileType           string     `gorm:"size:128" json:"file_type"`
	StorageKey         string     `gorm:"size:1024;not null;uniqueIndex:idx_uploads_storage_key,length:255" json:"storage_key"`
	PublicURL          string     `gorm:"size:1024;not null" json:"url"`
	Status             string     `gorm:"size:16;not null;default:active;index" json:"status"`
	ExpiresAt          time.Time  `json:"expires_at"`
	CustomDeletionTime *time.Time `gorm:"index" json:"custom_deletion_time"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Expired reports whether the upload's user-set deletion time has passed.
// Uploads without a custom deletion time never expire automatically.
func (u *Upload) Expired(now time.Time) bool {
	return u.CustomDeletionTime != nil && u.CustomDeletionTime.Before(now)
}

// OwnedBy reports whether the upload belongs to the given user.
// Anonymous uploads have no owner.
func (u *Upload) OwnedBy(userID uint) bool {
	return u.UserID != nil && *u.UserID == userID
}

// BeforeCreate hook ensures timestamps and status are set even when not provided.
func (u *Upload) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Status == "" {
		u.Status = UploadStatusActive
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *Upload) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
