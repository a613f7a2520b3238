package models

import (
	"fmt"
	"time"
)

// DeletionStatus is the closed set of states a FailedDeletion moves through.
// Resolved and Failed are terminal.
type DeletionStatus string

const (
	DeletionPending  DeletionStatus = "pending"
	DeletionRetrying DeletionStatus = "retrying"
	DeletionResolved DeletionStatus = "resolved"
	DeletionFailed   DeletionStatus = "failed"
)

// Valid reports whether s is one of the known deletion states.
func (s DeletionStatus) Valid() bool {
	switch s {
	case DeletionPending, DeletionRetrying, DeletionResolved, DeletionFailed:
		return true
	}
	return false
}

// Terminal reports whether no further automatic transitions are allowed.
func (s DeletionStatus) Terminal() bool {
	return s == DeletionResolved || s == DeletionFailed
}

// FailedDeletion is a dead-letter entry for an object deletion that could not
// be completed. StorageKey is the unit of retry work; UploadID is kept only
// for traceability and may outlive (or never reference) an Upload row.
type FailedDeletion struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UploadID    *uint          `gorm:"index" json:"upload_id"`
	StorageKey  string         `gorm:"size:1024;not null" json:"storage_key"`
	Reason      string         `gorm:"type:text" json:"reason"`
	Status      DeletionStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	RetryCount  int            `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt   time.Time      `json:"created_at"`
	LastRetryAt *time.Time     `json:"last_retry_at"`
	ResolvedAt  *time.Time     `json:"resolved_at"`
}

// AppendReason extends the stored reason text, keeping the audit trail of
// every failed attempt.
func (f *FailedDeletion) AppendReason(format string, args ...interface{}) {
	extra := fmt.Sprintf(format, args...)
	if f.Reason == "" {
		f.Reason = extra
		return
	}
	f.Reason = f.Reason + " | " + extra
}
