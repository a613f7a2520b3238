package store

import (
	"context"
	"strings"

	"github.com/imglink/imglink/models"
)

// UploadStats aggregates service-wide numbers for the admin dashboard.
type UploadStats struct {
	TotalUploads     int64            `json:"total_uploads"`
	ActiveUploads    int64            `json:"active_uploads"`
	TotalStorage     int64            `json:"total_storage_bytes"`
	UniqueUsers      int64            `json:"unique_users"`
	AnonymousUploads int64            `json:"anonymous_uploads"`
	UploadsByType    map[string]int64 `json:"uploads_by_type"`
}

// Stats computes the admin dashboard aggregates in a handful of queries.
func (s *Store) Stats(ctx context.Context) (*UploadStats, error) {
	stats := &UploadStats{UploadsByType: map[string]int64{}}

	if err := s.db.WithContext(ctx).Model(&models.Upload{}).
		Count(&stats.TotalUploads).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Upload{}).
		Where("status = ?", models.UploadStatusActive).Count(&stats.ActiveUploads).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Upload{}).
		Select("COALESCE(SUM(file_size), 0)").Scan(&stats.TotalStorage).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Upload{}).
		Where("user_id IS NOT NULL").
		Distinct("user_id").Count(&stats.UniqueUsers).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Upload{}).
		Where("user_id IS NULL").Count(&stats.AnonymousUploads).Error; err != nil {
		return nil, err
	}

	type typeCount struct {
		FileType string
		Count    int64
	}
	var counts []typeCount
	if err := s.db.WithContext(ctx).Model(&models.Upload{}).
		Select("file_type, COUNT(*) as count").
		Group("file_type").Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		t := c.FileType
		if strings.TrimSpace(t) == "" {
			t = "unknown"
		}
		stats.UploadsByType[t] = c.Count
	}

	return stats, nil
}

// Uploader identifies a user who owns at least one upload. The admin UI
// feeds these into its owner filter dropdown.
type Uploader struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// DistinctUploaders lists the users who currently own uploads.
func (s *Store) DistinctUploaders(ctx context.Context) ([]Uploader, error) {
	uploaders := make([]Uploader, 0)
	err := s.db.WithContext(ctx).Model(&models.Upload{}).
		Select("DISTINCT uploads.user_id AS id, users.username AS username").
		Joins("JOIN users ON users.id = uploads.user_id").
		Order("users.username ASC").
		Scan(&uploaders).Error
	return uploaders, err
}

// AdminUploadFilter narrows the admin upload listing.
type AdminUploadFilter struct {
	Search  string
	Status  string
	SortBy  string
	SortAsc bool
	Offset  int
	Limit   int
}

var sortableColumns = map[string]bool{
	"created_at": true,
	"file_name":  true,
	"file_size":  true,
	"expires_at": true,
}

// AdminUploads returns one filtered, sorted page of all uploads plus the
// total match count.
func (s *Store) AdminUploads(ctx context.Context, f AdminUploadFilter) ([]models.Upload, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Upload{})

	if f.Status != "" && f.Status != "all" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("file_name LIKE ? OR public_url LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortBy := f.SortBy
	if !sortableColumns[sortBy] {
		sortBy = "created_at"
	}
	order := sortBy + " DESC"
	if f.SortAsc {
		order = sortBy + " ASC"
	}

	var uploads []models.Upload
	err := q.Order(order).Offset(f.Offset).Limit(f.Limit).Find(&uploads).Error
	return uploads, total, err
}
