package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/models"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/store"
)

// adminFakeStore holds upload rows in a map and records row deletions.
type adminFakeStore struct {
	uploads   map[uint]models.Upload
	uploaders []store.Uploader
}

func (f *adminFakeStore) AdminUploads(_ context.Context, _ store.AdminUploadFilter) ([]models.Upload, int64, error) {
	out := make([]models.Upload, 0, len(f.uploads))
	for _, u := range f.uploads {
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (f *adminFakeStore) UploadsByIDs(_ context.Context, ids []uint) ([]models.Upload, error) {
	var out []models.Upload
	for _, id := range ids {
		if u, ok := f.uploads[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *adminFakeStore) DeleteUpload(_ context.Context, id uint) error {
	delete(f.uploads, id)
	return nil
}

func (f *adminFakeStore) DistinctUploaders(_ context.Context) ([]store.Uploader, error) {
	return f.uploaders, nil
}

func (f *adminFakeStore) Stats(_ context.Context) (*store.UploadStats, error) {
	return &store.UploadStats{UploadsByType: map[string]int64{}}, nil
}

// lockedDeleter tolerates the concurrent deletions BulkDelete issues.
type lockedDeleter struct {
	mu      sync.Mutex
	failing map[string]bool
	keys    []string
}

func (d *lockedDeleter) DeleteObject(_ context.Context, key string) storage.DeleteOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	if d.failing[key] {
		return storage.DeleteOutcome{ErrName: "InternalError", ErrMessage: "boom", StatusCode: 500}
	}
	return storage.DeleteOutcome{Deleted: true}
}

func adminTestServer(t *testing.T, s *adminFakeStore, d storage.Deleter) *gin.Engine {
	t.Helper()
	config.SetForTest(config.AppConfig{JWTSecret: "jwt"})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	a := NewAdminController(s, d)
	r.DELETE("/api/v1/admin/uploads", a.BulkDelete)
	r.GET("/api/v1/admin/users", a.ListUploaders)
	return r
}

func adminUpload(id uint, key string) models.Upload {
	return models.Upload{ID: id, FileName: "f.png", StorageKey: key, Status: models.UploadStatusActive}
}

type bulkDeleteEnvelope struct {
	Code int `json:"code"`
	Data struct {
		Deleted    int    `json:"deleted"`
		Errors     int    `json:"errors"`
		DeletedIDs []uint `json:"deletedIds"`
		FailedIDs  []uint `json:"failedIds"`
	} `json:"data"`
}

func doBulkDelete(t *testing.T, r *gin.Engine, ids []uint) (*httptest.ResponseRecorder, bulkDeleteEnvelope) {
	t.Helper()
	body, err := json.Marshal(gin.H{"ids": ids})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/uploads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var env bulkDeleteEnvelope
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestBulkDelete_RemovesObjectsThenRows(t *testing.T) {
	s := &adminFakeStore{uploads: map[uint]models.Upload{
		1: adminUpload(1, "u/a.png"),
		2: adminUpload(2, "u/b.png"),
	}}
	d := &lockedDeleter{}
	r := adminTestServer(t, s, d)

	w, env := doBulkDelete(t, r, []uint{1, 2})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, env.Data.Deleted)
	assert.Equal(t, 0, env.Data.Errors)
	assert.ElementsMatch(t, []uint{1, 2}, env.Data.DeletedIDs)
	assert.Empty(t, env.Data.FailedIDs)
	assert.ElementsMatch(t, []string{"u/a.png", "u/b.png"}, d.keys)
	assert.Empty(t, s.uploads, "metadata rows removed after their objects")
}

func TestBulkDelete_StorageFailureKeepsRow(t *testing.T) {
	s := &adminFakeStore{uploads: map[uint]models.Upload{
		1: adminUpload(1, "u/a.png"),
		2: adminUpload(2, "u/b.png"),
	}}
	d := &lockedDeleter{failing: map[string]bool{"u/b.png": true}}
	r := adminTestServer(t, s, d)

	w, env := doBulkDelete(t, r, []uint{1, 2})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.Data.Deleted)
	assert.Equal(t, 1, env.Data.Errors)
	assert.Equal(t, []uint{1}, env.Data.DeletedIDs)
	assert.Equal(t, []uint{2}, env.Data.FailedIDs)
	_, kept := s.uploads[2]
	assert.True(t, kept, "row must survive while its object still exists")
}

func TestBulkDelete_UnknownIDsCountAsFailures(t *testing.T) {
	s := &adminFakeStore{uploads: map[uint]models.Upload{
		1: adminUpload(1, "u/a.png"),
	}}
	r := adminTestServer(t, s, &lockedDeleter{})

	w, env := doBulkDelete(t, r, []uint{1, 99})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint{1}, env.Data.DeletedIDs)
	assert.Equal(t, []uint{99}, env.Data.FailedIDs)
}

func TestBulkDelete_RejectsOversizedBatch(t *testing.T) {
	s := &adminFakeStore{uploads: map[uint]models.Upload{}}
	d := &lockedDeleter{}
	r := adminTestServer(t, s, d)

	ids := make([]uint, 101)
	for i := range ids {
		ids[i] = uint(i + 1)
	}
	w, _ := doBulkDelete(t, r, ids)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, d.keys, "oversized batches must not touch storage")
}

func TestListUploaders_ReturnsOwners(t *testing.T) {
	s := &adminFakeStore{uploaders: []store.Uploader{
		{ID: 1, Username: "alice"},
		{ID: 7, Username: "bob"},
	}}
	r := adminTestServer(t, s, &lockedDeleter{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Code int `json:"code"`
		Data struct {
			Users []store.Uploader `json:"users"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, s.uploaders, env.Data.Users)
}
