package controllers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/middleware"
)

func uploadTestServer(t *testing.T, authedUser uint) *gin.Engine {
	t.Helper()
	config.SetForTest(config.AppConfig{
		JWTSecret:            "jwt",
		CronSecret:           "cron",
		UploadMaxSizeMB:      10,
		UploadExpiryDays:     30,
		AnonymousUploadLimit: 5,
		S3PublicURL:          "https://img.example.com",
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authedUser != 0 {
		r.Use(func(ctx *gin.Context) {
			ctx.Set(middleware.ContextUserIDKey, authedUser)
			ctx.Set(middleware.ContextUsernameKey, "tester")
		})
	}

	// Storage and database are never reached on the rejection paths under test.
	u := NewUploadController(nil, nil)
	r.POST("/api/v1/upload", u.Upload)
	r.DELETE("/api/v1/uploads/:id", u.Delete)
	r.PATCH("/api/v1/uploads/:id/expiry", u.UpdateExpiry)
	return r
}

func multipartBody(t *testing.T, fieldName, fileName, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="` + fieldName + `"; filename="` + fileName + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpload_RejectsMissingFile(t *testing.T) {
	r := uploadTestServer(t, 1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no file provided")
}

func TestUpload_RejectsNonImageContentType(t *testing.T) {
	r := uploadTestServer(t, 1)

	body, contentType := multipartBody(t, "file", "notes.txt", "text/plain", []byte("hello"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "only images are accepted")
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	config.SetForTest(config.AppConfig{
		JWTSecret:            "jwt",
		CronSecret:           "cron",
		UploadMaxSizeMB:      1,
		AnonymousUploadLimit: 5,
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(ctx *gin.Context) { ctx.Set(middleware.ContextUserIDKey, uint(1)) })
	u := NewUploadController(nil, nil)
	r.POST("/api/v1/upload", u.Upload)

	body, contentType := multipartBody(t, "file", "big.png", "image/png", make([]byte, (1<<20)+1))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "1MB limit")
}

func TestDelete_RequiresAuthentication(t *testing.T) {
	r := uploadTestServer(t, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/3", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
}

func TestDelete_RejectsMalformedID(t *testing.T) {
	r := uploadTestServer(t, 1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/uploads/abc", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid image id")
}

func TestUpdateExpiry_RejectsPastDeletionTime(t *testing.T) {
	r := uploadTestServer(t, 1)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/uploads/3/expiry",
		bytes.NewBufferString(`{"deletion_time":"2001-01-01T00:00:00Z"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "must be in the future")
}
