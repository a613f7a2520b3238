package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/storage"
)

// proxyFakeStore serves canned object metadata and records the keys asked for.
type proxyFakeStore struct {
	info     map[string]storage.ObjectInfo
	headKeys []string
}

func (f *proxyFakeStore) DeleteObject(_ context.Context, _ string) storage.DeleteOutcome {
	return storage.DeleteOutcome{Deleted: true}
}

func (f *proxyFakeStore) PutObject(_ context.Context, _, _ string, _ io.Reader, _ int64) error {
	return nil
}

func (f *proxyFakeStore) HeadObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	f.headKeys = append(f.headKeys, key)
	info, ok := f.info[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info, nil
}

func proxyTestServer(t *testing.T, publicURL string, objects storage.Store) *gin.Engine {
	t.Helper()
	config.SetForTest(config.AppConfig{
		JWTSecret:   "jwt",
		S3PublicURL: publicURL,
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/v1/proxy-image", NewProxyController(objects).Image)
	return r
}

func TestProxyImage_RequiresURLParameter(t *testing.T) {
	r := proxyTestServer(t, "https://img.example.com", &proxyFakeStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/proxy-image", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing url parameter"}`, w.Body.String())
}

func TestProxyImage_RejectsForeignHost(t *testing.T) {
	fake := &proxyFakeStore{}
	r := proxyTestServer(t, "https://img.example.com", fake)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/proxy-image?url=https%3A%2F%2Fevil.example%2Fcat.png", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Invalid image URL"}`, w.Body.String())
	assert.Empty(t, fake.headKeys, "rejected URLs must not reach the bucket")
}

func TestProxyImage_StreamsBucketImage(t *testing.T) {
	body := []byte("png-bytes")
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer origin.Close()

	fake := &proxyFakeStore{info: map[string]storage.ObjectInfo{
		"uploads/2026/cat.png": {Size: int64(len(body)), ContentType: "image/png"},
	}}
	r := proxyTestServer(t, origin.URL, fake)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/proxy-image?url="+origin.URL+"/uploads/2026/cat.png", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
	assert.Equal(t, []string{"uploads/2026/cat.png"}, fake.headKeys)
}

func TestProxyImage_MissingObjectReturns404(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("origin must not be contacted for absent objects")
	}))
	defer origin.Close()

	r := proxyTestServer(t, origin.URL, &proxyFakeStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/proxy-image?url="+origin.URL+"/uploads/gone.png", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch image"}`, w.Body.String())
}

func TestProxyImage_PassesThroughUpstreamFailure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer origin.Close()

	fake := &proxyFakeStore{info: map[string]storage.ObjectInfo{
		"uploads/flaky.png": {ContentType: "image/png"},
	}}
	r := proxyTestServer(t, origin.URL, fake)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/proxy-image?url="+origin.URL+"/uploads/flaky.png", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch image"}`, w.Body.String())
}
