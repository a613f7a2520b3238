package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imglink/imglink/config"
	"github.com/imglink/imglink/storage"
	"github.com/imglink/imglink/utils"
)

// proxyCacheControl matches the cache policy stamped on uploaded objects:
// keys are content-addressed, so responses never change.
const proxyCacheControl = "public, max-age=31536000, immutable"

// ProxyController re-serves bucket-hosted images through the API origin so
// clients behind strict content policies never reference the bucket domain
// directly. Only URLs under the configured public bucket host are proxied.
type ProxyController struct {
	objects storage.Store
	client  *http.Client
}

// NewProxyController creates a new ProxyController instance.
func NewProxyController(objects storage.Store) *ProxyController {
	return &ProxyController{
		objects: objects,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Image fetches one bucket-hosted image and streams it back with immutable
// cache headers. Responses use the raw error shapes of the image data plane.
func (p *ProxyController) Image(ctx *gin.Context) {
	raw := ctx.Query("url")
	if raw == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Missing url parameter"})
		return
	}

	key, ok := bucketKeyFromURL(config.Get(), raw)
	if !ok {
		ctx.JSON(http.StatusForbidden, gin.H{"error": "Invalid image URL"})
		return
	}

	info, err := p.objects.HeadObject(ctx.Request.Context(), key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Failed to fetch image"})
		return
	}
	if err != nil {
		// The bucket check is advisory; the fetch below decides.
		utils.Sugar.Warnw("proxy head failed", "key", key, "error", err)
	}

	req, err := http.NewRequestWithContext(ctx.Request.Context(), http.MethodGet, raw, nil)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to proxy image"})
		return
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		utils.Sugar.Errorw("proxy fetch failed", "url", raw, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to proxy image"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ctx.JSON(resp.StatusCode, gin.H{"error": "Failed to fetch image"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = info.ContentType
	}
	if contentType == "" {
		contentType = "image/webp"
	}

	ctx.DataFromReader(http.StatusOK, resp.ContentLength, contentType, resp.Body,
		map[string]string{"Cache-Control": proxyCacheControl})
}

// bucketKeyFromURL validates that raw points at the configured public bucket
// host and extracts the object key from its path.
func bucketKeyFromURL(cfg config.AppConfig, raw string) (string, bool) {
	base := cfg.S3PublicURL
	if base == "" {
		base = cfg.PublicBaseURL
	}

	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return "", false
	}
	target, err := url.Parse(raw)
	if err != nil || target.Host != baseURL.Host {
		return "", false
	}

	key := strings.TrimPrefix(target.Path, strings.TrimRight(baseURL.Path, "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", false
	}
	return key, true
}
