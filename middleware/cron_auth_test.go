package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/imglink/imglink/config"
)

func cronTestRouter(t *testing.T) (*gin.Engine, *int) {
	t.Helper()
	config.SetForTest(config.AppConfig{JWTSecret: "jwt", CronSecret: "s3cr3t"})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	hits := 0
	r.POST("/cron/run", CronAuth(), func(ctx *gin.Context) {
		hits++
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, &hits
}

func TestCronAuth_RejectsMissingHeader(t *testing.T) {
	r, hits := cronTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cron/run", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
	assert.Zero(t, *hits, "handler must not run for unauthorized calls")
}

func TestCronAuth_RejectsWrongSecret(t *testing.T) {
	r, hits := cronTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cron/run", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, *hits)
}

func TestCronAuth_AcceptsSharedSecret(t *testing.T) {
	r, hits := cronTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cron/run", nil)
	req.Header.Set("Authorization", "Bearer s3cr3t")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, *hits)
}
