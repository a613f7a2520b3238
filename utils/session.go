package utils

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionCookieName = "il_session"
	sessionCookieTTL  = 30 * 24 * time.Hour
	anonCountPrefix   = "anon:uploads:"
)

// UploadLimitStatus describes the anonymous upload quota for one session.
type UploadLimitStatus struct {
	Allowed   bool `json:"allowed"`
	Count     int  `json:"count"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

// GetOrCreateSessionID returns the anonymous session id from the request
// cookie, issuing a fresh one when absent.
func GetOrCreateSessionID(ctx *gin.Context) string {
	if sid, err := ctx.Cookie(sessionCookieName); err == nil && sid != "" {
		return sid
	}
	sid := uuid.NewString()
	ctx.SetCookie(sessionCookieName, sid, int(sessionCookieTTL.Seconds()), "/", "", false, true)
	return sid
}

// CheckAnonymousUploadLimit reads the session's upload count from Redis and
// compares it against the configured quota. Redis being unreachable counts
// as zero uploads rather than blocking the user.
func CheckAnonymousUploadLimit(sessionID string, limit int) UploadLimitStatus {
	count := 0
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.Get(ctx, anonCountPrefix+sessionID).Result(); err == nil {
			if n, err := strconv.Atoi(v); err == nil {
				count = n
			}
		}
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return UploadLimitStatus{
		Allowed:   count < limit,
		Count:     count,
		Remaining: remaining,
		Limit:     limit,
	}
}

// IncrementAnonymousUploadCount bumps the session's upload counter, refreshing
// its TTL so inactive sessions age out.
func IncrementAnonymousUploadCount(sessionID string) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := anonCountPrefix + sessionID
	if err := rc.Incr(ctx, key).Err(); err != nil {
		Sugar.Warnf("anonymous upload counter incr failed session=%s err=%v", sessionID, err)
		return
	}
	_ = rc.Expire(ctx, key, sessionCookieTTL).Err()
}
