package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imglink/imglink/config"
)

func TestGenerateAndParseToken(t *testing.T) {
	config.SetForTest(config.AppConfig{JWTSecret: "unit-test-secret", CronSecret: "cron"})

	tok, err := GenerateToken(42, "alice", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestParseToken_Expired(t *testing.T) {
	config.SetForTest(config.AppConfig{JWTSecret: "unit-test-secret", CronSecret: "cron"})

	tok, err := GenerateToken(1, "bob", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(tok)
	require.Error(t, err)
}

func TestParseToken_WrongSecret(t *testing.T) {
	config.SetForTest(config.AppConfig{JWTSecret: "first-secret", CronSecret: "cron"})
	tok, err := GenerateToken(1, "carol", time.Hour)
	require.NoError(t, err)

	config.SetForTest(config.AppConfig{JWTSecret: "second-secret", CronSecret: "cron"})
	_, err = ParseToken(tok)
	require.Error(t, err)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}
