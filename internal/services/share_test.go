package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"voicecard/internal/config"
)

func TestUnlockTokenRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.UnlockSecret = "s3cret"
	cfg.UnlockTTL = time.Hour
	svc := NewUnlockService(cfg)

	now := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	token, expiresAt := svc.Issue("ABCD2345")
	assert.Equal(t, now.Add(time.Hour), expiresAt)
	assert.True(t, svc.Validate("ABCD2345", token))

	assert.False(t, svc.Validate("WXYZ6789", token), "token is bound to its code")
	assert.False(t, svc.Validate("ABCD2345", token+"x"))
	assert.False(t, svc.Validate("ABCD2345", "garbage"))
	assert.False(t, svc.Validate("ABCD2345", ""))

	now = now.Add(2 * time.Hour)
	assert.False(t, svc.Validate("ABCD2345", token), "expired token")
}

func TestUnlockTokenRejectsOtherSecret(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	token := SignCode("ABCD2345", exp, "one")

	cfg := config.Default()
	cfg.UnlockSecret = "two"
	assert.False(t, NewUnlockService(cfg).Validate("ABCD2345", token))
}
