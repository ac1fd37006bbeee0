package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"voicecard/internal/config"
)

// SignCode returns "<expiresAt>.<signature>" for code.
func SignCode(code string, expiresAt int64, secret string) string {
	signature := computeSignature(code, expiresAt, secret)
	return fmt.Sprintf("%d.%s", expiresAt, signature)
}

func ValidateSignature(code string, expiresAt int64, signature, secret string) bool {
	expected := computeSignature(code, expiresAt, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// UnlockService issues the short-lived tokens that remember a correct PIN
// entry for one page.
type UnlockService struct {
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewUnlockService(cfg config.Config) *UnlockService {
	return &UnlockService{
		secret: cfg.UnlockSecret,
		ttl:    cfg.UnlockTTL,
		now:    time.Now,
	}
}

func (s *UnlockService) TTL() time.Duration {
	return s.ttl
}

func (s *UnlockService) Issue(code string) (string, time.Time) {
	expiresAt := s.now().Add(s.ttl)
	return SignCode(code, expiresAt.Unix(), s.secret), expiresAt
}

// Validate accepts an unexpired token signed for code.
func (s *UnlockService) Validate(code, token string) bool {
	rawExp, signature, ok := strings.Cut(token, ".")
	if !ok || signature == "" {
		return false
	}
	expiresAt, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > expiresAt {
		return false
	}
	return ValidateSignature(code, expiresAt, signature, s.secret)
}

func computeSignature(code string, expiresAt int64, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(fmt.Sprintf("%s:%d", code, expiresAt)))
	sig := h.Sum(nil)
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(sig)
}
