package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err    error
		kind   string
		status int
	}{
		{fmt.Errorf("%w: ABCD2345", ErrNotFound), "not_found", http.StatusNotFound},
		{fmt.Errorf("%w: ABCD2345", ErrAlreadyPersonalized), "already_personalized", http.StatusBadRequest},
		{fmt.Errorf("%w: audio too long", ErrValidation), "validation", http.StatusBadRequest},
		{ErrProtected, "protected", http.StatusForbidden},
		{ErrInvalidPin, "invalid_pin", http.StatusUnauthorized},
		{ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
		{ErrTooManyAttempts, "too_many_attempts", http.StatusTooManyRequests},
		{fmt.Errorf("load: %w", ErrStorageUnavailable), "storage_unavailable", http.StatusInternalServerError},
		{fmt.Errorf("%w: ffmpeg", ErrCollaborator), "collaborator_failure", http.StatusInternalServerError},
		{errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		kind, status := ErrorKind(tc.err)
		assert.Equal(t, tc.kind, kind, tc.err.Error())
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestDestroyed(t *testing.T) {
	deadline := time.Date(2027, time.December, 31, 23, 59, 59, 0, time.UTC)
	page := AudioPage{MaxPlays: 5, ExpirationDate: deadline}

	assert.False(t, page.Destroyed(deadline))
	assert.True(t, page.Destroyed(deadline.Add(time.Second)))

	page.PlayCount = 5
	assert.True(t, page.Destroyed(deadline.Add(-time.Hour)))
}

func TestPublicStripsPinHash(t *testing.T) {
	page := AudioPage{PinHash: "$2a$...", HasPin: true}
	public := page.Public()
	assert.Empty(t, public.PinHash)
	assert.True(t, public.HasPin)
	assert.NotEmpty(t, page.PinHash)
}
