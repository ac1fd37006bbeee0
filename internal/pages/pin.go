package pages

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"voicecard/internal/domain"
)

const (
	minPinLength = 4
	maxPinLength = 8
)

func hashPin(pin string, cost int) (string, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return "", nil
	}
	if len(pin) < minPinLength || len(pin) > maxPinLength {
		return "", fmt.Errorf("%w: pin must be %d to %d digits", domain.ErrValidation, minPinLength, maxPinLength)
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return "", fmt.Errorf("%w: pin must contain digits only", domain.ErrValidation)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

func checkPin(hash, pin string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(pin)))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.ErrInvalidPin
	}
	if err != nil {
		return fmt.Errorf("compare pin: %w", err)
	}
	return nil
}
