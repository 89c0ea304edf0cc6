package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// ErrPasswordTooShort is returned when a candidate password fails policy.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// HashPassword returns a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a stored bcrypt hash.
func CheckPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ValidatePassword enforces the minimum password policy.
func ValidatePassword(password string) error {
	if len(strings.TrimSpace(password)) < minPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
