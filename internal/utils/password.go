package utils // package utils provides small helpers shared across handlers

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds enforced at registration.  The lower bound is a
// product decision; the upper bound keeps bcrypt input well under its
// 72-byte truncation point from mattering for realistic passwords.
const (
	minPasswordLen = 12
	maxPasswordLen = 250
)

// ErrPasswordPolicy is returned when a submitted password violates the
// length policy.
var ErrPasswordPolicy = errors.New("password must be between 12 and 250 characters")

// CheckPasswordPolicy validates a candidate password against the policy.
func CheckPasswordPolicy(plain string) error {
	if len(plain) < minPasswordLen || len(plain) > maxPasswordLen {
		return ErrPasswordPolicy
	}
	return nil
}

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
