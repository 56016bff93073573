package auth

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// errWeakPassword stays generic so requirements cannot be probed one rule at
// a time.
var errWeakPassword = errors.New("invalid password")

var commonPasswords = map[string]struct{}{
	"password":    {},
	"12345678":    {},
	"qwerty":      {},
	"abc123":      {},
	"password123": {},
	"123456":      {},
	"admin":       {},
	"letmein":     {},
	"welcome":     {},
	"clinicdesk":  {},
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces length, a deny-list of common passwords and a
// minimal character mix.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen || len(password) > MaxPasswordLen {
		return errWeakPassword
	}
	if _, known := commonPasswords[password]; known {
		return errWeakPassword
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		hasUpper = hasUpper || unicode.IsUpper(r)
		hasLower = hasLower || unicode.IsLower(r)
		hasDigit = hasDigit || unicode.IsDigit(r)
	}
	if !hasUpper || !hasLower || !hasDigit {
		return errWeakPassword
	}
	return nil
}
