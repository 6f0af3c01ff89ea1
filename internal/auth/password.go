// ABOUTME: Operator password verification for the panel login.
// ABOUTME: Compares against a plain configured password or a bcrypt hash.

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoPassword indicates neither a password nor a hash is configured.
var ErrNoPassword = errors.New("no operator password configured")

// PasswordChecker verifies the operator password.
type PasswordChecker struct {
	plain string
	hash  []byte
}

// NewPasswordChecker creates a checker. A non-empty hash takes precedence
// over the plain password and must be a valid bcrypt hash.
func NewPasswordChecker(plain, hash string) (*PasswordChecker, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("parsing password hash: %w", err)
		}
		return &PasswordChecker{hash: []byte(hash)}, nil
	}
	if plain == "" {
		return nil, ErrNoPassword
	}
	return &PasswordChecker{plain: plain}, nil
}

// Check reports whether password is correct.
func (c *PasswordChecker) Check(password string) bool {
	if c.hash != nil {
		return bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	}
	return password == c.plain
}

// HashPassword returns a bcrypt hash suitable for panel.password_hash.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}
