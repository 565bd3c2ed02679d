// Package bcrypt adapts golang.org/x/crypto/bcrypt to ports.PasswordHasher.
package bcrypt

import (
	"errors"
	"fmt"

	"github.com/target/lessonhub/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned by Compare when the password does not match the hash.
var ErrMismatch = errors.New("password mismatch")

// Hasher hashes local account passwords with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher. A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(b), nil
}

// Compare checks password against hash.
func (h *Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	if err != nil {
		return fmt.Errorf("bcrypt compare: %w", err)
	}
	return nil
}

var _ ports.PasswordHasher = (*Hasher)(nil)
