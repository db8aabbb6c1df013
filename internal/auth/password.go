package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost balances hashing time against brute-force resistance.
const DefaultBcryptCost = 12

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher creates a PasswordHasher with the default cost.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: DefaultBcryptCost}
}

// Hash generates a bcrypt hash of the given password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify reports whether the password matches the hash.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
