package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the work factor for new password hashes. Existing hashes
// keep the cost they were created with.
const bcryptCost = bcrypt.DefaultCost

// HashPassword derives a bcrypt hash from the plaintext password. The hash
// is what gets persisted; the plaintext never is.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPasswordHash reports whether the plaintext password matches the
// stored bcrypt hash. An empty hash never matches.
func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
