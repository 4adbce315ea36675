package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt rejects passwords beyond 72 bytes; cap well before that
const maxPasswordLength = 64

// HashPassword hashes a password using bcrypt. Used by the hash helper
// command when provisioning the operator credential.
func HashPassword(password string) (string, error) {
	if len(password) > maxPasswordLength {
		return "", fmt.Errorf("password too long")
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// VerifyPassword compares a candidate password against the stored hash
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
