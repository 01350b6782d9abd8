// Package auth holds the team API secret primitives. Secrets are shown once at
// provisioning time and only their bcrypt hash is stored.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// SecretLength is the length of the random part of the secret in bytes
	SecretLength = 32

	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 12

	SecretPrefix = "jgw"
)

// GenerateAPISecret returns the plaintext secret (to show once) and its hash (to store).
func GenerateAPISecret() (secret, hash string, err error) {
	randomBytes := make([]byte, SecretLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	secret = fmt.Sprintf("%s_%s", SecretPrefix, base64.RawURLEncoding.EncodeToString(randomBytes))
	hash, err = HashAPISecret(secret, BcryptCost)
	if err != nil {
		return "", "", err
	}
	return secret, hash, nil
}

// HashAPISecret hashes secret with the given bcrypt cost.
func HashAPISecret(secret string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API secret: %w", err)
	}
	return string(b), nil
}

// VerifyAPISecret checks a provided secret against the stored hash in constant time.
func VerifyAPISecret(provided, storedHash string) bool {
	if provided == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(provided)) == nil
}
