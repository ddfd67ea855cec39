package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// operatorKeyLength is the length of a generated operator key in bytes (32
// bytes = 64 hex chars), matching the teacher's agent_apikey.go APIKeyLength.
const operatorKeyLength = 32

// operatorKeyBcryptCost mirrors the teacher's agent_apikey.go BcryptCost.
const operatorKeyBcryptCost = 12

// GenerateOperatorKey produces a long-lived credential an operator presents
// to exchange for a short-lived bootstrap JWT (see BootstrapIssuer). Meant
// to be generated once at deployment time and stored only as its bcrypt
// hash, analogous to the teacher's agent API key rotation flow.
func GenerateOperatorKey() (string, error) {
	b := make([]byte, operatorKeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate operator key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashOperatorKey bcrypt-hashes a plaintext operator key for storage.
func HashOperatorKey(key string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(key), operatorKeyBcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash operator key: %w", err)
	}
	return string(b), nil
}

// CompareOperatorKey reports whether key matches the stored bcrypt hash.
func CompareOperatorKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
