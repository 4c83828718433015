package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// HashPassword returns the hex SHA-256 digest of password concatenated with
// salt. The pair (hash, salt) is what the Users sheet stores.
func HashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// GenerateSalt returns 32 random bytes hex-encoded (64 characters).
func GenerateSalt() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CheckPassword reports whether password and salt produce the stored hash.
// The comparison is constant time.
func CheckPassword(password, salt, storedHash string) bool {
	got := HashPassword(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
