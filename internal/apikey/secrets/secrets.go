// Package secrets mints and hashes platform API key secrets.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	dErrors "likeness/pkg/domain-errors"
)

// Prefix marks every secret issued by this registry.
const Prefix = "lk_live_"

// displayPrefixLen is how much of a secret is kept for display.
const displayPrefixLen = len(Prefix) + 6

// Generate creates a new secret: Prefix followed by 32 random bytes in
// unpadded base64url.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return Prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the hex SHA-256 of a secret, used as the lookup index.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:]), nil
}

// DisplayPrefix returns the non-secret leading part of a secret.
func DisplayPrefix(secret string) string {
	if len(secret) <= displayPrefixLen {
		return secret
	}
	return secret[:displayPrefixLen]
}

// LooksValid is a cheap shape check before hashing untrusted input.
func LooksValid(secret string) bool {
	return strings.HasPrefix(secret, Prefix) && len(secret) > len(Prefix) && len(secret) <= 128
}
