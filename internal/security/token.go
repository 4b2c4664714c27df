package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DefaultTokenBytes is the entropy of an access token when no length is configured.
const DefaultTokenBytes = 32

var ErrTokenDecode = errors.New("malformed bearer token")

// GenerateToken returns a random token encoded for the client together with
// the hash that is persisted in its place.
func GenerateToken(length int) (string, []byte, error) {
	if length <= 0 {
		length = DefaultTokenBytes
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	sum := sha256.Sum256(buf)
	return base64.RawURLEncoding.EncodeToString(buf), sum[:], nil
}

// HashToken decodes a presented token and returns the hash it was stored under.
func HashToken(encoded string) ([]byte, error) {
	encoded = strings.TrimRight(strings.TrimSpace(encoded), "=")
	if encoded == "" {
		return nil, ErrTokenDecode
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenDecode, err)
	}

	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// EncodeHash renders a token hash as a cache-key safe string.
func EncodeHash(hash []byte) string {
	return base64.RawURLEncoding.EncodeToString(hash)
}
