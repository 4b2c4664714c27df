package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Checksum is an HMAC-SHA256 tag over the parts joined with "|".
func Checksum(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyChecksum compares in constant time.
func VerifyChecksum(secret string, checksum string, parts ...string) bool {
	expected := Checksum(secret, parts...)
	return hmac.Equal([]byte(checksum), []byte(expected))
}
