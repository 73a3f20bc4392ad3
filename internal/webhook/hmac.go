package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the GitHub-style scheme tag some senders put in front
// of the digest.
const signaturePrefix = "sha256="

// Verify reports whether signature is the lowercase hex HMAC-SHA256 of body
// under secret. A "sha256=" prefix is accepted. The comparison is constant
// time; an empty secret or signature never verifies.
func Verify(body []byte, signature string, secret []byte) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, signaturePrefix)

	expected := Sign(body, secret)
	// ConstantTimeCompare returns 0 immediately on length mismatch, which
	// only reveals the digest length.
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Sign returns the lowercase hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
