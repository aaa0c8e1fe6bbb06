package webhookutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks a GitHub-style X-Hub-Signature-256 header
// ("sha256=<hex>") against the request body using the shared webhook secret.
// Comparison is constant time.
func VerifySignature(body []byte, signatureHeader, secret string) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}

	provided := strings.TrimPrefix(signatureHeader, "sha256=")
	if provided == signatureHeader {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}
