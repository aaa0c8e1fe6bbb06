package webhookutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action": "opened"}`)
	secret := "hush"

	if !VerifySignature(body, sign(body, secret), secret) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(body, sign(body, "wrong"), secret) {
		t.Error("signature with wrong secret accepted")
	}
	if VerifySignature([]byte("tampered"), sign(body, secret), secret) {
		t.Error("tampered body accepted")
	}
	if VerifySignature(body, "sha256=nothex", secret) {
		t.Error("garbage signature accepted")
	}
	if VerifySignature(body, hex.EncodeToString([]byte("x")), secret) {
		t.Error("missing sha256 prefix accepted")
	}
	if VerifySignature(body, sign(body, secret), "") {
		t.Error("empty secret must reject")
	}
}

func TestHeaderValue(t *testing.T) {
	canonical := http.Header{}
	canonical.Set("X-GitHub-Event", "issues")
	if v := HeaderValue(canonical, "X-GitHub-Event"); v != "issues" {
		t.Errorf("canonical lookup = %q", v)
	}

	// Keys set directly bypass canonicalization
	raw := http.Header{"x-github-event": {"issue_comment"}}
	if v := HeaderValue(raw, "X-GitHub-Event"); v != "issue_comment" {
		t.Errorf("raw-key lookup = %q", v)
	}

	if v := HeaderValue(canonical, "X-Hub-Signature-256"); v != "" {
		t.Errorf("missing header = %q", v)
	}
}
