// Package webhook implements C8: the always-200 HTTP intake for inbound
// field-service and email-with-CSV-attachment events. The HTTP handler
// does only signature verification, minimal parsing, and enqueue; a
// worker pool drains the queue and performs the actual record-store
// mutation, so no request ever blocks on it (spec §4.8).
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyHMAC reports whether signatureHeader is a valid HMAC-SHA256 of
// body under secret, compared in constant time. The header carries the
// digest as "sha256=<hex>" (spec §6.3); a bare hex digest with no prefix
// is also accepted. HMAC-over-raw-body is stdlib-only: no pack repo or
// other_examples/ file signs or verifies a raw-body HMAC (the teacher's
// security/jwt.go signs opaque tokens, a different shape), so crypto/hmac
// + crypto/sha256 is the justified stdlib component here (documented in
// DESIGN.md).
func VerifyHMAC(secret []byte, body []byte, signatureHeader string) bool {
	if len(secret) == 0 || signatureHeader == "" {
		return false
	}
	hexDigest := strings.TrimPrefix(signatureHeader, "sha256=")
	want, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)
	return hmac.Equal(want, got)
}

// VerifySharedSecret reports whether headerValue matches secret, compared
// in constant time. This is the "shared-secret header from a trusted
// forwarding service" alternative authentication spec §4.8 allows — either
// this or VerifyHMAC succeeding is sufficient.
func VerifySharedSecret(secret, headerValue string) bool {
	if secret == "" || headerValue == "" {
		return false
	}
	return hmac.Equal([]byte(secret), []byte(headerValue))
}
