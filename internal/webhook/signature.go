package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// SignatureHeader carries the processor's hex digest of the raw body.
const SignatureHeader = "everypay-signature"

// Scheme selects how the webhook digest is computed.
type Scheme string

const (
	// SchemeConcat is sha256(body || secret). This is what the processor sends today.
	// It is not a keyed MAC; keep it only while the processor contract requires it.
	SchemeConcat Scheme = "concat"
	// SchemeHMAC is HMAC-SHA256 keyed with the shared secret.
	SchemeHMAC Scheme = "hmac"
)

// ParseScheme accepts "concat" or "hmac" (case-insensitive). Empty means concat.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeConcat:
		return SchemeConcat, nil
	case SchemeHMAC:
		return SchemeHMAC, nil
	}
	return "", fmt.Errorf("unknown webhook signature scheme %q", s)
}

// Digest returns the lowercase hex digest of body under scheme.
func Digest(scheme Scheme, body, secret []byte) string {
	if scheme == SchemeHMAC {
		h := hmac.New(sha256.New, secret)
		h.Write(body)
		return hex.EncodeToString(h.Sum(nil))
	}
	h := sha256.New()
	h.Write(body)
	h.Write(secret)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature is exactly the digest of body. Hex case matters.
func Verify(scheme Scheme, body []byte, signature string, secret []byte) bool {
	if signature == "" {
		return false
	}
	want := Digest(scheme, body, secret)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}
