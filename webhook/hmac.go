package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the payload signature when the endpoint has a secret.
const SignatureHeader = "X-Webhook-Signature"

// ComputeSignature returns the hex-encoded HMAC-SHA256 of the body keyed by
// the endpoint secret. Receivers verify it with a constant-time comparison.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
