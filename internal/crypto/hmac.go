package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// WebhookAuth signs outbound webhook deliveries so receivers can verify the
// payload's origin and freshness. The signature covers timestamp and body,
// tying each delivery to the moment it was produced.
type WebhookAuth struct {
	Secret string
}

// Headers returns the HTTP headers for a webhook delivery.
// The signature is HMAC-SHA256(secret, timestamp+"."+body) encoded as base64.
//
// Returned header keys:
//   - X-Ajna-Timestamp
//   - X-Ajna-Signature
func (w *WebhookAuth) Headers(body []byte) map[string]string {
	return w.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (w *WebhookAuth) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	sig := hmacSHA256Base64([]byte(w.Secret), ts+"."+string(body))

	return map[string]string{
		"X-Ajna-Timestamp": ts,
		"X-Ajna-Signature": sig,
	}
}

// Verify checks a delivery signature against the body and timestamp header.
// Deliveries older than maxSkew are rejected even with a valid signature.
func (w *WebhookAuth) Verify(body []byte, timestamp, signature string, maxSkew time.Duration) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if maxSkew > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > maxSkew || age < -maxSkew {
			return false
		}
	}

	want := hmacSHA256Base64([]byte(w.Secret), timestamp+"."+string(body))
	return hmac.Equal([]byte(want), []byte(signature))
}

// String returns a redacted representation suitable for logging.
func (w *WebhookAuth) String() string {
	if len(w.Secret) <= 4 {
		return "WebhookAuth{secret=****}"
	}
	return fmt.Sprintf("WebhookAuth{secret=%s****}", w.Secret[:4])
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
