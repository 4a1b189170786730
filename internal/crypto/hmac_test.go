package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookHeadersAtDeterministic(t *testing.T) {
	auth := &WebhookAuth{Secret: "topsecret"}
	body := []byte(`{"event":"mint","token_id":1}`)

	first := auth.HeadersAt(body, 1_700_000_000)
	second := auth.HeadersAt(body, 1_700_000_000)
	assert.Equal(t, first, second)
	assert.Equal(t, "1700000000", first["X-Ajna-Timestamp"])
	assert.NotEmpty(t, first["X-Ajna-Signature"])
}

func TestWebhookVerifyRoundtrip(t *testing.T) {
	auth := &WebhookAuth{Secret: "topsecret"}
	body := []byte(`{"event":"burn","token_id":2}`)

	headers := auth.HeadersAt(body, time.Now().Unix())
	ok := auth.Verify(body, headers["X-Ajna-Timestamp"], headers["X-Ajna-Signature"], time.Minute)
	require.True(t, ok)

	ok = auth.Verify([]byte(`{"event":"burn","token_id":3}`), headers["X-Ajna-Timestamp"], headers["X-Ajna-Signature"], time.Minute)
	assert.False(t, ok, "tampered body fails verification")

	other := &WebhookAuth{Secret: "different"}
	ok = other.Verify(body, headers["X-Ajna-Timestamp"], headers["X-Ajna-Signature"], time.Minute)
	assert.False(t, ok, "wrong secret fails verification")
}

func TestWebhookVerifyRejectsStaleDeliveries(t *testing.T) {
	auth := &WebhookAuth{Secret: "topsecret"}
	body := []byte(`{}`)

	stale := time.Now().Add(-time.Hour).Unix()
	headers := auth.HeadersAt(body, stale)
	ok := auth.Verify(body, headers["X-Ajna-Timestamp"], headers["X-Ajna-Signature"], time.Minute)
	assert.False(t, ok)

	ok = auth.Verify(body, headers["X-Ajna-Timestamp"], headers["X-Ajna-Signature"], 0)
	assert.True(t, ok, "zero skew disables the freshness check")
}

func TestWebhookStringRedactsSecret(t *testing.T) {
	auth := &WebhookAuth{Secret: "supersecretvalue"}
	assert.NotContains(t, auth.String(), "secretvalue")
}
