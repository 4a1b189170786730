package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/brianmcmichael/ajna-core/internal/crypto"
)

// WebhookSender delivers notifications to an arbitrary consumer endpoint as
// signed JSON. Receivers verify origin and freshness with the HMAC headers
// produced by crypto.WebhookAuth.
type WebhookSender struct {
	url    string
	auth   *crypto.WebhookAuth
	client *http.Client
}

// NewWebhookSender creates a WebhookSender posting to the given URL. If
// secret is non-empty, every delivery carries signature headers.
func NewWebhookSender(url, secret string) *WebhookSender {
	s := &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	if secret != "" {
		s.auth = &crypto.WebhookAuth{Secret: secret}
	}
	return s
}

// Send posts the event payload to the consumer endpoint. Unlike the chat
// senders, the event name travels in the body so receivers can route on it.
// The signature covers the exact bytes on the wire, so the payload is
// marshaled once and sent as-is.
func (s *WebhookSender) Send(ctx context.Context, event, title, message string) error {
	body, err := json.Marshal(map[string]string{
		"event":   event,
		"title":   title,
		"message": message,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.auth != nil {
		for k, v := range s.auth.Headers(body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Name returns the sender identifier.
func (s *WebhookSender) Name() string {
	return "webhook"
}
