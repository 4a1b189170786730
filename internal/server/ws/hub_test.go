package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

type fakeBus struct {
	mu       sync.Mutex
	channels map[string]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{channels: make(map[string]chan []byte)}
}

func (b *fakeBus) Publish(context.Context, string, []byte) error      { return nil }
func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 8)
	b.channels[channel] = ch
	return ch, nil
}

func (b *fakeBus) push(t *testing.T, channel string, payload []byte) {
	t.Helper()
	b.mu.Lock()
	ch, ok := b.channels[channel]
	b.mu.Unlock()
	require.True(t, ok, "hub must have subscribed to %s", channel)
	ch <- payload
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeBinaryRoundTrip(t *testing.T) {
	envelope := map[string]any{
		"id":       "rec-1",
		"event":    "mint",
		"token_id": float64(7),
		"pool":     "0x000000000000000000000000000000000000000A",
	}
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)

	data, err := encodeBinary(raw)
	require.NoError(t, err, "JSON envelopes must repack as protobuf")

	var s structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &s), "output must be a protobuf Struct")
	assert.Equal(t, envelope, s.AsMap())
}

func TestEncodeBinaryRejectsNonObjectPayload(t *testing.T) {
	_, err := encodeBinary([]byte("not json"))
	assert.Error(t, err)
}

func TestClientSubscriptionMatching(t *testing.T) {
	c := &client{subs: map[string]bool{"positions": true}}

	assert.True(t, c.isSubscribed("positions"))
	assert.False(t, c.isSubscribed("orders"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"positions:*"}})
	assert.True(t, c.isSubscribed("positions:events"), "trailing wildcard matches by prefix")

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"positions"}})
	assert.False(t, c.isSubscribed("positions"))

	c.handleSubscription(subscribeMsg{Unsubscribe: []string{"positions:*"}})
	assert.False(t, c.isSubscribed("positions:events"), "compat fields manage the same set")
}

func TestHandleSubscriptionSwitchesFormat(t *testing.T) {
	c := &client{subs: make(map[string]bool)}
	require.False(t, c.wantsBinary(), "JSON is the default")

	c.handleSubscription(subscribeMsg{Format: "binary"})
	assert.True(t, c.wantsBinary())

	c.handleSubscription(subscribeMsg{Format: "json"})
	assert.False(t, c.wantsBinary())
}

func TestHubRoutesBusMessagesToSubscribers(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, testLogger(), Config{Mode: "serve", PoolBackend: "sim"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	subscribed := &client{hub: hub, send: make(chan []byte, 4), subs: map[string]bool{"positions": true}}
	other := &client{hub: hub, send: make(chan []byte, 4), subs: map[string]bool{"orders": true}}
	hub.register <- subscribed
	hub.register <- other

	// Wait for the bus subscription goroutine to attach.
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		_, ok := bus.channels["positions"]
		return ok
	}, time.Second, 5*time.Millisecond)

	payload := []byte(`{"event":"mint","token_id":1}`)
	bus.push(t, "positions", payload)

	select {
	case got := <-subscribed.send:
		assert.Equal(t, payload, got)
	case <-time.After(time.Second):
		t.Fatal("subscribed client never received the broadcast")
	}

	select {
	case got := <-other.send:
		t.Fatalf("unsubscribed client received %s", got)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("hub did not stop on context cancel")
	}
}
