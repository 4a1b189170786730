package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

const (
	// busChannel carries live JSON event envelopes over Redis Pub/Sub.
	busChannel = "positions"

	// busStream is the durable Redis stream catch-up consumers read from.
	busStream = "positions:events"
)

// Notifier forwards selected events to operator channels. Implemented by
// notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// EventFanout delivers committed ledger and registry events to every
// off-ledger observer: the signal bus (Pub/Sub plus stream), the event store,
// the audit log, operator notifiers, and the metadata cache invalidation
// hook. Delivery failures are logged and never fail the originating
// operation.
type EventFanout struct {
	bus      domain.SignalBus
	events   domain.EventStore
	audit    domain.AuditStore
	meta     domain.MetadataCache
	notifier Notifier
	logger   *slog.Logger
}

var _ domain.EventSink = (*EventFanout)(nil)

// NewEventFanout creates an EventFanout. events and audit are required; bus,
// meta, and notifier may be nil when the corresponding backend is not
// configured.
func NewEventFanout(
	bus domain.SignalBus,
	events domain.EventStore,
	audit domain.AuditStore,
	meta domain.MetadataCache,
	notifier Notifier,
	logger *slog.Logger,
) *EventFanout {
	return &EventFanout{
		bus:      bus,
		events:   events,
		audit:    audit,
		meta:     meta,
		notifier: notifier,
		logger:   logger,
	}
}

// Emit fans a committed event out to all configured observers.
func (f *EventFanout) Emit(ctx context.Context, ev domain.Event) {
	rec := buildRecord(ev)

	if f.bus != nil {
		envelope, err := json.Marshal(busEnvelope(rec))
		if err != nil {
			f.logger.WarnContext(ctx, "service: marshal event envelope failed",
				slog.String("event", rec.Name),
				slog.String("error", err.Error()),
			)
		} else {
			if err := f.bus.Publish(ctx, busChannel, envelope); err != nil {
				f.logger.WarnContext(ctx, "service: publish event failed",
					slog.String("event", rec.Name),
					slog.String("error", err.Error()),
				)
			}
			if err := f.bus.StreamAppend(ctx, busStream, envelope); err != nil {
				f.logger.WarnContext(ctx, "service: stream append failed",
					slog.String("event", rec.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if err := f.events.Append(ctx, rec); err != nil {
		f.logger.WarnContext(ctx, "service: event store append failed",
			slog.String("event", rec.Name),
			slog.Uint64("token_id", rec.TokenID),
			slog.String("error", err.Error()),
		)
	}

	if err := f.audit.Log(ctx, rec.Name, rec.Payload); err != nil {
		f.logger.WarnContext(ctx, "service: audit log failed",
			slog.String("event", rec.Name),
			slog.String("error", err.Error()),
		)
	}

	if f.meta != nil && mutatesPosition(rec.Name) {
		if err := f.meta.Invalidate(ctx, rec.TokenID); err != nil {
			f.logger.WarnContext(ctx, "service: metadata invalidation failed",
				slog.Uint64("token_id", rec.TokenID),
				slog.String("error", err.Error()),
			)
		}
	}

	if f.notifier != nil {
		title, message := describe(ev, rec)
		if err := f.notifier.Notify(ctx, rec.Name, title, message); err != nil {
			f.logger.WarnContext(ctx, "service: notifier dispatch failed",
				slog.String("event", rec.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// mutatesPosition reports whether an event can change a token's metadata
// payload (pool binding or live bucket set) and therefore must invalidate
// the cached copy.
func mutatesPosition(name string) bool {
	switch name {
	case domain.EventMint,
		domain.EventBurn,
		domain.EventIncreaseLiquidity,
		domain.EventDecreaseLiquidity,
		domain.EventDecreaseLiquidityUnits,
		domain.EventMemorializePosition:
		return true
	}
	return false
}

// buildRecord converts a typed event into the flat persisted form shared by
// the bus envelope, the event store, and the audit log.
func buildRecord(ev domain.Event) domain.EventRecord {
	rec := domain.EventRecord{
		ID:        uuid.NewString(),
		Name:      ev.EventName(),
		CreatedAt: time.Now().UTC(),
	}

	switch e := ev.(type) {
	case domain.MintEvent:
		rec.TokenID = e.TokenID
		rec.Pool = e.Pool
		rec.Payload = map[string]any{
			"token_id":  e.TokenID,
			"recipient": e.Recipient.Hex(),
			"pool":      e.Pool.Hex(),
		}
	case domain.BurnEvent:
		rec.TokenID = e.TokenID
		rec.Payload = map[string]any{
			"token_id": e.TokenID,
			"caller":   e.Caller.Hex(),
			"bucket":   e.Bucket,
		}
	case domain.IncreaseLiquidityEvent:
		rec.TokenID = e.TokenID
		rec.Payload = map[string]any{
			"token_id":  e.TokenID,
			"recipient": e.Recipient.Hex(),
			"bucket":    e.Bucket,
			"amount":    bigString(e.Amount),
		}
	case domain.DecreaseLiquidityEvent:
		rec.TokenID = e.TokenID
		rec.Payload = map[string]any{
			"token_id":   e.TokenID,
			"recipient":  e.Recipient.Hex(),
			"bucket":     e.Bucket,
			"collateral": bigString(e.Collateral),
			"quote":      bigString(e.Quote),
		}
	case domain.DecreaseLiquidityUnitsEvent:
		rec.TokenID = e.TokenID
		rec.Payload = map[string]any{
			"token_id":  e.TokenID,
			"recipient": e.Recipient.Hex(),
			"bucket":    e.Bucket,
			"units":     e.Units,
			"quote":     bigString(e.Quote),
		}
	case domain.MemorializePositionEvent:
		rec.TokenID = e.TokenID
		rec.Payload = map[string]any{
			"token_id": e.TokenID,
			"owner":    e.Owner.Hex(),
		}
	case domain.TransferEvent:
		rec.TokenID = e.TokenID
		rec.Payload = map[string]any{
			"token_id": e.TokenID,
			"from":     e.From.Hex(),
			"to":       e.To.Hex(),
		}
	case domain.ApprovalEvent:
		rec.TokenID = e.TokenID
		rec.Payload = map[string]any{
			"token_id": e.TokenID,
			"owner":    e.Owner.Hex(),
			"approved": e.Approved.Hex(),
		}
	case domain.ApprovalForAllEvent:
		rec.Payload = map[string]any{
			"owner":    e.Owner.Hex(),
			"operator": e.Operator.Hex(),
			"approved": e.Approved,
		}
	default:
		rec.Payload = map[string]any{}
	}

	return rec
}

// busEnvelope is the flat JSON shape published on the signal bus.
func busEnvelope(rec domain.EventRecord) map[string]any {
	env := map[string]any{
		"id":    rec.ID,
		"event": rec.Name,
		"at":    rec.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range rec.Payload {
		env[k] = v
	}
	return env
}

// describe builds the operator notification title and message for an event.
func describe(ev domain.Event, rec domain.EventRecord) (string, string) {
	var title string
	switch ev.(type) {
	case domain.MintEvent:
		title = "Position minted"
	case domain.BurnEvent:
		title = "Position burned"
	case domain.IncreaseLiquidityEvent:
		title = "Liquidity added"
	case domain.DecreaseLiquidityEvent:
		title = "Liquidity removed"
	case domain.DecreaseLiquidityUnitsEvent:
		title = "Collateral units removed"
	case domain.MemorializePositionEvent:
		title = "Position memorialized"
	case domain.TransferEvent:
		title = "Position transferred"
	case domain.ApprovalEvent:
		title = "Approval updated"
	case domain.ApprovalForAllEvent:
		title = "Operator approval updated"
	default:
		title = rec.Name
	}

	parts := make([]string, 0, len(rec.Payload))
	if rec.TokenID > 0 {
		parts = append(parts, fmt.Sprintf("token %d", rec.TokenID))
	}
	for _, key := range []string{"pool", "bucket", "amount", "collateral", "quote"} {
		if v, ok := rec.Payload[key]; ok {
			parts = append(parts, fmt.Sprintf("%s %v", key, v))
		}
	}
	return title, strings.Join(parts, ", ")
}

// bigString formats a big.Int payload field, treating nil as zero.
func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
