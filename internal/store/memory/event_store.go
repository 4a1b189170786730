package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// EventStore keeps the event log in an append-ordered slice.
type EventStore struct {
	mu      sync.RWMutex
	records []domain.EventRecord
}

var _ domain.EventStore = (*EventStore)(nil)

func NewEventStore() *EventStore {
	return &EventStore{}
}

func (s *EventStore) Append(_ context.Context, rec domain.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// ListByToken returns a token's events newest first, matching the Postgres
// store's ordering.
func (s *EventStore) ListByToken(_ context.Context, tokenID uint64, opts domain.ListOpts) ([]domain.EventRecord, error) {
	s.mu.RLock()
	var out []domain.EventRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.TokenID != tokenID {
			continue
		}
		if opts.Since != nil && rec.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && !rec.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()
	return paginate(out, opts), nil
}

func (s *EventStore) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EventRecord
	for _, rec := range s.records {
		if !rec.CreatedAt.Before(before) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *EventStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, rec := range s.records {
		if rec.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

func (s *EventStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}
