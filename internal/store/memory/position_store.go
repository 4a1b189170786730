// Package memory provides in-process store implementations backing the
// service when no database is configured, and the test fixtures.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// PositionStore keeps position records and the identity counter in maps.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[uint64]domain.Position
	nextID    uint64
}

var _ domain.PositionStore = (*PositionStore)(nil)

func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[uint64]domain.Position)}
}

func (s *PositionStore) Save(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.TokenID] = pos.Clone()
	return nil
}

func (s *PositionStore) Delete(_ context.Context, tokenID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, tokenID)
	return nil
}

func (s *PositionStore) GetByID(_ context.Context, tokenID uint64) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[tokenID]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: position %d: %w", tokenID, domain.ErrNotFound)
	}
	return pos.Clone(), nil
}

func (s *PositionStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.RLock()
	out := make([]domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, pos.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return paginate(out, opts), nil
}

func (s *PositionStore) NextTokenID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nextID == 0 {
		return 1, nil
	}
	return s.nextID, nil
}

func (s *PositionStore) SetNextTokenID(_ context.Context, next uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = next
	return nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
