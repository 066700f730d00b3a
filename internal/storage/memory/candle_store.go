package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// Re-fetched candles overwrite earlier ones with the same key, matching the
// collapse semantics of the ClickHouse table.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StoredCandle // keyed by composite key
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.StoredCandle),
	}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// candleKey generates a unique key for an archived candle.
func candleKey(tokenID string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", tokenID, timestampMs)
}

// InsertBatch appends candles. Duplicates overwrite.
func (s *CandleStore) InsertBatch(_ context.Context, candles []*domain.StoredCandle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		if c == nil || c.TokenID == "" {
			return storage.ErrInvalidInput
		}
		copy := *c
		s.data[candleKey(c.TokenID, c.TimestampMs)] = &copy
	}
	return nil
}

// GetByTimeRange retrieves candles for a token within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(_ context.Context, tokenID string, start, end int64) ([]*domain.StoredCandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StoredCandle
	for _, c := range s.data {
		if c.TokenID != tokenID || c.TimestampMs < start || c.TimestampMs > end {
			continue
		}
		copy := *c
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}
