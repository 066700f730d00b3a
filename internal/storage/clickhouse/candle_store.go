package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse. The archive is
// best-effort: the chart fetcher writes candles here as it sees them, and the
// ReplacingMergeTree table collapses duplicate (token_id, timestamp_ms) rows.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBatch appends candles. Duplicates are tolerated.
func (s *CandleStore) InsertBatch(ctx context.Context, candles []*domain.StoredCandle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			token_id, timestamp_ms, open, high, low, close
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		if c == nil || c.TokenID == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			c.TokenID, uint64(c.TimestampMs),
			c.Open, c.High, c.Low, c.Close,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves candles for a token within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, tokenID string, start, end int64) ([]*domain.StoredCandle, error) {
	query := `
		SELECT token_id, timestamp_ms, open, high, low, close
		FROM candles FINAL
		WHERE token_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// scanCandles scans multiple rows.
func scanCandles(rows driver.Rows) ([]*domain.StoredCandle, error) {
	var candles []*domain.StoredCandle

	for rows.Next() {
		var c domain.StoredCandle
		var timestampMs uint64

		err := rows.Scan(
			&c.TokenID, &timestampMs,
			&c.Open, &c.High, &c.Low, &c.Close,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}

		c.TimestampMs = int64(timestampMs)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
