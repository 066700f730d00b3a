package storage

import (
	"context"

	"trade-desk-gateway/internal/domain"
)

// NotificationStore provides access to the notification archive. Records are
// appended as they are delivered; the only mutation is the seen flag.
type NotificationStore interface {
	// Insert adds a delivered notification for an address.
	// Returns ErrDuplicateKey if (address, id) already exists.
	Insert(ctx context.Context, address string, n *domain.Notification) error

	// List retrieves all notifications for an address, newest first.
	List(ctx context.Context, address string) ([]domain.Notification, error)

	// MarkSeen flags the given notification ids as seen for an address.
	// Unknown ids are ignored.
	MarkSeen(ctx context.Context, address string, ids []int64) error

	// UnseenIDs retrieves ids of notifications not yet seen, newest first.
	UnseenIDs(ctx context.Context, address string) ([]int64, error)
}

// CandleStore provides access to archived OHLC candles.
type CandleStore interface {
	// InsertBatch appends candles for a token. Duplicates are tolerated;
	// the archive is best-effort.
	InsertBatch(ctx context.Context, candles []*domain.StoredCandle) error

	// GetByTimeRange retrieves candles for a token within [start, end]
	// (inclusive, milliseconds), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, tokenID string, start, end int64) ([]*domain.StoredCandle, error)
}
