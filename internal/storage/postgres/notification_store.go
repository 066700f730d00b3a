package postgres

import (
	"context"
	"fmt"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/storage"
)

// NotificationStore implements storage.NotificationStore using PostgreSQL.
type NotificationStore struct {
	pool *Pool
}

// NewNotificationStore creates a new NotificationStore.
func NewNotificationStore(pool *Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.NotificationStore = (*NotificationStore)(nil)

// Insert adds a delivered notification. Returns ErrDuplicateKey if
// (address, notification_id) exists.
func (s *NotificationStore) Insert(ctx context.Context, address string, n *domain.Notification) error {
	if n == nil || address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO notifications (
			address, notification_id, title, content, created_at, seen
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		address, n.ID, n.Title, n.Content, n.CreatedAt, n.Seen,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List retrieves all notifications for an address, newest first.
func (s *NotificationStore) List(ctx context.Context, address string) ([]domain.Notification, error) {
	query := `
		SELECT notification_id, title, content, created_at, seen
		FROM notifications
		WHERE address = $1
		ORDER BY created_at DESC, notification_id DESC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Content, &n.CreatedAt, &n.Seen); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}

	return result, nil
}

// MarkSeen flags the given notification ids as seen. Unknown ids are ignored.
func (s *NotificationStore) MarkSeen(ctx context.Context, address string, ids []int64) error {
	if address == "" {
		return storage.ErrInvalidInput
	}
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE notifications
		SET seen = TRUE
		WHERE address = $1 AND notification_id = ANY($2)
	`

	if _, err := s.pool.Exec(ctx, query, address, ids); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// UnseenIDs retrieves ids of notifications not yet seen, newest first.
func (s *NotificationStore) UnseenIDs(ctx context.Context, address string) ([]int64, error) {
	query := `
		SELECT notification_id
		FROM notifications
		WHERE address = $1 AND seen = FALSE
		ORDER BY created_at DESC, notification_id DESC
	`

	rows, err := s.pool.Query(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("query unseen ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unseen id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unseen ids: %w", err)
	}

	return ids, nil
}
