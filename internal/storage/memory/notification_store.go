package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/storage"
)

// NotificationStore is an in-memory implementation of storage.NotificationStore.
type NotificationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Notification // keyed by composite key
}

// NewNotificationStore creates a new in-memory notification store.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		data: make(map[string]*domain.Notification),
	}
}

// Compile-time interface check.
var _ storage.NotificationStore = (*NotificationStore)(nil)

// notificationKey generates a unique key for a delivered notification.
func notificationKey(address string, id int64) string {
	return fmt.Sprintf("%s|%d", address, id)
}

// Insert adds a delivered notification. Returns ErrDuplicateKey if exists.
func (s *NotificationStore) Insert(_ context.Context, address string, n *domain.Notification) error {
	if n == nil || address == "" {
		return storage.ErrInvalidInput
	}

	key := notificationKey(address, n.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *n
	s.data[key] = &copy
	return nil
}

// List retrieves all notifications for an address, newest first.
func (s *NotificationStore) List(_ context.Context, address string) ([]domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := address + "|"
	var result []domain.Notification
	for key, n := range s.data {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			result = append(result, *n)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// MarkSeen flags the given notification ids as seen. Unknown ids are ignored.
func (s *NotificationStore) MarkSeen(_ context.Context, address string, ids []int64) error {
	if address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if n, ok := s.data[notificationKey(address, id)]; ok {
			n.Seen = true
		}
	}
	return nil
}

// UnseenIDs retrieves ids of notifications not yet seen, newest first.
func (s *NotificationStore) UnseenIDs(ctx context.Context, address string) ([]int64, error) {
	list, err := s.List(ctx, address)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, n := range list {
		if !n.Seen {
			ids = append(ids, n.ID)
		}
	}
	return ids, nil
}
