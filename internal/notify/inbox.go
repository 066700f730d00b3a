package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/observability"
	"trade-desk-gateway/internal/storage"
)

// Inbox is the client-side cache of notification records. It is fed from two
// paths: REST refreshes, which rebuild the cache wholesale from the server
// response, and push events, which are prepended without a round-trip. All
// mutations funnel through the inbox; readers get snapshots.
//
// Every REST result is tagged with the credential generation current when the
// request was issued. Results for a superseded (identity, token) pair are
// discarded so a stale response can never repopulate the cache.
type Inbox struct {
	client  *Client
	archive storage.NotificationStore // optional durable archive

	mu         sync.RWMutex
	identity   string
	token      string
	generation uint64
	list       []domain.Notification
	settings   *domain.NotificationSettings

	log *logrus.Entry
}

// ErrNoCredentials is returned by operations that require an authenticated
// session before SetCredentials has been called.
var ErrNoCredentials = errors.New("no credentials set")

// NewInbox creates an inbox backed by the given API client. archive may be
// nil; when set, push-delivered records are also persisted.
func NewInbox(client *Client, archive storage.NotificationStore) *Inbox {
	return &Inbox{
		client:  client,
		archive: archive,
		log:     logrus.WithField("component", "inbox"),
	}
}

// SetCredentials installs a new (identity, token) pair, clears the cached
// state, and bumps the credential generation so in-flight responses for the
// previous pair are discarded on arrival.
func (b *Inbox) SetCredentials(identity, token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identity = identity
	b.token = token
	b.generation++
	b.list = nil
	b.settings = nil
}

// credentials snapshots the current pair and generation.
func (b *Inbox) credentials() (identity, token string, gen uint64, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.identity == "" || b.token == "" {
		return "", "", 0, ErrNoCredentials
	}
	return b.identity, b.token, b.generation, nil
}

// Refresh rebuilds the cache from the server's list response. The cache is
// replaced wholesale, never merged, so it cannot drift from the server.
func (b *Inbox) Refresh(ctx context.Context) error {
	identity, token, gen, err := b.credentials()
	if err != nil {
		return err
	}

	list, err := b.client.FetchList(ctx, identity, token)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		b.log.Debug("discarding list response for superseded credentials")
		return nil
	}
	b.list = list
	return nil
}

// RefreshSettings fetches and caches the account's notification settings.
func (b *Inbox) RefreshSettings(ctx context.Context) (*domain.NotificationSettings, error) {
	identity, token, gen, err := b.credentials()
	if err != nil {
		return nil, err
	}

	settings, err := b.client.FetchSettings(ctx, identity, token)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		b.log.Debug("discarding settings response for superseded credentials")
		return settings, nil
	}
	b.settings = settings
	return settings, nil
}

// Apply prepends a push-delivered notification ahead of the cached records.
// This is the only mutation path that does not refetch.
func (b *Inbox) Apply(ctx context.Context, n domain.Notification) {
	b.mu.Lock()
	b.list = append([]domain.Notification{n}, b.list...)
	identity := b.identity
	b.mu.Unlock()

	observability.RecordNotificationReceived()

	if b.archive != nil && identity != "" {
		err := b.archive.Insert(ctx, identity, &n)
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			b.log.WithError(err).Warn("archive notification")
		}
	}
}

// Run consumes transport events and applies them sequentially, preserving
// arrival order. Returns when the channel closes or ctx is cancelled.
func (b *Inbox) Run(ctx context.Context, events <-chan domain.NotificationEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			b.log.WithField("id", event.Payload.ID).Info("notification received")
			b.Apply(ctx, event.Payload)
		}
	}
}

// MarkSeen flags ids as seen in one batched call, then rebuilds the cache
// from the server. Ids already seen in the cache are dropped from the batch;
// an empty batch issues no request.
func (b *Inbox) MarkSeen(ctx context.Context, ids []int64) error {
	identity, token, _, err := b.credentials()
	if err != nil {
		return err
	}

	b.mu.RLock()
	seen := make(map[int64]bool, len(b.list))
	for _, n := range b.list {
		seen[n.ID] = n.Seen
	}
	b.mu.RUnlock()

	batch := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			batch = append(batch, id)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	if err := b.client.MarkSeen(ctx, identity, token, batch); err != nil {
		observability.RecordAPIError("mark_seen")
		return err
	}
	observability.RecordMarkedSeen(len(batch))

	if b.archive != nil {
		if err := b.archive.MarkSeen(ctx, identity, batch); err != nil {
			b.log.WithError(err).Warn("archive mark seen")
		}
	}

	return b.Refresh(ctx)
}

// MarkAllSeen marks every currently-unseen record seen in a single batched
// call. Called when the inbox view becomes visible.
func (b *Inbox) MarkAllSeen(ctx context.Context) error {
	return b.MarkSeen(ctx, b.unseenIDs())
}

// unseenIDs collects ids of cached records not yet seen.
func (b *Inbox) unseenIDs() []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var ids []int64
	for _, n := range b.list {
		if !n.Seen {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Snapshot returns a copy of the cached notification list.
func (b *Inbox) Snapshot() []domain.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]domain.Notification, len(b.list))
	copy(out, b.list)
	return out
}

// UnseenCount reports how many cached records are unseen.
func (b *Inbox) UnseenCount() int {
	return len(b.unseenIDs())
}

// Settings returns the cached settings, or nil before the first refresh.
func (b *Inbox) Settings() *domain.NotificationSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}
