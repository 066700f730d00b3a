package server

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"trade-desk-gateway/internal/notify"
	"trade-desk-gateway/internal/observability"
)

// Session owns the push-feed lifecycle for the authenticated identity. At
// most one live transport exists; starting a session for new credentials
// closes the old connection before the new one becomes current, so keepalive
// timers never overlap.
type Session struct {
	endpoint string
	inbox    *notify.Inbox

	mu        sync.Mutex
	transport *notify.Transport
	cancel    context.CancelFunc

	log *logrus.Entry
}

// NewSession creates a session manager for the given push endpoint.
func NewSession(endpoint string, inbox *notify.Inbox) *Session {
	return &Session{
		endpoint: endpoint,
		inbox:    inbox,
		log:      logrus.WithField("component", "session"),
	}
}

// Start installs credentials and connects the push feed. Any previous
// transport is torn down first.
func (s *Session) Start(ctx context.Context, identity, token string) error {
	if err := notify.ValidateIdentity(identity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	s.inbox.SetCredentials(identity, token)

	transport, err := notify.NewTransport(s.endpoint, token, identity, nil)
	if err != nil {
		return err
	}
	if err := transport.Dial(ctx); err != nil {
		return err
	}

	s.transport = transport
	applyCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	observability.SetFeedConnected(true)
	go s.inbox.Run(applyCtx, transport.Events())
	go func() {
		<-transport.Done()
		observability.SetFeedConnected(false)
	}()

	// Prime the cache; a failure here is surfaced on the next read.
	go func() {
		if err := s.inbox.Refresh(context.Background()); err != nil {
			s.log.WithError(err).Warn("initial notification refresh failed")
		}
	}()

	s.log.WithField("identity", identity).Info("session started")
	return nil
}

// Stop tears down the transport and apply loop. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
