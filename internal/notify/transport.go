package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trade-desk-gateway/internal/domain"
	"trade-desk-gateway/internal/observability"
)

// Transport errors.
var (
	// ErrMissingCredentials is returned when token or identity is empty.
	// Without credentials no connection is attempted and no keepalive runs.
	ErrMissingCredentials = errors.New("missing token or identity")

	// ErrTransportClosed is returned when dialing a closed transport.
	ErrTransportClosed = errors.New("transport closed")
)

// TransportConfig configures the push-feed connection behavior.
type TransportConfig struct {
	// KeepaliveInterval is the interval between keepalive text frames.
	KeepaliveInterval time.Duration
	// RetryDelay is the fixed delay before a reconnect attempt.
	RetryDelay time.Duration
	// MaxRetries bounds reconnect attempts per session.
	MaxRetries int
	// HandshakeTimeout is the dial timeout.
	HandshakeTimeout time.Duration
	// WriteTimeout is the timeout for writing frames.
	WriteTimeout time.Duration
	// EventBuffer is the capacity of the outbound event channel.
	EventBuffer int
}

// DefaultTransportConfig returns the production configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		KeepaliveInterval: 30 * time.Second,
		RetryDelay:        5 * time.Second,
		MaxRetries:        2,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		EventBuffer:       64,
	}
}

// keepaliveText is the literal client->server keepalive payload.
const keepaliveText = "ping"

// Close codes handled deliberately: 1000 is a client-initiated normal close,
// 1008 is the server signalling an unauthorized session. Neither is retried.
// Any other code is retried up to MaxRetries after a fixed delay.

// Transport maintains a single live connection to the notification push
// endpoint for one (token, identity) pair. Inbound push messages are parsed
// and emitted as typed events on Events; the transport never persists
// notifications itself.
type Transport struct {
	endpoint string
	token    string
	identity string
	config   TransportConfig

	conn          *websocket.Conn
	keepaliveStop chan struct{}
	retryTimer    *time.Timer
	connMu        sync.Mutex

	closed     atomic.Bool
	retryCount atomic.Int32

	events    chan domain.NotificationEvent
	done      chan struct{}
	terminate sync.Once
	wg        sync.WaitGroup

	log *logrus.Entry
}

// NewTransport creates a transport for the given credentials. It does not
// connect; call Dial. Returns ErrMissingCredentials if token or identity is
// empty.
func NewTransport(endpoint, token, identity string, config *TransportConfig) (*Transport, error) {
	if token == "" || identity == "" {
		return nil, ErrMissingCredentials
	}

	cfg := DefaultTransportConfig()
	if config != nil {
		cfg = *config
	}

	return &Transport{
		endpoint: endpoint,
		token:    token,
		identity: identity,
		config:   cfg,
		events:   make(chan domain.NotificationEvent, cfg.EventBuffer),
		done:     make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"component": "notify_transport",
			"identity":  identity,
		}),
	}, nil
}

// Events returns the channel of inbound notification events. It is closed
// when the session terminates.
func (t *Transport) Events() <-chan domain.NotificationEvent {
	return t.events
}

// Done is closed when the session has terminated: explicit Close, an
// unauthorized close, or exhaustion of the retry budget.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// RetryCount reports how many reconnects this session has attempted.
func (t *Transport) RetryCount() int {
	return int(t.retryCount.Load())
}

// Dial establishes the connection, embedding the token and identity as
// query parameters. Any existing open connection is first closed with a
// normal-closure code so its close handler does not schedule a retry.
func (t *Transport) Dial(ctx context.Context) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.closed.Load() {
		return ErrTransportClosed
	}

	if t.conn != nil {
		t.closeConn(t.conn)
		t.conn = nil
	}

	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("parse push endpoint: %w", err)
	}
	q := u.Query()
	q.Set("authorization", t.token)
	q.Set("publickey", t.identity)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: t.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial push endpoint: %w", err)
	}

	t.log.Debug("notifications feed opened")

	t.conn = conn
	stop := make(chan struct{})
	t.keepaliveStop = stop

	t.wg.Add(2)
	go t.readLoop(conn, stop)
	go t.keepaliveLoop(conn, stop)

	return nil
}

// closeConn sends a normal-closure frame and closes conn. Safe to call
// on an already-failed connection; write errors are ignored.
func (t *Transport) closeConn(conn *websocket.Conn) {
	deadline := time.Now().Add(t.config.WriteTimeout)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	conn.Close()
}

// Close tears down the session. Idempotent: closing an already-closed
// transport is a no-op and never schedules a retry.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}

	t.connMu.Lock()
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	if conn != nil {
		t.closeConn(conn)
	}

	t.wg.Wait()
	t.finish()
	return nil
}

// finish marks the session terminated and closes the outbound channels.
func (t *Transport) finish() {
	t.terminate.Do(func() {
		close(t.done)
		close(t.events)
	})
}

// readLoop reads push messages until the connection fails, then hands the
// close code to the retry logic.
func (t *Transport) readLoop(conn *websocket.Conn, stop chan struct{}) {
	defer t.wg.Done()

	closeCode := websocket.CloseAbnormalClosure
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				closeCode = ce.Code
			}
			if !t.closed.Load() {
				t.log.WithField("code", closeCode).Debug("notifications feed closed")
			}
			break
		}
		t.dispatch(message)
	}

	// Keepalive stops with its connection, never outlives it.
	close(stop)

	t.handleClose(conn, closeCode)
}

// handleClose drives the bounded reconnect. A close with code 1000 or 1008,
// or a spent retry budget, terminates the session.
func (t *Transport) handleClose(conn *websocket.Conn, code int) {
	t.connMu.Lock()

	if t.conn != conn {
		// Superseded by a newer connection (or explicit Close); the
		// replacement owns the session now.
		t.connMu.Unlock()
		return
	}
	t.conn = nil

	if t.closed.Load() {
		t.connMu.Unlock()
		return
	}

	retryable := code != websocket.CloseNormalClosure &&
		code != websocket.ClosePolicyViolation &&
		int(t.retryCount.Load()) < t.config.MaxRetries

	if !retryable {
		t.connMu.Unlock()
		t.finish()
		return
	}

	t.retryCount.Add(1)
	observability.RecordFeedReconnect()
	t.log.WithFields(logrus.Fields{
		"code":  code,
		"retry": t.retryCount.Load(),
	}).Warn("notifications feed lost, reconnecting")

	t.retryTimer = time.AfterFunc(t.config.RetryDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.config.HandshakeTimeout)
		defer cancel()
		if err := t.Dial(ctx); err != nil {
			if !errors.Is(err, ErrTransportClosed) {
				t.log.WithError(err).Error("reconnect failed")
				t.finish()
			}
		}
	})
	t.connMu.Unlock()
}

// keepaliveLoop sends the keepalive text frame while the connection is open.
// A failed send is ignored; the reader observes the broken connection and
// drives the close path.
func (t *Transport) keepaliveLoop(conn *websocket.Conn, stop chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(keepaliveText)); err != nil {
				return
			}
		}
	}
}

// dispatch parses an inbound message and emits typed events. Unrecognized
// messages are ignored.
func (t *Transport) dispatch(message []byte) {
	var event domain.NotificationEvent
	if err := json.Unmarshal(message, &event); err != nil {
		t.log.WithError(err).Debug("unparseable push message")
		return
	}

	if event.EventType != domain.EventNewNotification {
		return
	}

	select {
	case t.events <- event:
	case <-t.done:
	}
}
