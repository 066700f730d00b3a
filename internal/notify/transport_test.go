package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"trade-desk-gateway/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testTransportConfig() TransportConfig {
	cfg := DefaultTransportConfig()
	cfg.KeepaliveInterval = 20 * time.Millisecond
	cfg.RetryDelay = 20 * time.Millisecond
	cfg.HandshakeTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	return cfg
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestNewTransport_MissingCredentials(t *testing.T) {
	if _, err := NewTransport("ws://example", "", "identity", nil); err != ErrMissingCredentials {
		t.Errorf("empty token: expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewTransport("ws://example", "token", "", nil); err != ErrMissingCredentials {
		t.Errorf("empty identity: expected ErrMissingCredentials, got %v", err)
	}
}

func TestTransport_DialSendsCredentials(t *testing.T) {
	var gotAuth, gotKey atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.URL.Query().Get("authorization"))
		gotKey.Store(r.URL.Query().Get("publickey"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok123", "pubkey456", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	if gotAuth.Load() != "tok123" {
		t.Errorf("expected authorization tok123, got %v", gotAuth.Load())
	}
	if gotKey.Load() != "pubkey456" {
		t.Errorf("expected publickey pubkey456, got %v", gotKey.Load())
	}
}

func TestTransport_DispatchesNewNotificationEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		payload := `{"eventType":"newNotification","payload":{"id":7,"title":"Fill","content":"order filled","createdAt":"2026-01-01T00:00:00Z","seen":false}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
			return
		}
		// Noise that must be ignored.
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"eventType":"somethingElse"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	select {
	case event := <-tr.Events():
		if event.EventType != domain.EventNewNotification {
			t.Errorf("expected eventType %q, got %q", domain.EventNewNotification, event.EventType)
		}
		if event.Payload.ID != 7 {
			t.Errorf("expected notification id 7, got %d", event.Payload.ID)
		}
		if event.Payload.Title != "Fill" {
			t.Errorf("expected title Fill, got %q", event.Payload.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	// The malformed and unknown messages must not surface as events.
	select {
	case event, ok := <-tr.Events():
		if ok {
			t.Errorf("unexpected extra event: %+v", event)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTransport_SendsKeepalive(t *testing.T) {
	received := make(chan string, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case received <- string(msg):
			default:
			}
		}
	}))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	select {
	case msg := <-received:
		if msg != "ping" {
			t.Errorf("expected keepalive %q, got %q", "ping", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for keepalive")
	}
}

func TestTransport_NoRetryOnNormalClose(t *testing.T) {
	var dials atomic.Int32

	server := httptest.NewServer(serverClosingWith(t, websocket.CloseNormalClosure, &dials))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate on normal close")
	}

	if got := tr.RetryCount(); got != 0 {
		t.Errorf("expected 0 retries, got %d", got)
	}
	if got := dials.Load(); got != 1 {
		t.Errorf("expected 1 connection, got %d", got)
	}
}

func TestTransport_NoRetryOnUnauthorizedClose(t *testing.T) {
	var dials atomic.Int32

	server := httptest.NewServer(serverClosingWith(t, websocket.ClosePolicyViolation, &dials))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate on unauthorized close")
	}

	if got := tr.RetryCount(); got != 0 {
		t.Errorf("expected 0 retries, got %d", got)
	}
	if got := dials.Load(); got != 1 {
		t.Errorf("expected 1 connection, got %d", got)
	}
}

func TestTransport_RetriesOnAbnormalClose(t *testing.T) {
	var dials atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		if n == 1 {
			// Drop the first connection without a close frame.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	deadline := time.After(2 * time.Second)
	for dials.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected a reconnect, saw %d connections", dials.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case <-tr.Done():
		t.Fatal("session terminated despite successful reconnect")
	case <-time.After(100 * time.Millisecond):
	}

	if got := tr.RetryCount(); got != 1 {
		t.Errorf("expected 1 retry, got %d", got)
	}
}

func TestTransport_RetryBudgetExhausted(t *testing.T) {
	var dials atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn.Close()
	}))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate after exhausting retries")
	}

	// Initial connection plus one per retry.
	if got := dials.Load(); got != int32(cfg.MaxRetries)+1 {
		t.Errorf("expected %d connections, got %d", cfg.MaxRetries+1, got)
	}
	if got := tr.RetryCount(); got != cfg.MaxRetries {
		t.Errorf("expected %d retries, got %d", cfg.MaxRetries, got)
	}
}

func TestTransport_CloseIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
	if got := tr.RetryCount(); got != 0 {
		t.Errorf("Close must not schedule retries, got %d", got)
	}
}

func TestTransport_RedialReplacesConnection(t *testing.T) {
	var dials atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := testTransportConfig()
	tr, err := NewTransport(wsURL(server), "tok", "key", &cfg)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	if err := tr.Dial(context.Background()); err != nil {
		t.Fatalf("second Dial: %v", err)
	}
	defer tr.Close()

	if got := dials.Load(); got != 2 {
		t.Errorf("expected 2 connections, got %d", got)
	}

	// The replaced connection was closed normally, so no retry fires.
	time.Sleep(2 * cfg.RetryDelay)
	if got := tr.RetryCount(); got != 0 {
		t.Errorf("expected 0 retries after redial, got %d", got)
	}
}

// serverClosingWith upgrades each connection and immediately closes it with
// the given close code.
func serverClosingWith(t *testing.T, code int, dials *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		msg := websocket.FormatCloseMessage(code, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			return
		}
		// Wait for the peer's close response.
		conn.SetReadDeadline(time.Now().Add(time.Second))
		conn.ReadMessage()
	}
}
