// Package realtime delivers insert events for newly created records over a
// websocket subscription scoped to one user.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/fumikura/outfeed"
)

const (
	heartbeatInterval = 30 * time.Second
	reconnectBase     = time.Second
	maxReconnects     = 8
)

// listenRequest subscribes the connection to one owner's insert events.
type listenRequest struct {
	Type  string `json:"type"`
	Owner string `json:"owner,omitempty"`
}

// Channel dials the backend's realtime endpoint. A Channel is cheap and
// holds no connection itself; each Subscribe opens one.
type Channel struct {
	endpoint string
	token    string
	dialer   *websocket.Dialer
}

// NewChannel creates a channel against endpoint, which may use an http(s)
// or ws(s) scheme.
func NewChannel(endpoint, token string) *Channel {
	endpoint = strings.TrimSuffix(endpoint, "/")
	if after, ok := strings.CutPrefix(endpoint, "http"); ok {
		endpoint = "ws" + after
	}
	return &Channel{
		endpoint: endpoint,
		token:    token,
		dialer:   websocket.DefaultDialer,
	}
}

// Subscription is one live subscription. Unsubscribe is idempotent and safe
// to call while a delivery is in flight; at most one delivery may still be
// observed by the callback's owner after teardown.
type Subscription struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	cancel context.CancelFunc
}

// Subscribe opens a subscription delivering one onInsert call per insert
// event observed for userID, in delivery order. A dropped connection is
// re-dialed with backoff; events that occurred during the gap are lost and
// not backfilled.
func (c *Channel) Subscribe(ctx context.Context, userID string, onInsert func(outfeed.Record)) (*Subscription, error) {
	conn, err := c.dial(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to open realtime subscription: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{conn: conn, cancel: cancel}

	go sub.heartbeat(ctx)
	go c.run(ctx, sub, userID, onInsert)

	return sub, nil
}

func authHeader(token string) http.Header {
	if token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func (c *Channel) dial(ctx context.Context, userID string) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint+"/realtime", authHeader(c.token))
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(listenRequest{Type: "listen", Owner: userID}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Channel) run(ctx context.Context, sub *Subscription, userID string, onInsert func(outfeed.Record)) {
	for {
		conn := sub.current()
		if conn == nil {
			return
		}

		var ev outfeed.Event
		err := conn.ReadJSON(&ev)
		if err == nil {
			if ev.Type == outfeed.EventInsert && ev.Record.OwnerID == userID && !sub.done() {
				onInsert(ev.Record)
			}
			continue
		}

		if sub.done() || ctx.Err() != nil {
			return
		}

		wsErr, ok := err.(*websocket.CloseError)
		if !ok || !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
			slog.DebugContext(
				ctx, "Realtime connection lost",
				slog.String("error", err.Error()),
				slog.String("module", "realtime"),
			)
		}

		if err := c.reconnect(ctx, sub, userID); err != nil {
			slog.ErrorContext(
				ctx, "Realtime reconnect gave up",
				slog.String("error", err.Error()),
				slog.String("module", "realtime"),
			)
			return
		}
	}
}

// reconnect re-dials with fibonacci backoff. Events that happened while
// disconnected are silently missed.
func (c *Channel) reconnect(ctx context.Context, sub *Subscription, userID string) error {
	backoff := retry.WithMaxRetries(maxReconnects, retry.NewFibonacci(reconnectBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if sub.done() {
			return nil
		}
		conn, err := c.dial(ctx, userID)
		if err != nil {
			return retry.RetryableError(err)
		}
		if !sub.swap(conn) {
			conn.Close()
		}
		return nil
	})
}

// Unsubscribe tears the subscription down. Calling it again, or on an
// already torn-down subscription, is a no-op.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Subscription) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Write failures surface on the read side.
			s.writeJSON(listenRequest{Type: outfeed.EventHeartbeat})
		}
	}
}

func (s *Subscription) writeJSON(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		return
	}
	_ = s.conn.WriteJSON(v)
}

func (s *Subscription) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.conn
}

func (s *Subscription) swap(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	return true
}

func (s *Subscription) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
