// Package wsclient maintains the broker's single logical inbound
// stream from the coordination service across reconnects, replaying
// missed broadcasts and resubscribing channels (spec.md §4.1).
package wsclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ConnectionStatus is emitted as a synthetic inbound frame on every
// connect/reconnect/disconnect.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnected  ConnectionStatus = "reconnected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// TokenSource supplies the current bearer token and refreshes it
// after a disconnect (spec.md §4.1 "Token refresh").
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) error
}

// Session owns the reconnect loop for one WS stream.
type Session struct {
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger
	replay  *ReplayRing

	mu            sync.Mutex
	subscriptions []string
}

// New creates a Session for baseURL, authenticating with tokens and
// tracking replay state in replay.
func New(baseURL string, tokens TokenSource, replay *ReplayRing, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{baseURL: baseURL, tokens: tokens, replay: replay, logger: logger}
}

// SetSubscriptions replaces the set of channels subscribed to on
// every (re)connect.
func (s *Session) SetSubscriptions(channels []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = append([]string(nil), channels...)
}

func (s *Session) activeSubscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subscriptions...)
}

// Inbound is a parsed JSON frame delivered to the consumer, tagged
// with whether it's a synthetic session-lifecycle frame or an
// upstream frame.
type Inbound struct {
	Synthetic bool
	Value     map[string]any
}

// Run drives the reconnect loop until ctx is cancelled. Every parsed
// inbound frame (synthetic lifecycle frames and upstream frames
// alike) is sent to out. Run returns when ctx is done.
func (s *Session) Run(ctx context.Context, out chan<- Inbound) {
	var attempt uint32
	hasConnected := false

	for ctx.Err() == nil {
		wsURL, err := s.streamURL(ctx, out, hasConnected)
		if err != nil {
			s.logger.Warn("invalid websocket base url", "base_url", s.baseURL, "error", err)
			attempt++
			if !sleepCtx(ctx, ReconnectDelay(attempt)) {
				return
			}
			continue
		}

		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			s.logger.Warn("ws connect failed", "error", err)
			s.afterDisconnect(ctx, out)
			attempt++
			if !sleepCtx(ctx, ReconnectDelay(attempt)) {
				return
			}
			continue
		}

		status := StatusConnected
		if hasConnected {
			status = StatusReconnected
		}
		hasConnected = true
		attempt = 0
		sendSynthetic(ctx, out, "broker.connection", map[string]any{"status": string(status)})

		s.subscribeAll(ctx, conn, out)

		s.readLoop(ctx, conn, out)
		conn.Close(websocket.StatusNormalClosure, "session ended")

		if ctx.Err() != nil {
			return
		}

		s.afterDisconnect(ctx, out)
		attempt++
		if !sleepCtx(ctx, ReconnectDelay(attempt)) {
			return
		}
	}
}

// streamURL derives the stream URL for the next connection attempt,
// asking the coordination service to replay anything broadcast since
// the last sequence number this session observed. On the very first
// connect (reconnecting is false) there is nothing to replay, so no
// since_seq is sent.
//
// Separately, Since(0) reports whether this session's own replay ring
// has ever evicted its earliest entry — i.e. whether the ring is
// still a complete local record back to the start of the process, or
// whether sustained traffic has already pushed some history out of
// it. Once that's true it stays true: this session can no longer
// vouch for unbroken local coverage, regardless of what the server
// replays, so a broker.replay_gap synthetic frame is emitted once per
// reconnect as a standing caution to the pipeline's consumer.
func (s *Session) streamURL(ctx context.Context, out chan<- Inbound, reconnecting bool) (string, error) {
	if !reconnecting || s.replay == nil {
		return DeriveStreamURL(s.baseURL, s.tokens.Token())
	}

	lastSeq, ok := s.replay.LastSeq()
	if !ok {
		return DeriveStreamURL(s.baseURL, s.tokens.Token())
	}

	if _, gap := s.replay.Since(0); gap {
		sendSynthetic(ctx, out, "broker.replay_gap", map[string]any{"since_seq": uint64(lastSeq)})
	}

	return DeriveStreamURL(s.baseURL, s.tokens.Token(), lastSeq)
}

func (s *Session) subscribeAll(ctx context.Context, conn *websocket.Conn, out chan<- Inbound) {
	channels := s.activeSubscriptions()
	if len(channels) == 0 {
		return
	}

	batch, err := json.Marshal(map[string]any{"type": "subscribe", "channels": channels})
	if err == nil && conn.Write(ctx, websocket.MessageText, batch) == nil {
		for _, ch := range channels {
			sendSynthetic(ctx, out, "broker.channel_join", map[string]any{"channel": ch})
		}
		return
	}

	s.logger.Warn("batched channel subscribe failed; falling back to per-channel subscribe")
	for _, ch := range channels {
		single, merr := json.Marshal(map[string]any{"type": "subscribe", "channel": ch})
		if merr != nil {
			continue
		}
		if werr := conn.Write(ctx, websocket.MessageText, single); werr != nil {
			s.logger.Warn("failed to subscribe channel", "channel", ch, "error", werr)
			continue
		}
		sendSynthetic(ctx, out, "broker.channel_join", map[string]any{"channel": ch})
	}
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- Inbound) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("ws read error", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var value map[string]any
		if err := json.Unmarshal(data, &value); err != nil {
			s.logger.Debug("ignoring non-json text frame", "raw", string(data))
			continue
		}
		if s.replay != nil {
			s.replay.Push(data)
		}

		select {
		case out <- Inbound{Value: value}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) afterDisconnect(ctx context.Context, out chan<- Inbound) {
	sendSynthetic(ctx, out, "broker.connection", map[string]any{"status": string(StatusDisconnected)})
	if err := s.tokens.Refresh(ctx); err != nil {
		s.logger.Warn("token refresh failed", "error", err)
	}
}

func sendSynthetic(ctx context.Context, out chan<- Inbound, kind string, payload map[string]any) {
	value := map[string]any{"type": kind, "payload": payload}
	select {
	case out <- Inbound{Synthetic: true, Value: value}:
	case <-ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
