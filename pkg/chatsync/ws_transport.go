package chatsync

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("transport is not connected")

// WSTransportConfig configures the websocket transport adapter.
type WSTransportConfig struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8000/chat.
	URL string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is sent with the upgrade request (session cookies etc.).
	Header http.Header
}

// WSTransport is the gorilla/websocket implementation of Transport.
// Inbound frames are JSON envelopes {"event": ..., "data": ...};
// malformed frames are dropped with a diagnostic and never break the
// read loop.
type WSTransport struct {
	url    string
	dialer *websocket.Dialer
	header http.Header

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu     sync.Mutex
	userID string
	closed bool

	handlersMu sync.Mutex
	handlers   map[string]map[uint64]Handler
	nextSub    uint64
}

var _ Transport = &WSTransport{}

func NewWSTransport(cfg WSTransportConfig) (*WSTransport, error) {
	if cfg.URL == "" {
		return nil, errors.New("ws transport: URL is empty")
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WSTransport{
		url:      cfg.URL,
		dialer:   dialer,
		header:   cfg.Header,
		handlers: map[string]map[uint64]Handler{},
	}, nil
}

// Connect dials the endpoint, starts the read loop and re-delivers the
// identity announcement when one is known. Calling it again after a
// disconnect replaces the previous connection.
func (t *WSTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("ws transport: closed")
	}
	userID := t.userID
	t.mu.Unlock()

	conn, resp, err := t.dialer.DialContext(ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.Wrapf(err, "dial %s", t.url)
	}

	t.writeMu.Lock()
	old := t.conn
	t.conn = conn
	t.writeMu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	log.Info().Str("component", "ws_transport").Str("url", t.url).Msg("connected")
	go t.readLoop(conn)

	// The server keys presence and routing by this announcement, so it
	// must go out on every (re)connection.
	if userID != "" {
		if err := t.Emit(EventSetUserID, SetUserIDPayload{UserID: userID}); err != nil {
			return errors.Wrap(err, "announce identity")
		}
	}
	return nil
}

// SetIdentity records the user id and announces it immediately when a
// connection is up.
func (t *WSTransport) SetIdentity(userID string) {
	t.mu.Lock()
	t.userID = userID
	t.mu.Unlock()
	if userID == "" {
		return
	}
	if err := t.Emit(EventSetUserID, SetUserIDPayload{UserID: userID}); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Warn().Err(err).Str("component", "ws_transport").Msg("identity announcement failed")
	}
}

func (t *WSTransport) On(event string, h Handler) Subscription {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.nextSub++
	if t.handlers[event] == nil {
		t.handlers[event] = map[uint64]Handler{}
	}
	t.handlers[event][t.nextSub] = h
	return Subscription{event: event, id: t.nextSub}
}

func (t *WSTransport) Off(sub Subscription) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	if hs, ok := t.handlers[sub.event]; ok {
		delete(hs, sub.id)
		if len(hs) == 0 {
			delete(t.handlers, sub.event)
		}
	}
}

func (t *WSTransport) Emit(event string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrapf(err, "marshal %s payload", event)
		}
		data = b
	}
	b, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return errors.Wrapf(err, "marshal %s envelope", event)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrapf(err, "emit %s", event)
	}
	return nil
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.writeMu.Lock()
	conn := t.conn
	t.conn = nil
	t.writeMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("component", "ws_transport").Msg("read loop end")
			t.writeMu.Lock()
			if t.conn == conn {
				t.conn = nil
			}
			t.writeMu.Unlock()
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Warn().Err(err).Str("component", "ws_transport").Msg("dropping malformed frame")
			continue
		}
		t.dispatch(env)
	}
}

func (t *WSTransport) dispatch(env Envelope) {
	t.handlersMu.Lock()
	hs := make([]Handler, 0, len(t.handlers[env.Event]))
	for _, h := range t.handlers[env.Event] {
		hs = append(hs, h)
	}
	t.handlersMu.Unlock()

	if len(hs) == 0 {
		log.Debug().Str("component", "ws_transport").Str("event", env.Event).Msg("no handler for event")
		return
	}
	for _, h := range hs {
		h(env.Data)
	}
}
