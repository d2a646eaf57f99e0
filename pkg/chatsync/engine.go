package chatsync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoActiveChat  = errors.New("no active chat")
	ErrNoCounterpart = errors.New("active chat has no counterpart")
)

// EngineConfig wires the engine's collaborators together.
type EngineConfig struct {
	Backend   Backend
	Transport Transport
	// Notifier is optional; the engine creates and owns one when nil.
	Notifier *Notifier
}

// Engine glues the transport, the reconciliation policy and the two
// stores into the two entry points the UI calls: SelectChat and
// SendMessage. It subscribes its stream handlers on Start and releases
// them symmetrically on Close.
type Engine struct {
	backend   Backend
	transport Transport
	roster    *Roster
	timeline  *Timeline
	notifier  *Notifier

	ownNotifier bool
	selectGen   atomic.Uint64

	mu      sync.Mutex
	userID  string
	started bool
	subs    []Subscription
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errors.New("engine: backend is nil")
	}
	if cfg.Transport == nil {
		return nil, errors.New("engine: transport is nil")
	}
	notifier := cfg.Notifier
	own := false
	if notifier == nil {
		notifier = NewNotifier()
		own = true
	}
	return &Engine{
		backend:     cfg.Backend,
		transport:   cfg.Transport,
		roster:      NewRoster(notifier),
		timeline:    NewTimeline(notifier),
		notifier:    notifier,
		ownNotifier: own,
	}, nil
}

// Start resolves the session identity, connects the transport,
// subscribes the stream handlers, requests a presence snapshot and
// loads the roster snapshot.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine: already started")
	}
	e.started = true
	e.mu.Unlock()

	userID, err := e.backend.CurrentUserID(ctx)
	if err != nil {
		return errors.Wrap(err, "resolve current user")
	}
	e.mu.Lock()
	e.userID = userID
	e.mu.Unlock()

	e.transport.SetIdentity(userID)
	if err := e.transport.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect transport")
	}

	e.mu.Lock()
	e.subs = []Subscription{
		e.transport.On(EventNewMessage, e.onNewMessage),
		e.transport.On(EventNewChat, e.onNewChat),
		e.transport.On(EventOnlineUsers, e.onOnlineUsers),
	}
	e.mu.Unlock()

	if err := e.transport.Emit(EventGetOnlineUsers, struct{}{}); err != nil {
		log.Warn().Err(err).Str("component", "engine").Msg("presence snapshot request failed")
	}

	return e.Refresh(ctx)
}

// Refresh re-fetches the roster snapshot. Callers use it to recover
// from transient fetch failures; there is no automatic retry.
func (e *Engine) Refresh(ctx context.Context) error {
	chats, err := e.backend.Chats(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch chats")
	}
	userID := e.CurrentUserID()
	for i := range chats {
		chats[i] = chats[i].Normalized(userID)
	}
	e.roster.LoadSnapshot(chats)
	return nil
}

// Close unsubscribes every handler Start registered and tears the
// transport down. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()
	for _, sub := range subs {
		e.transport.Off(sub)
	}
	err := e.transport.Close()
	if e.ownNotifier {
		if cerr := e.notifier.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (e *Engine) Roster() *Roster       { return e.roster }
func (e *Engine) Timeline() *Timeline   { return e.timeline }
func (e *Engine) Notifier() *Notifier   { return e.notifier }
func (e *Engine) CurrentUserID() string { e.mu.Lock(); defer e.mu.Unlock(); return e.userID }

// SelectChat moves the active-chat cursor and loads the authoritative
// message snapshot. Switching again while a fetch is in flight makes
// the older response stale; it is discarded, never applied.
func (e *Engine) SelectChat(ctx context.Context, chatID string) error {
	if !e.roster.Has(chatID) {
		return errors.Errorf("select chat %s: unknown chat", chatID)
	}
	gen := e.selectGen.Add(1)
	e.timeline.Activate(chatID)

	msgs, err := e.backend.Messages(ctx, chatID)
	if err != nil {
		return errors.Wrapf(err, "fetch messages for chat %s", chatID)
	}
	if e.selectGen.Load() != gen {
		log.Debug().Str("component", "engine").Str("chat_id", chatID).Msg("discarding stale message fetch")
		return nil
	}

	userID := e.CurrentUserID()
	for i := range msgs {
		msgs[i].IsOwn = msgs[i].SenderID == userID
		msgs[i].Confirmed = true
	}
	e.timeline.Replace(chatID, msgs)
	return nil
}

// SendMessage appends an optimistic entry, writes the durable copy
// through the backend, confirms the entry in place and notifies the
// counterpart over the transport. On send failure the provisional entry
// stays visible and unconfirmed; the caller owns the user-facing
// indication.
func (e *Engine) SendMessage(ctx context.Context, content string) (Message, error) {
	chatID := e.timeline.ActiveChat()
	if chatID == "" {
		return Message{}, ErrNoActiveChat
	}
	chat, ok := e.roster.Get(chatID)
	if !ok {
		return Message{}, errors.Errorf("active chat %s missing from roster", chatID)
	}
	counterpart, ok := chat.Counterpart()
	if !ok {
		return Message{}, ErrNoCounterpart
	}
	userID := e.CurrentUserID()

	provisional := e.timeline.AppendOptimistic(content, userID, counterpart.ID)

	sent, err := e.backend.SendMessage(ctx, chatID, content)
	if err != nil {
		return provisional, errors.Wrap(err, "send message")
	}

	confirmed, ok := e.timeline.Confirm(provisional.ID, sent.ID)
	if !ok {
		// The cursor moved between append and confirm; the provisional
		// entry is gone and there is nothing left to upgrade.
		confirmed = provisional
		confirmed.ID = sent.ID
		confirmed.Confirmed = true
	}

	createdAt := sent.CreatedAt
	if createdAt.IsZero() {
		createdAt = confirmed.CreatedAt
	}
	e.roster.ApplyIncomingMessage(NewMessageEvent{
		ChatID:      chatID,
		Content:     content,
		SenderID:    userID,
		RecipientID: counterpart.ID,
		CreatedAt:   createdAt,
	})

	notice := MessageNotice{ChatID: chatID, RecipientID: counterpart.ID, Message: content}
	if err := e.transport.Emit(EventMessage, notice); err != nil {
		log.Warn().Err(err).Str("component", "engine").Str("chat_id", chatID).Msg("counterpart notification failed")
	}
	return confirmed, nil
}

// CreateChat creates a chat with another user, inserts it into the
// roster optimistically and announces it so the server rebroadcasts a
// new_chat to the counterpart. The two paths converge on one roster
// entry by chat id.
func (e *Engine) CreateChat(ctx context.Context, otherUserID string) (Chat, error) {
	chat, err := e.backend.CreateChat(ctx, otherUserID)
	if err != nil {
		return Chat{}, errors.Wrap(err, "create chat")
	}
	userID := e.CurrentUserID()
	chat = chat.Normalized(userID)
	e.roster.ApplyNewChat(chat)

	if err := e.transport.Emit(EventChat, ChatAnnouncement{UserID: userID, Chat: chat}); err != nil {
		log.Warn().Err(err).Str("component", "engine").Str("chat_id", chat.ID).Msg("chat announcement failed")
	}
	return chat, nil
}

// DeleteChat removes the chat on the server and locally, clearing the
// timeline when it was the active one.
func (e *Engine) DeleteChat(ctx context.Context, chatID string) error {
	if err := e.backend.DeleteChat(ctx, chatID); err != nil {
		return errors.Wrapf(err, "delete chat %s", chatID)
	}
	e.roster.Remove(chatID)
	if e.timeline.ActiveChat() == chatID {
		e.selectGen.Add(1)
		e.timeline.Activate("")
	}
	return nil
}

// CounterpartOnline reports presence for the active chat's counterpart.
// Presence is scoped per counterpart and read live from the roster, so
// it cannot go stale when the active chat changes.
func (e *Engine) CounterpartOnline() bool {
	chatID := e.timeline.ActiveChat()
	if chatID == "" {
		return false
	}
	chat, ok := e.roster.Get(chatID)
	if !ok {
		return false
	}
	counterpart, ok := chat.Counterpart()
	if !ok {
		return false
	}
	return e.roster.Online(counterpart.ID)
}

func (e *Engine) onNewMessage(data json.RawMessage) {
	var ev NewMessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Warn().Err(err).Str("component", "engine").Msg("dropping malformed new_message event")
		return
	}
	if err := ev.Validate(); err != nil {
		log.Warn().Err(err).Str("component", "engine").Msg("dropping invalid new_message event")
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	// The roster reacts for every chat; the timeline only for the
	// active one.
	e.roster.ApplyIncomingMessage(ev)
	e.timeline.ApplyIncoming(ev, e.CurrentUserID())
}

func (e *Engine) onNewChat(data json.RawMessage) {
	var chat Chat
	if err := json.Unmarshal(data, &chat); err != nil || chat.ID == "" {
		log.Warn().Err(err).Str("component", "engine").Msg("dropping malformed new_chat event")
		return
	}
	e.roster.ApplyNewChat(chat.Normalized(e.CurrentUserID()))
}

func (e *Engine) onOnlineUsers(data json.RawMessage) {
	var online map[string]bool
	if err := json.Unmarshal(data, &online); err != nil {
		log.Warn().Err(err).Str("component", "engine").Msg("dropping malformed online_users event")
		return
	}
	e.roster.SetPresence(online)
}
