package chatsync

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Event names are part of the wire contract shared with the deployed
// backend and must not change.
const (
	EventNewMessage  = "new_message"
	EventNewChat     = "new_chat"
	EventOnlineUsers = "online_users"

	EventSetUserID      = "set_user_id"
	EventMessage        = "message"
	EventGetOnlineUsers = "get_online_users"
	EventChat           = "chat"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessageEvent is the inbound push notifying this user of a message
// written by a counterpart. It carries no server message id.
type NewMessageEvent struct {
	ChatID      string    `json:"chat_id"`
	Content     string    `json:"content"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate rejects events that cannot be routed to a store.
func (e NewMessageEvent) Validate() error {
	if e.ChatID == "" {
		return errors.New("new_message: missing chat_id")
	}
	if e.SenderID == "" {
		return errors.New("new_message: missing sender_id")
	}
	return nil
}

// Message converts the event into a confirmed store entry.
func (e NewMessageEvent) Message(currentUserID string) Message {
	return Message{
		ChatID:      e.ChatID,
		SenderID:    e.SenderID,
		RecipientID: e.RecipientID,
		Content:     e.Content,
		CreatedAt:   e.CreatedAt,
		IsOwn:       e.SenderID == currentUserID,
		Confirmed:   true,
	}
}

// Preview returns the roster annotation this event implies.
func (e NewMessageEvent) Preview() Preview {
	return Preview{Content: e.Content, SenderID: e.SenderID, CreatedAt: e.CreatedAt}
}

// SetUserIDPayload announces the connection's identity. The server keys
// presence and message routing by this announcement, so the transport
// re-sends it on every (re)connect.
type SetUserIDPayload struct {
	UserID string `json:"user_id"`
}

// MessageNotice is the outbound fire-and-forget counterpart
// notification. The durable copy of the message is written through
// Backend.SendMessage, not through this event.
type MessageNotice struct {
	ChatID      string `json:"chat_id"`
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

// ChatAnnouncement tells the server a chat was created locally; the
// server rebroadcasts it to the counterpart as new_chat.
type ChatAnnouncement struct {
	UserID string `json:"user_id"`
	Chat   Chat   `json:"chat"`
}
