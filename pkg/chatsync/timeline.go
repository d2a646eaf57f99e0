package chatsync

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Timeline is the canonical ordered message list for the active chat.
// Entries are strictly ordered by (created_at, insertion order). A
// provisional entry and its eventual confirmed counterpart collapse to
// exactly one visible message.
type Timeline struct {
	mu       sync.Mutex
	chatID   string
	entries  []Message
	notifier *Notifier
}

func NewTimeline(notifier *Notifier) *Timeline {
	return &Timeline{notifier: notifier}
}

// Activate moves the active-chat cursor and clears the previous chat's
// entries. Provisional entries are not carried across chat switches.
func (t *Timeline) Activate(chatID string) {
	t.mu.Lock()
	changed := t.chatID != chatID || len(t.entries) > 0
	t.chatID = chatID
	t.entries = nil
	t.mu.Unlock()
	if changed {
		t.notifier.publish(TopicTimeline, Update{Reason: "activate", ChatID: chatID})
	}
}

// Replace loads the authoritative snapshot for chatID. The load is
// ignored when the cursor moved on while the fetch was in flight; a
// late response for a chat that is no longer active must be discarded,
// not applied.
func (t *Timeline) Replace(chatID string, msgs []Message) bool {
	t.mu.Lock()
	if t.chatID != chatID {
		t.mu.Unlock()
		log.Debug().Str("component", "chatsync").Str("chat_id", chatID).Msg("discarding stale timeline load")
		return false
	}
	t.entries = append([]Message(nil), msgs...)
	t.mu.Unlock()
	t.notifier.publish(TopicTimeline, Update{Reason: "load", ChatID: chatID})
	return true
}

// ActiveChat returns the active-chat cursor, empty when none.
func (t *Timeline) ActiveChat() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chatID
}

// Messages returns the entries in timeline order.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.entries...)
}

// AppendOptimistic appends a provisional own message before the network
// send resolves, so the UI shows it with zero perceived latency.
func (t *Timeline) AppendOptimistic(content, senderID, recipientID string) Message {
	msg := Message{
		ID:          provisionalPrefix + uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   time.Now(),
		IsOwn:       true,
	}
	t.mu.Lock()
	msg.ChatID = t.chatID
	t.entries = append(t.entries, msg)
	t.mu.Unlock()
	t.notifier.publish(TopicTimeline, Update{Reason: "optimistic", ChatID: msg.ChatID})
	return msg
}

// Confirm upgrades a provisional entry in place once the send request
// succeeded: same position, server-assigned id, confirmed flag set.
func (t *Timeline) Confirm(provisionalID, serverID string) (Message, bool) {
	t.mu.Lock()
	var confirmed Message
	found := false
	for i := range t.entries {
		if t.entries[i].ID != provisionalID {
			continue
		}
		if serverID != "" {
			t.entries[i].ID = serverID
		}
		t.entries[i].Confirmed = true
		confirmed = t.entries[i]
		found = true
		break
	}
	chatID := t.chatID
	t.mu.Unlock()
	if found {
		t.notifier.publish(TopicTimeline, Update{Reason: "confirm", ChatID: chatID})
	}
	return confirmed, found
}

// ApplyIncoming routes a stream message through the reconciliation
// policy: events for other chats are ignored, echoes of own sends
// confirm the matching provisional entry, duplicates are no-ops and
// everything else is inserted in timeline order. Reports whether the
// timeline changed.
func (t *Timeline) ApplyIncoming(ev NewMessageEvent, currentUserID string) bool {
	t.mu.Lock()
	d := DecideTimelineMessage(ev, t.chatID, currentUserID, t.entries)
	switch {
	case d.ConfirmID != "":
		for i := range t.entries {
			if t.entries[i].ID == d.ConfirmID {
				t.entries[i].Confirmed = true
				break
			}
		}
	case d.Append:
		msg := ev.Message(currentUserID)
		t.entries = append(t.entries, Message{})
		copy(t.entries[d.InsertAt+1:], t.entries[d.InsertAt:])
		t.entries[d.InsertAt] = msg
	}
	t.mu.Unlock()

	changed := d.ConfirmID != "" || d.Append
	if changed {
		t.notifier.publish(TopicTimeline, Update{Reason: "message", ChatID: ev.ChatID})
	}
	return changed
}

// Provisionals returns the unconfirmed own entries, oldest first.
func (t *Timeline) Provisionals() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for _, m := range t.entries {
		if m.Provisional() && m.IsOwn {
			out = append(out, m)
		}
	}
	return out
}
