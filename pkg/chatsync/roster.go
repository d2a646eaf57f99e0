package chatsync

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Roster is the canonical in-memory list of chats. It owns chat
// identity, ordering and previews, plus the presence map. Order is
// maintained as a mutation (move-to-front on fresh activity), never
// derived by sorting on read, so the list only jumps when something
// actually happened.
type Roster struct {
	mu       sync.Mutex
	order    []string
	chats    map[string]*Chat
	presence map[string]bool
	notifier *Notifier
}

func NewRoster(notifier *Notifier) *Roster {
	return &Roster{
		chats:    map[string]*Chat{},
		presence: map[string]bool{},
		notifier: notifier,
	}
}

// LoadSnapshot replaces the roster wholesale with the server-ordered
// snapshot. Presence is kept; the transport owns it.
func (r *Roster) LoadSnapshot(chats []Chat) {
	r.mu.Lock()
	r.order = make([]string, 0, len(chats))
	r.chats = make(map[string]*Chat, len(chats))
	for i := range chats {
		ch := chats[i]
		if ch.ID == "" {
			continue
		}
		if _, ok := r.chats[ch.ID]; ok {
			continue
		}
		r.order = append(r.order, ch.ID)
		r.chats[ch.ID] = &ch
	}
	r.mu.Unlock()
	r.notifier.publish(TopicRoster, Update{Reason: "snapshot"})
}

// ApplyNewChat inserts a chat at the front, or applies last-write-wins
// on the preview when the id is already known. Both creation paths, own
// optimistic create and counterpart stream announcement, converge here.
// Reports whether the chat was newly inserted.
func (r *Roster) ApplyNewChat(ch Chat) bool {
	if ch.ID == "" {
		return false
	}
	r.mu.Lock()
	_, known := r.chats[ch.ID]
	d := DecideNewChat(ch, known)
	switch {
	case d.Insert:
		inserted := ch
		r.chats[ch.ID] = &inserted
		r.order = append([]string{ch.ID}, r.order...)
	case d.ReplacePreview:
		p := *ch.Preview
		r.chats[ch.ID].Preview = &p
	}
	r.mu.Unlock()
	if d.Insert || d.ReplacePreview {
		r.notifier.publish(TopicRoster, Update{Reason: "new_chat", ChatID: ch.ID})
	}
	return d.Insert
}

// ApplyIncomingMessage updates the chat's preview to this message and
// moves the chat to the front. Events for unknown chat ids lost the
// race against their new_chat announcement and are dropped; the next
// snapshot refresh repairs the preview. Reports whether the roster
// changed.
func (r *Roster) ApplyIncomingMessage(ev NewMessageEvent) bool {
	r.mu.Lock()
	ch, known := r.chats[ev.ChatID]
	var current *Preview
	if known {
		current = ch.Preview
	}
	d := DecidePreview(ev, known, current)
	if d.Update {
		p := ev.Preview()
		ch.Preview = &p
		r.moveToFrontLocked(ev.ChatID)
	}
	r.mu.Unlock()

	if d.DropUnknown {
		log.Debug().Str("component", "chatsync").Str("chat_id", ev.ChatID).Msg("dropping message event for unknown chat")
		return false
	}
	if d.Update {
		r.notifier.publish(TopicRoster, Update{Reason: "message", ChatID: ev.ChatID})
	}
	return d.Update
}

// SetPresence replaces the presence map wholesale. The transport is the
// sole source of truth for liveness, so maps are never merged.
func (r *Roster) SetPresence(online map[string]bool) {
	r.mu.Lock()
	r.presence = make(map[string]bool, len(online))
	for id, v := range online {
		r.presence[id] = v
	}
	r.mu.Unlock()
	r.notifier.publish(TopicPresence, Update{Reason: "presence"})
}

// Remove deletes a chat locally. Notifying the server is the caller's
// concern.
func (r *Roster) Remove(chatID string) bool {
	r.mu.Lock()
	_, known := r.chats[chatID]
	if known {
		delete(r.chats, chatID)
		for i, id := range r.order {
			if id == chatID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()
	if known {
		r.notifier.publish(TopicRoster, Update{Reason: "remove", ChatID: chatID})
	}
	return known
}

// Chats returns the roster in display order.
func (r *Roster) Chats() []Chat {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Chat, 0, len(r.order))
	for _, id := range r.order {
		if ch, ok := r.chats[id]; ok {
			out = append(out, *ch)
		}
	}
	return out
}

// Get returns a copy of one chat.
func (r *Roster) Get(chatID string) (Chat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.chats[chatID]
	if !ok {
		return Chat{}, false
	}
	return *ch, true
}

// Has reports whether a chat id is known.
func (r *Roster) Has(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.chats[chatID]
	return ok
}

// Online reports the presence flag for a user id.
func (r *Roster) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence[userID]
}

func (r *Roster) moveToFrontLocked(chatID string) {
	for i, id := range r.order {
		if id != chatID {
			continue
		}
		if i == 0 {
			return
		}
		copy(r.order[1:i+1], r.order[:i])
		r.order[0] = chatID
		return
	}
	r.order = append([]string{chatID}, r.order...)
}
