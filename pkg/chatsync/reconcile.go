package chatsync

import "time"

// Reconciliation policy: pure functions that decide how a snapshot or a
// stream event mutates the two stores. No locks, timers or network
// calls live here; the stores execute the returned decisions under
// their own locks so the check and the mutation stay atomic.

// PreviewDecision describes what an incoming message does to the roster.
type PreviewDecision struct {
	// DropUnknown is set when the chat id is absent from the roster.
	// The event raced ahead of its new_chat announcement; the roster
	// drops it and the next snapshot refresh repairs the preview.
	DropUnknown bool
	// Duplicate is set when the preview already reflects this exact
	// message. Applying it again must not reorder the roster.
	Duplicate bool
	// Update promotes the chat to the front and replaces its preview.
	Update bool
}

// DecidePreview maps an incoming message onto roster mutations given
// whether the chat is known and its current preview (nil if none).
func DecidePreview(ev NewMessageEvent, known bool, current *Preview) PreviewDecision {
	if !known {
		return PreviewDecision{DropUnknown: true}
	}
	if current != nil {
		if current.SenderID == ev.SenderID && current.Content == ev.Content && current.CreatedAt.Equal(ev.CreatedAt) {
			return PreviewDecision{Duplicate: true}
		}
		// The preview tracks the greatest timestamp seen for the chat;
		// an older event never overwrites a newer preview.
		if ev.CreatedAt.Before(current.CreatedAt) {
			return PreviewDecision{Duplicate: true}
		}
	}
	return PreviewDecision{Update: true}
}

// ChatDecision describes what a new_chat announcement does to the roster.
type ChatDecision struct {
	// Insert places the chat at the front of the order.
	Insert bool
	// ReplacePreview applies last-write-wins on the preview of an
	// already-known chat; identity, members and position are untouched.
	ReplacePreview bool
}

// DecideNewChat converges the two creation paths (own optimistic create
// and counterpart announcement) onto a single roster entry keyed by
// chat id.
func DecideNewChat(incoming Chat, known bool) ChatDecision {
	if known {
		return ChatDecision{ReplacePreview: incoming.Preview != nil}
	}
	return ChatDecision{Insert: true}
}

// TimelineDecision describes what an incoming message does to the
// active timeline.
type TimelineDecision struct {
	// Ignore is set when the event belongs to a chat that is not the
	// active one; only the roster preview reacts to it.
	Ignore bool
	// Duplicate is set when an identical confirmed entry already
	// exists; applying the event again is a no-op.
	Duplicate bool
	// ConfirmID names the provisional entry this event is the stream
	// echo of. The optimistic entry already represents the message, so
	// it is confirmed in place instead of appending a duplicate.
	ConfirmID string
	// Append inserts a new confirmed entry at InsertAt, keeping the
	// timeline ordered by (created_at, insertion order).
	Append   bool
	InsertAt int
}

// DecideTimelineMessage maps an incoming message onto timeline
// mutations given the active chat id, the current user id and the
// current entries in timeline order.
func DecideTimelineMessage(ev NewMessageEvent, activeChatID, currentUserID string, entries []Message) TimelineDecision {
	if activeChatID == "" || ev.ChatID != activeChatID {
		return TimelineDecision{Ignore: true}
	}

	if ev.SenderID == currentUserID {
		// Most-recent provisional first: the echo of the latest send
		// arrives last, so matching backwards collapses correctly when
		// the same text was sent twice.
		for i := len(entries) - 1; i >= 0; i-- {
			m := entries[i]
			if m.Provisional() && m.IsOwn && m.Content == ev.Content {
				return TimelineDecision{ConfirmID: m.ID}
			}
		}
	}

	for _, m := range entries {
		if m.SenderID == ev.SenderID && m.Content == ev.Content && m.CreatedAt.Equal(ev.CreatedAt) && m.Confirmed {
			return TimelineDecision{Duplicate: true}
		}
	}

	return TimelineDecision{Append: true, InsertAt: insertionIndex(entries, ev.CreatedAt)}
}

// insertionIndex finds the position keeping entries sorted by
// created_at with ties broken by insertion order (new entry goes after
// equal timestamps).
func insertionIndex(entries []Message, at time.Time) int {
	i := len(entries)
	for i > 0 && entries[i-1].CreatedAt.After(at) {
		i--
	}
	return i
}
