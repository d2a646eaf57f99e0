package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func chatWith(id, selfID, otherID string) Chat {
	return Chat{
		ID: id,
		Members: []Participant{
			{ID: selfID, Username: "me"},
			{ID: otherID, Username: "them"},
		},
	}
}

func messageEvent(chatID, senderID, content string, at time.Time) NewMessageEvent {
	return NewMessageEvent{
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: at,
	}
}

func chatIDs(chats []Chat) []string {
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestRosterMoveToFrontOrdering(t *testing.T) {
	r := NewRoster(nil)
	r.LoadSnapshot([]Chat{
		chatWith("a", "u1", "u2"),
		chatWith("b", "u1", "u3"),
		chatWith("c", "u1", "u4"),
	})

	base := time.Now()
	for i, chat := range []string{"b", "a", "c", "a"} {
		ev := messageEvent(chat, "u9", "msg", base.Add(time.Duration(i)*time.Second))
		require.True(t, r.ApplyIncomingMessage(ev))
	}

	require.Equal(t, []string{"a", "c", "b"}, chatIDs(r.Chats()))
}

func TestRosterApplyNewChatIdempotent(t *testing.T) {
	r := NewRoster(nil)
	r.LoadSnapshot([]Chat{chatWith("a", "u1", "u2")})

	ch := chatWith("b", "u1", "u3")
	require.True(t, r.ApplyNewChat(ch))
	require.False(t, r.ApplyNewChat(ch))

	require.Equal(t, []string{"b", "a"}, chatIDs(r.Chats()))
}

func TestRosterApplyNewChatPreviewLastWriteWins(t *testing.T) {
	r := NewRoster(nil)
	first := chatWith("a", "u1", "u2")
	require.True(t, r.ApplyNewChat(first))

	updated := chatWith("a", "u1", "u2")
	updated.Preview = &Preview{Content: "hi", SenderID: "u2", CreatedAt: time.Now()}
	require.False(t, r.ApplyNewChat(updated))

	got, ok := r.Get("a")
	require.True(t, ok)
	require.NotNil(t, got.Preview)
	require.Equal(t, "hi", got.Preview.Content)
}

func TestRosterIncomingMessageIdempotent(t *testing.T) {
	r := NewRoster(nil)
	r.LoadSnapshot([]Chat{
		chatWith("a", "u1", "u2"),
		chatWith("b", "u1", "u3"),
	})

	ev := messageEvent("b", "u3", "hello", time.Now())
	require.True(t, r.ApplyIncomingMessage(ev))
	before := chatIDs(r.Chats())

	require.False(t, r.ApplyIncomingMessage(ev))
	require.Equal(t, before, chatIDs(r.Chats()))
}

func TestRosterDropsEventForUnknownChat(t *testing.T) {
	r := NewRoster(nil)
	r.LoadSnapshot([]Chat{chatWith("a", "u1", "u2")})

	applied := r.ApplyIncomingMessage(messageEvent("ghost", "u9", "boo", time.Now()))
	require.False(t, applied)
	require.Equal(t, []string{"a"}, chatIDs(r.Chats()))
}

func TestRosterOlderEventDoesNotOverwritePreview(t *testing.T) {
	r := NewRoster(nil)
	r.LoadSnapshot([]Chat{chatWith("a", "u1", "u2")})

	now := time.Now()
	require.True(t, r.ApplyIncomingMessage(messageEvent("a", "u2", "newer", now)))
	require.False(t, r.ApplyIncomingMessage(messageEvent("a", "u2", "older", now.Add(-time.Minute))))

	got, _ := r.Get("a")
	require.Equal(t, "newer", got.Preview.Content)
}

func TestRosterPresenceWholesaleReplace(t *testing.T) {
	r := NewRoster(nil)
	r.SetPresence(map[string]bool{"u1": true})
	r.SetPresence(map[string]bool{"u2": true})

	require.False(t, r.Online("u1"))
	require.True(t, r.Online("u2"))
}

func TestRosterRemove(t *testing.T) {
	r := NewRoster(nil)
	r.LoadSnapshot([]Chat{
		chatWith("a", "u1", "u2"),
		chatWith("b", "u1", "u3"),
	})

	require.True(t, r.Remove("a"))
	require.False(t, r.Remove("a"))
	require.Equal(t, []string{"b"}, chatIDs(r.Chats()))
	require.False(t, r.Has("a"))
}
