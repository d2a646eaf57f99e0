package chatsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotifierDeliversStoreUpdates(t *testing.T) {
	n := NewNotifier()
	t.Cleanup(func() { _ = n.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := n.Updates(ctx, TopicRoster)
	require.NoError(t, err)

	r := NewRoster(n)
	r.LoadSnapshot([]Chat{chatWith("a", "u1", "u2")})

	select {
	case msg := <-updates:
		u, err := DecodeUpdate(msg)
		require.NoError(t, err)
		require.Equal(t, "snapshot", u.Reason)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no roster update delivered")
	}
}

func TestNotifierTimelineUpdateCarriesChatID(t *testing.T) {
	n := NewNotifier()
	t.Cleanup(func() { _ = n.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := n.Updates(ctx, TopicTimeline)
	require.NoError(t, err)

	tl := NewTimeline(n)
	tl.Activate("a")

	select {
	case msg := <-updates:
		u, err := DecodeUpdate(msg)
		require.NoError(t, err)
		require.Equal(t, "a", u.ChatID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no timeline update delivered")
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	require.NoError(t, n.Close())

	r := NewRoster(nil)
	r.LoadSnapshot([]Chat{chatWith("a", "u1", "u2")})
	r.SetPresence(map[string]bool{"u2": true})
	require.True(t, r.Online("u2"))
}
