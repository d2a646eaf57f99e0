package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestClientCurrentUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/user_id", r.URL.Path)
		_, _ = w.Write([]byte(`{"user_id":"u1"}`))
	})

	id, err := c.CurrentUserID(context.Background())
	require.NoError(t, err)
	require.Equal(t, "u1", id)
}

func TestClientChatsDerivesPreviewAndNumericIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chats", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{
				"id": 7,
				"created_at": "2026-08-01T10:00:00Z",
				"members": [
					{"supertokens_id": "u1", "username": "me", "avatar_url": ""},
					{"supertokens_id": "u2", "username": "them", "avatar_url": "http://x/a.png"}
				],
				"messages": [
					{"id": 1, "chat_id": 7, "sender_id": "u2", "content": "first", "created_at": "2026-08-01T10:01:00Z"},
					{"id": 2, "chat_id": 7, "sender_id": "u1", "content": "latest", "created_at": "2026-08-01T10:02:00Z"}
				]
			}
		]`))
	})

	chats, err := c.Chats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "7", chats[0].ID, "numeric ids are normalized to strings")
	require.Len(t, chats[0].Members, 2)
	require.NotNil(t, chats[0].Preview)
	require.Equal(t, "latest", chats[0].Preview.Content, "preview comes from the newest snapshot message")
}

func TestClientMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages/9", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id": 11, "chat_id": 9, "sender_id": "u2", "content": "hi", "created_at": "2026-08-01T10:00:00Z"}
		]`))
	})

	msgs, err := c.Messages(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "11", msgs[0].ID)
	require.Equal(t, "9", msgs[0].ChatID)
	require.True(t, msgs[0].Confirmed)
}

func TestClientSendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/send_message", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, map[string]string{"chat_id": "9", "content": "hello"}, body)
		_, _ = w.Write([]byte(`{"id": 42, "sender_id": "u1", "content": "hello", "created_at": "2026-08-01T10:00:00Z"}`))
	})

	msg, err := c.SendMessage(context.Background(), "9", "hello")
	require.NoError(t, err)
	require.Equal(t, "42", msg.ID)
	require.Equal(t, "9", msg.ChatID, "chat id is backfilled when the response omits it")
}

func TestClientCreateChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat_create", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "u2", body["target_user_id"])
		_, _ = w.Write([]byte(`{"id": 3, "members": [{"supertokens_id": "u1"}, {"supertokens_id": "u2"}]}`))
	})

	chat, err := c.CreateChat(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, "3", chat.ID)
	require.Len(t, chat.Members, 2)
}

func TestClientDeleteChat(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/delete_chat", r.URL.Path)
		gotQuery = r.URL.Query().Get("chat_id")
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.DeleteChat(context.Background(), "5"))
	require.Equal(t, "5", gotQuery)
}

func TestClientErrorStatusIncludesBodySnippet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"unauthorised"}`))
	})

	_, err := c.Chats(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
	require.Contains(t, err.Error(), "unauthorised")
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
