package chatsync

import "context"

// Backend is the request/response collaborator surface the engine
// depends on. pkg/chatsync/api implements it over HTTP; tests use
// in-memory fakes. Failures are reported to the caller and never
// retried automatically.
type Backend interface {
	CurrentUserID(ctx context.Context) (string, error)
	Chats(ctx context.Context) ([]Chat, error)
	Messages(ctx context.Context, chatID string) ([]Message, error)
	SendMessage(ctx context.Context, chatID, content string) (Message, error)
	CreateChat(ctx context.Context, otherUserID string) (Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
}
