package chatsync

import (
	"context"
	"encoding/json"
)

// Handler consumes the decoded payload of one inbound event. Handlers
// run on the transport's read goroutine, so inbound events are applied
// in arrival order.
type Handler func(data json.RawMessage)

// Subscription is the stable handle returned by On. Unsubscribing by
// handle instead of by function value keeps register/unregister
// symmetric and makes double-Off harmless.
type Subscription struct {
	event string
	id    uint64
}

// Transport owns one persistent bidirectional connection per
// authenticated session. It announces the session identity on every
// successful (re)connect but performs no retry or backoff of its own;
// the owner decides when to call Connect again.
type Transport interface {
	// Connect establishes (or re-establishes) the connection and
	// re-delivers the identity announcement when one is known.
	Connect(ctx context.Context) error
	// SetIdentity records the current user id and announces it
	// immediately when connected.
	SetIdentity(userID string)
	On(event string, h Handler) Subscription
	Off(sub Subscription)
	Emit(event string, payload any) error
	Close() error
}
