// Package chatsync reconciles a periodically-fetched REST snapshot of
// chats and messages with a continuous stream of push events while a
// single chat is active and the user may be composing concurrently.
//
// Ownership model:
//   - Roster owns chat identity, ordering and previews for every chat.
//   - Timeline owns full message bodies for the active chat only,
//     including optimistic entries that have not been confirmed yet.
//   - The pure Decide* functions in reconcile.go are the only place
//     where merge policy lives; both stores execute their decisions.
//
// Recommended setup:
//   - Build a Backend (pkg/chatsync/api provides the HTTP one).
//   - Build a Transport with NewWSTransport.
//   - Wire both into an Engine with NewEngine, call Start, and read
//     store state after each Notifier update.
package chatsync
