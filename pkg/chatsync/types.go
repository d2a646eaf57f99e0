package chatsync

import (
	"strings"
	"time"
)

// Participant is one side of a two-party chat as reported by the backend.
type Participant struct {
	ID        string `json:"supertokens_id"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Preview is the denormalized last-message annotation shown next to a
// chat in the roster. It always reflects the message with the greatest
// timestamp seen for that chat so far.
type Preview struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"sender_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a two-party conversation. After Normalized, Members[0] is the
// current user and Members[1] the counterpart.
type Chat struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
	Members   []Participant `json:"members"`
	Preview   *Preview      `json:"preview,omitempty"`
}

// Self returns the current user's participant entry, assuming the chat
// has been normalized.
func (c Chat) Self() (Participant, bool) {
	if len(c.Members) == 0 {
		return Participant{}, false
	}
	return c.Members[0], true
}

// Counterpart returns the other participant, assuming the chat has been
// normalized.
func (c Chat) Counterpart() (Participant, bool) {
	if len(c.Members) < 2 {
		return Participant{}, false
	}
	return c.Members[1], true
}

// Normalized returns a copy with Members reordered so the participant
// matching selfID comes first. Chats arriving from snapshots or stream
// events carry members in server order.
func (c Chat) Normalized(selfID string) Chat {
	out := c
	out.Members = append([]Participant(nil), c.Members...)
	if selfID == "" || len(out.Members) < 2 {
		return out
	}
	for i, m := range out.Members {
		if m.ID == selfID && i != 0 {
			out.Members[0], out.Members[i] = out.Members[i], out.Members[0]
			break
		}
	}
	return out
}

// Message is a single chat message. IsOwn and Confirmed are derived
// locally and never cross the wire.
type Message struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`

	IsOwn     bool `json:"-"`
	Confirmed bool `json:"-"`
}

// Provisional reports whether the message is a locally-created entry
// still waiting for its server-assigned identity.
func (m Message) Provisional() bool { return !m.Confirmed }

const provisionalPrefix = "local-"

func isProvisionalID(id string) bool { return strings.HasPrefix(id, provisionalPrefix) }
