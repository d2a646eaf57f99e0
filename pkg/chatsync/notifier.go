package chatsync

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Notification topics. UI layers subscribe to these instead of reaching
// into store internals; stores publish after every mutation.
const (
	TopicRoster   = "chatsync.roster"
	TopicTimeline = "chatsync.timeline"
	TopicPresence = "chatsync.presence"
)

// Update is the payload published on every store mutation. It names
// what changed so subscribers can re-read only the state they care
// about.
type Update struct {
	Reason string `json:"reason"`
	ChatID string `json:"chat_id,omitempty"`
}

// Notifier fans store-update notifications out to subscribers over an
// in-process Pub/Sub. A nil Notifier is valid and drops everything,
// which keeps the stores usable standalone in tests.
type Notifier struct {
	pubsub *gochannel.GoChannel
}

func NewNotifier() *Notifier {
	return &Notifier{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermillLogger{log: log.With().Str("component", "chatsync").Logger()},
		),
	}
}

// Updates subscribes to one of the Topic* constants. The channel closes
// when ctx is cancelled or the notifier is closed.
func (n *Notifier) Updates(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return n.pubsub.Subscribe(ctx, topic)
}

func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	return n.pubsub.Close()
}

func (n *Notifier) publish(topic string, u Update) {
	if n == nil {
		return
	}
	b, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := n.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), b)); err != nil {
		log.Warn().Err(err).Str("component", "chatsync").Str("topic", topic).Msg("dropping store update notification")
	}
}

// DecodeUpdate unmarshals a notification payload published by a store.
func DecodeUpdate(msg *message.Message) (Update, error) {
	var u Update
	err := json.Unmarshal(msg.Payload, &u)
	return u, err
}

// watermillLogger adapts zerolog to watermill's logging interface.
type watermillLogger struct {
	log zerolog.Logger
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.log.Error().Err(err), msg, fields)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.log.Debug(), msg, fields)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.log.Debug(), msg, fields)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.log.Trace(), msg, fields)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return watermillLogger{log: ctx.Logger()}
}

func (l watermillLogger) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}
