package ports

import (
	"context"
	"encoding/json"
)

// ChannelStatus reports the lifecycle of a subscription.
type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusClosed       ChannelStatus = "CLOSED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
	StatusTimedOut     ChannelStatus = "TIMED_OUT"
)

// Envelope is one broadcast message on a topic.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribeOptions configures a subscription
type SubscribeOptions struct {
	// Self asks the channel to echo the subscriber's own messages back to it.
	Self bool
}

// Handler receives messages and status changes for one subscription.
// Callbacks may run on a transport goroutine and must not block for long.
type Handler struct {
	OnMessage func(Envelope)
	OnStatus  func(status ChannelStatus, err error)
}

// Subscription is a joined topic.
type Subscription interface {
	// Send broadcasts to every other subscriber. It does not wait for
	// delivery and drops the message when the channel is not ready.
	Send(ctx context.Context, env Envelope) error

	// Close leaves the topic
	Close() error
}

// Transport is a topic-based pub/sub broadcast channel.
type Transport interface {
	Subscribe(ctx context.Context, topic string, opts SubscribeOptions, h Handler) (Subscription, error)
}

// SystemEvent is reserved for messages from the channel itself rather than
// from a peer. Its payload is a SystemNotice.
const SystemEvent = "system"

// SystemNotice reports a status change from the channel
type SystemNotice struct {
	Status ChannelStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}
