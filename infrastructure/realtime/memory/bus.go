// Package memory is an in-process broadcast channel. It backs tests and
// single-process runs where every editor shares one Bus.
package memory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/ports"
)

// ErrClosed is returned when sending on a closed subscription
var ErrClosed = errors.New("subscription closed")

const defaultQueueSize = 256

// Bus fans messages out to every subscriber of a topic.
type Bus struct {
	mu        sync.Mutex
	topics    map[string]map[*subscription]struct{}
	queueSize int
	logger    *zap.Logger
}

// NewBus creates an empty bus
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics:    make(map[string]map[*subscription]struct{}),
		queueSize: defaultQueueSize,
		logger:    logger,
	}
}

type delivery struct {
	env    *ports.Envelope
	status ports.ChannelStatus
	err    error
}

type subscription struct {
	bus     *Bus
	topic   string
	opts    ports.SubscribeOptions
	handler ports.Handler

	queue     chan delivery
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe joins topic. The handler is told StatusSubscribed once the
// subscription is live. Deliveries run on a goroutine owned by the
// subscription, one at a time and in send order.
func (b *Bus) Subscribe(ctx context.Context, topic string, opts ports.SubscribeOptions, h ports.Handler) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &subscription{
		bus:     b,
		topic:   topic,
		opts:    opts,
		handler: h,
		queue:   make(chan delivery, b.queueSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	s.enqueue(delivery{status: ports.StatusSubscribed})

	b.logger.Debug("Subscribed to topic", zap.String("topic", topic), zap.Int("subscribers", len(subs)))
	return s, nil
}

// Resubscribe replays StatusSubscribed to every subscriber of topic, the
// way a reconnecting network channel would.
func (b *Bus) Resubscribe(topic string) {
	for _, s := range b.subscribers(topic) {
		s.enqueue(delivery{status: ports.StatusSubscribed})
	}
}

// Subscribers returns how many subscriptions topic has
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *Bus) subscribers(topic string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*subscription, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		out = append(out, s)
	}
	return out
}

func (b *Bus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[s.topic]
	delete(subs, s)
	if len(subs) == 0 {
		delete(b.topics, s.topic)
	}
}

// Send delivers env to every other subscriber of the topic, and to the
// sender too when it subscribed with Self. It never blocks; a subscriber
// whose queue is full misses the message.
func (s *subscription) Send(ctx context.Context, env ports.Envelope) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	for _, other := range s.bus.subscribers(s.topic) {
		if other == s && !s.opts.Self {
			continue
		}
		e := env
		if !other.enqueue(delivery{env: &e}) {
			s.bus.logger.Warn("Subscriber queue full, message dropped",
				zap.String("topic", s.topic),
				zap.String("event", env.Event))
		}
	}
	return nil
}

// Close leaves the topic. The handler receives StatusClosed and nothing after it.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
	return nil
}

func (s *subscription) enqueue(d delivery) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- d:
		return true
	default:
		return false
	}
}

func (s *subscription) pump() {
	for {
		select {
		case <-s.done:
			if s.handler.OnStatus != nil {
				s.handler.OnStatus(ports.StatusClosed, nil)
			}
			return
		case d := <-s.queue:
			s.dispatch(d)
		}
	}
}

func (s *subscription) dispatch(d delivery) {
	if d.env != nil {
		if s.handler.OnMessage != nil {
			s.handler.OnMessage(*d.env)
		}
		return
	}
	if s.handler.OnStatus != nil {
		s.handler.OnStatus(d.status, d.err)
	}
}
