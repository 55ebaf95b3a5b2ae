// Package websocket connects editors to the relay over websockets.
// Subscriptions reconnect with exponential backoff until closed.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/ports"
)

const writeWait = 10 * time.Second

// ErrRejected is returned when the relay refuses the connection outright
var ErrRejected = errors.New("relay rejected the connection")

// Options configures a Transport
type Options struct {
	// BaseURL is the relay address, http(s) or ws(s)
	BaseURL string
	// Token is sent as a bearer token on every dial
	Token string

	InitialInterval time.Duration
	MaxInterval     time.Duration
	DialTimeout     time.Duration
}

// Transport implements ports.Transport against the relay
type Transport struct {
	opts   Options
	base   *url.URL
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewTransport creates a transport for the relay at opts.BaseURL
func NewTransport(opts Options, logger *zap.Logger) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid relay url scheme %q", base.Scheme)
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Transport{
		opts:   opts,
		base:   base,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.DialTimeout, Proxy: http.ProxyFromEnvironment},
		logger: logger,
	}, nil
}

func (t *Transport) roomURL(topic string, self bool) string {
	u := *t.base
	u.Path = u.Path + "/ws/rooms/" + topic
	if self {
		u.RawQuery = url.Values{"self": {"true"}}.Encode()
	}
	return u.String()
}

// Subscribe implements ports.Transport. It returns at once; the handler
// hears StatusSubscribed when the relay admits the connection, and
// StatusChannelError each time the connection drops or a dial fails.
func (t *Transport) Subscribe(ctx context.Context, topic string, opts ports.SubscribeOptions, h ports.Handler) (ports.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		transport: t,
		topic:     topic,
		url:       t.roomURL(topic, opts.Self),
		handler:   h,
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		logger:    t.logger.With(zap.String("topic", topic)),
	}
	go s.run()
	return s, nil
}

type subscription struct {
	transport *Transport
	topic     string
	url       string
	handler   ports.Handler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn

	closeOnce sync.Once
	logger    *zap.Logger
}

func (s *subscription) status(st ports.ChannelStatus, err error) {
	if s.handler.OnStatus != nil {
		s.handler.OnStatus(st, err)
	}
}

func (s *subscription) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.transport.opts.InitialInterval
	b.MaxInterval = s.transport.opts.MaxInterval
	return b
}

func (s *subscription) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if s.transport.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.transport.opts.Token)
	}
	conn, resp, err := s.transport.dialer.DialContext(s.ctx, s.url, header)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrRejected, resp.Status))
			}
		}
		return nil, err
	}
	return conn, nil
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		conn, err := backoff.Retry(s.ctx, s.dial,
			backoff.WithBackOff(s.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				s.logger.Debug("Relay dial failed, retrying", zap.Error(err), zap.Duration("retryIn", next))
				s.status(ports.StatusTimedOut, err)
			}),
		)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Warn("Giving up on relay", zap.Error(err))
				s.status(ports.StatusChannelError, err)
			}
			return
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		readErr := s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if s.ctx.Err() != nil {
			return
		}
		s.logger.Info("Relay connection lost", zap.Error(readErr))
		s.status(ports.StatusChannelError, readErr)
	}
}

func (s *subscription) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env ports.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Debug("Ignoring malformed frame", zap.Error(err))
			continue
		}
		if env.Event == ports.SystemEvent {
			var notice ports.SystemNotice
			if err := json.Unmarshal(env.Payload, &notice); err == nil {
				s.status(notice.Status, nil)
			}
			continue
		}
		if s.handler.OnMessage != nil {
			s.handler.OnMessage(env)
		}
	}
}

// Send implements ports.Subscription. Without a live connection the
// message is dropped.
func (s *subscription) Send(ctx context.Context, env ports.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Failed to write frame", zap.Error(err))
		return nil
	}
	return nil
}

// Close implements ports.Subscription
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		if s.conn != nil {
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			s.conn.Close()
		}
		s.mu.Unlock()
		<-s.done
		s.status(ports.StatusClosed, nil)
	})
	return nil
}

var _ ports.Transport = (*Transport)(nil)
