package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jovicsi/flowminds.ai/application/ports"
	"github.com/Jovicsi/flowminds.ai/application/session"
	appsync "github.com/Jovicsi/flowminds.ai/application/sync"
	"github.com/Jovicsi/flowminds.ai/domain/core/entities"
	"github.com/Jovicsi/flowminds.ai/infrastructure/config"
	"github.com/Jovicsi/flowminds.ai/infrastructure/persistence/memory"
	"github.com/Jovicsi/flowminds.ai/interfaces/realtime"
)

const secret = "super-secret-jwt-token-with-at-least-32-characters"

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, realtime.Claims{
		Email: sub + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Save(context.Background(), &entities.Project{
		ID: "p1", OwnerID: "alice", Name: "Shared", Nodes: []entities.Node{}, Edges: []entities.Edge{},
	}))
	auth, err := realtime.NewJWTAuthenticator(secret)
	require.NoError(t, err)

	hub := realtime.NewHub(nil, nil)
	go hub.Run()
	server := realtime.NewServer(hub, auth, session.NewGate(store, store, store, nil),
		config.StaticTunables(config.DefaultTunables()), realtime.OriginChecker([]string{"*"}), nil)
	srv := httptest.NewServer(realtime.NewRouter(server, realtime.RouterOptions{}))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return srv
}

// recorder collects what a subscription hears
type recorder struct {
	mu       sync.Mutex
	statuses []ports.ChannelStatus
	errs     []error
	messages []ports.Envelope
}

func (r *recorder) handler() ports.Handler {
	return ports.Handler{
		OnMessage: func(env ports.Envelope) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, env)
		},
		OnStatus: func(st ports.ChannelStatus, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, st)
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) count(st ports.ChannelStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.statuses {
		if s == st {
			n++
		}
	}
	return n
}

func (r *recorder) received() []ports.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Envelope(nil), r.messages...)
}

func subscribe(t *testing.T, baseURL, tok string, opts ports.SubscribeOptions) (ports.Subscription, *recorder) {
	t.Helper()
	tr, err := NewTransport(Options{BaseURL: baseURL, Token: tok, InitialInterval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	rec := &recorder{}
	sub, err := tr.Subscribe(context.Background(), appsync.Topic("p1"), opts, rec.handler())
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return sub, rec
}

func TestTransport_ExchangesMessagesThroughRelay(t *testing.T) {
	srv := startRelay(t)
	a, recA := subscribe(t, srv.URL, token(t, "alice"), ports.SubscribeOptions{})
	_, recB := subscribe(t, srv.URL, token(t, "alice"), ports.SubscribeOptions{})

	require.Eventually(t, func() bool {
		return recA.count(ports.StatusSubscribed) == 1 && recB.count(ports.StatusSubscribed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Send(context.Background(), ports.Envelope{Event: appsync.EventCursorMove, Payload: json.RawMessage(`{"x":5}`)}))

	require.Eventually(t, func() bool { return len(recB.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, appsync.EventCursorMove, recB.received()[0].Event)
	assert.Empty(t, recA.received())
}

func TestTransport_SelfEcho(t *testing.T) {
	srv := startRelay(t)
	a, rec := subscribe(t, srv.URL, token(t, "alice"), ports.SubscribeOptions{Self: true})
	require.Eventually(t, func() bool { return rec.count(ports.StatusSubscribed) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Send(context.Background(), ports.Envelope{Event: appsync.EventCursorMove, Payload: json.RawMessage(`{}`)}))
	require.Eventually(t, func() bool { return len(rec.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_RejectedIsPermanent(t *testing.T) {
	srv := startRelay(t)
	_, rec := subscribe(t, srv.URL, token(t, "mallory"), ports.SubscribeOptions{})

	require.Eventually(t, func() bool { return rec.count(ports.StatusChannelError) == 1 }, 2*time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	last := rec.errs[len(rec.errs)-1]
	rec.mu.Unlock()
	assert.ErrorIs(t, last, ErrRejected)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count(ports.StatusSubscribed))
	assert.Equal(t, 1, rec.count(ports.StatusChannelError), "no further dials")
}

func TestTransport_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		payload, _ := json.Marshal(ports.SystemNotice{Status: ports.StatusSubscribed})
		_ = conn.WriteJSON(ports.Envelope{Event: ports.SystemEvent, Payload: payload})
		if n == 1 {
			conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sub, rec := subscribe(t, srv.URL, "", ports.SubscribeOptions{})
	require.Eventually(t, func() bool { return rec.count(ports.StatusSubscribed) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, rec.count(ports.StatusChannelError), 1)

	require.NoError(t, sub.Close())
	assert.Equal(t, 1, rec.count(ports.StatusClosed))
	require.NoError(t, sub.Close())
	assert.Equal(t, 1, rec.count(ports.StatusClosed))
}

func TestTransport_SendWithoutConnectionIsDropped(t *testing.T) {
	tr, err := NewTransport(Options{BaseURL: "http://127.0.0.1:1", InitialInterval: time.Hour}, nil)
	require.NoError(t, err)
	sub, err := tr.Subscribe(context.Background(), "room:p1", ports.SubscribeOptions{}, ports.Handler{})
	require.NoError(t, err)
	defer sub.Close()

	assert.NoError(t, sub.Send(context.Background(), ports.Envelope{Event: "x", Payload: json.RawMessage(`{}`)}))
}

func TestNewTransport(t *testing.T) {
	tests := []struct {
		base    string
		wantURL string
		wantErr bool
	}{
		{base: "http://relay.local:8080/", wantURL: "ws://relay.local:8080/ws/rooms/room:p1"},
		{base: "https://relay.flowminds.ai", wantURL: "wss://relay.flowminds.ai/ws/rooms/room:p1"},
		{base: "ftp://relay", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			tr, err := NewTransport(Options{BaseURL: tt.base}, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(tr.roomURL("room:p1", false), tt.wantURL))
		})
	}
}
