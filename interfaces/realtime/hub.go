// Package realtime is the relay that carries broadcast messages between the
// editors that have a project open.
package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/pkg/observability"
)

// Hub maintains the open connections of every room and fans messages out
// within a room.
type Hub struct {
	rooms map[string]map[*Client]bool // room -> set of clients
	mu    sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	logger  *zap.Logger
	metrics *observability.Metrics
}

// roomMessage is a frame from one client to the rest of its room
type roomMessage struct {
	room string
	from *Client
	data []byte
}

// NewHub creates a new hub
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan *roomMessage, 1000),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
}

// Run is the hub's event loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case message := <-h.broadcast:
			h.broadcastToRoom(message)
		}
	}
}

// Stop shuts the hub down and waits for Run to return
func (h *Hub) Stop() {
	h.logger.Info("Stopping relay hub")
	h.cancel()
	<-h.done
}

// RoomSize returns the number of connections in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns how many rooms have at least one connection
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) publish(m *roomMessage) {
	select {
	case h.broadcast <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.rooms[client.room] == nil {
		h.rooms[client.room] = make(map[*Client]bool)
	}
	h.rooms[client.room][client] = true
	size, rooms := len(h.rooms[client.room]), len(h.rooms)
	h.mu.Unlock()

	h.metrics.RelayConnectionOpened()
	h.metrics.SetRelayRooms(rooms)
	client.notifySubscribed()

	h.logger.Info("Client joined room",
		zap.String("room", client.room),
		zap.String("userID", client.userID),
		zap.String("connectionID", client.id),
		zap.Int("roomSize", size),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.rooms[client.room]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
	remaining, rooms := len(clients), len(h.rooms)
	h.mu.Unlock()

	h.metrics.RelayConnectionClosed()
	h.metrics.SetRelayRooms(rooms)
	h.logger.Info("Client left room",
		zap.String("room", client.room),
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", remaining),
	)
}

// broadcastToRoom delivers a frame to every other client of the room, and
// back to the sender when it asked for its own messages. A client whose
// send buffer is full is disconnected.
func (h *Hub) broadcastToRoom(m *roomMessage) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.rooms[m.room] {
		if client == m.from && !client.self {
			continue
		}
		select {
		case client.send <- m.data:
			h.metrics.RelayMessage("out")
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Closing slow client",
			zap.String("room", client.room),
			zap.String("connectionID", client.id),
		)
		h.unregisterClient(client)
		client.conn.Close()
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, clients := range h.rooms {
		for client := range clients {
			close(client.send)
			client.conn.Close()
		}
		delete(h.rooms, room)
	}
	h.metrics.SetRelayRooms(0)
	h.logger.Info("All connections closed")
}
