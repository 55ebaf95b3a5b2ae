package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Jovicsi/flowminds.ai/application/ports"
	appsync "github.com/Jovicsi/flowminds.ai/application/sync"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 256
)

// Client is one websocket connection in a room
type Client struct {
	id     string
	userID string
	room   string
	role   valueobjects.Role
	self   bool

	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	limiter  *rate.Limiter
	maxBytes int64
	logger   *zap.Logger
}

// ClientOptions are the per-connection limits
type ClientOptions struct {
	Self            bool
	MessagesPerSec  float64
	MaxMessageBytes int64
}

// NewClient creates a client for conn. It does nothing until Start.
func NewClient(hub *Hub, conn *websocket.Conn, room, userID string, role valueobjects.Role, opts ClientOptions, logger *zap.Logger) *Client {
	id := uuid.New().String()
	burst := int(opts.MessagesPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		id:       id,
		userID:   userID,
		room:     room,
		role:     role,
		self:     opts.Self,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		limiter:  rate.NewLimiter(rate.Limit(opts.MessagesPerSec), burst),
		maxBytes: opts.MaxMessageBytes,
		logger: logger.With(
			zap.String("userID", userID),
			zap.String("room", room),
			zap.String("connectionID", id),
		),
	}
}

// Start registers the client and runs its pumps
func (c *Client) Start() {
	select {
	case c.hub.register <- c:
	case <-c.hub.ctx.Done():
		c.conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *Client) notifySubscribed() {
	payload, _ := json.Marshal(ports.SystemNotice{Status: ports.StatusSubscribed})
	frame, _ := json.Marshal(ports.Envelope{Event: ports.SystemEvent, Payload: payload})
	select {
	case c.send <- frame:
	default:
		c.logger.Error("Failed to send subscription notice")
	}
}

// readPump forwards the peer's frames to the room
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
		c.logger.Debug("Read pump stopped")
	}()

	if c.maxBytes > 0 {
		c.conn.SetReadLimit(c.maxBytes)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("Binary messages not supported")
			continue
		}
		c.hub.metrics.RelayMessage("in")
		if data, ok := c.admit(message); ok {
			c.hub.publish(&roomMessage{room: c.room, from: c, data: data})
		}
	}
}

// admit decides whether a frame may be relayed. Frames over the rate,
// malformed frames, system frames and graph changes from viewers are
// dropped.
func (c *Client) admit(message []byte) ([]byte, bool) {
	if !c.limiter.Allow() {
		c.hub.metrics.RelayMessage("throttled")
		return nil, false
	}
	var env ports.Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
		c.hub.metrics.RelayMessage("malformed")
		return nil, false
	}
	if env.Event == ports.SystemEvent {
		return nil, false
	}
	if !c.role.CanEdit() && env.Event != appsync.EventCursorMove {
		c.hub.metrics.RelayMessage("forbidden")
		c.logger.Debug("Dropping change from read-only member", zap.String("event", env.Event))
		return nil, false
	}
	return message, true
}

// writePump sends queued frames and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("Write pump stopped")
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
