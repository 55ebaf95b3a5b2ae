package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Jovicsi/flowminds.ai/application/session"
	appsync "github.com/Jovicsi/flowminds.ai/application/sync"
	"github.com/Jovicsi/flowminds.ai/domain/core/valueobjects"
	"github.com/Jovicsi/flowminds.ai/infrastructure/config"
	pkgerrors "github.com/Jovicsi/flowminds.ai/pkg/errors"
)

// RoomParam is the route parameter holding the topic name
const RoomParam = "room"

// Authorizer decides which role a user holds on a project
type Authorizer interface {
	Authorize(ctx context.Context, projectID string, user session.User) (valueobjects.Role, error)
}

// Server upgrades authorized requests into room connections
type Server struct {
	hub      *Hub
	auth     Authenticator
	access   Authorizer
	tunables config.TunablesSource
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewServer creates a new relay server. tunables is read on every
// connection so limits follow configuration reloads.
func NewServer(hub *Hub, auth Authenticator, access Authorizer, tunables config.TunablesSource, checkOrigin func(*http.Request) bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tunables == nil {
		tunables = config.StaticTunables(config.DefaultTunables())
	}
	return &Server{
		hub:      hub,
		auth:     auth,
		access:   access,
		tunables: tunables,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Hub returns the server's hub
func (s *Server) Hub() *Hub { return s.hub }

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// HandleWebSocket joins the caller to the room named in the path
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, RoomParam)
	projectID, ok := appsync.ProjectFromTopic(room)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown room")
		return
	}

	user, err := s.auth.Authenticate(r.Context(), tokenFromRequest(r))
	if err != nil {
		s.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	role, err := s.access.Authorize(ctx, projectID, user)
	cancel()
	if err != nil {
		status := http.StatusInternalServerError
		if appErr := pkgerrors.GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
			status = appErr.HTTPStatus
		}
		s.logger.Info("Room access refused",
			zap.String("projectID", projectID),
			zap.String("userID", user.ID),
			zap.Error(err))
		writeError(w, status, http.StatusText(status))
		return
	}

	tun := s.tunables.Current()
	if size := s.hub.RoomSize(room); size >= tun.MaxRoomSize {
		s.logger.Warn("Room is full",
			zap.String("room", room),
			zap.Int("roomSize", size))
		writeError(w, http.StatusTooManyRequests, "room is full")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			zap.Error(err),
			zap.String("remoteAddr", r.RemoteAddr))
		return
	}

	client := NewClient(s.hub, conn, room, user.ID, role, ClientOptions{
		Self:            r.URL.Query().Get("self") == "true",
		MessagesPerSec:  tun.MessagesPerSec,
		MaxMessageBytes: tun.MaxMessageBytes,
	}, s.logger)
	client.Start()
}
