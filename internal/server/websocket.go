// Package server websocket upgrade handling: credential extraction,
// authentication, room resolution, and connection admission.
package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlor-chat/parlor/internal/auth"
	"github.com/parlor-chat/parlor/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Server wires the hub, the message store, and the session authenticator
// behind the HTTP surface.
type Server struct {
	hub   *Hub
	store *store.Store
	auth  *auth.Service
}

// New creates a Server with a fresh hub over the given collaborators.
func New(st *store.Store, authService *auth.Service) *Server {
	return &Server{
		hub:   NewHub(),
		store: st,
		auth:  authService,
	}
}

// Hub returns the server's hub for lifecycle control.
func (s *Server) Hub() *Hub {
	return s.hub
}

// bearerToken locates the bearer credential in the request: the token query
// parameter first, then the Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// closePolicyViolation sends a 1008 close frame with the reason and releases
// the connection. Used for every fatal pre-registration failure.
func closePolicyViolation(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing close frame: %v", err)
	}
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing rejected connection: %v", err)
	}
}

func authFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, auth.ErrUnknownUser):
		return "User not found"
	case errors.Is(err, auth.ErrInactiveAccount):
		return "User account is deactivated"
	default:
		return "Authentication error"
	}
}

// HandleWebSocket upgrades the connection and drives it through the
// admission sequence: authenticate, resolve the room, register, send the
// history snapshot, then start serving. Authentication failures and unknown
// rooms close the connection with a policy violation before it ever enters
// the registry.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID, roomIDErr := strconv.ParseUint(r.PathValue("roomID"), 10, 32)
	token := bearerToken(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	if token == "" {
		closePolicyViolation(conn, "Missing authentication token")
		return
	}

	identity, err := s.auth.Resolve(token)
	if err != nil {
		closePolicyViolation(conn, authFailureReason(err))
		return
	}

	// An unparsable room id gets the same treatment as a room that does not
	// exist: every fatal admission failure closes with a policy violation.
	if roomIDErr != nil {
		closePolicyViolation(conn, "Room not found")
		return
	}

	exists, err := s.store.RoomExists(uint(roomID))
	if err != nil {
		log.Printf("Error resolving room %d: %v", roomID, err)
		closePolicyViolation(conn, "Room not found")
		return
	}
	if !exists {
		closePolicyViolation(conn, "Room not found")
		return
	}

	client := NewClient(conn, s.hub, s.store, *identity, uint(roomID), r.RemoteAddr)
	if err := s.hub.Attach(client, uint(roomID)); err != nil {
		log.Printf("Error registering client %s: %v", client.id, err)
		if closeErr := conn.Close(); closeErr != nil && !isExpectedCloseError(closeErr) {
			log.Printf("Error closing connection: %v", closeErr)
		}
		return
	}

	if !client.sendHistorySnapshot() {
		s.hub.Detach(client)
		return
	}

	s.hub.Serve(client)
}
