// Package server wires HTTP handlers into a ServeMux for the Parlor
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application
// routes: health check, the websocket endpoint, and the REST API.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("GET /ws/{roomID}", s.HandleWebSocket)
	mux.HandleFunc("POST /api/v1/auth/signup", s.SignupHandler)
	mux.HandleFunc("POST /api/v1/auth/login", s.LoginHandler)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.RefreshHandler)
	mux.HandleFunc("GET /api/v1/auth/me", s.MeHandler)
	mux.HandleFunc("GET /api/v1/users", s.ListUsersHandler)
	mux.HandleFunc("GET /api/v1/users/{userID}", s.UserHandler)
	mux.HandleFunc("GET /api/v1/rooms", s.ListRoomsHandler)
	mux.HandleFunc("POST /api/v1/rooms", s.CreateRoomHandler)
	mux.HandleFunc("GET /api/v1/rooms/{roomID}", s.RoomHandler)
	mux.HandleFunc("GET /api/v1/rooms/{roomID}/messages", s.RoomMessagesHandler)
	return mux
}
