// Package server REST handlers: account signup/login/refresh, room
// directory management, and message history over plain HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/parlor-chat/parlor/internal/auth"
	"github.com/parlor-chat/parlor/internal/store"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userSummary struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	User         userSummary `json:"user"`
}

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func summarize(user *store.User) userSummary {
	return userSummary{ID: user.ID, Username: user.Username, Email: user.Email}
}

// HealthHandler provides a simple health check endpoint.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Parlor chat server is running!")
}

// authenticate resolves the bearer token on a REST request.
func (s *Server) authenticate(r *http.Request) (*auth.Identity, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return s.auth.Resolve(token)
}

// SignupHandler creates a new account.
func (s *Server) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}

	hashed, err := s.auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to create user account")
		return
	}

	user, err := s.store.CreateUser(req.Username, req.Email, hashed)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			writeJSONError(w, http.StatusBadRequest, "User with this email or username already exists")
			return
		}
		log.Printf("Error creating user: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to create user account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": fmt.Sprintf("User %s signed up successfully", user.Email),
		"user":    summarize(user),
	})
}

// LoginHandler authenticates email/password and returns a token pair.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	user, err := s.auth.Authenticate(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeJSONError(w, http.StatusUnauthorized, "Invalid credentials")
		case errors.Is(err, auth.ErrInactiveAccount):
			writeJSONError(w, http.StatusUnauthorized, "User account is deactivated")
		default:
			log.Printf("Error authenticating user: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "Login failed")
		}
		return
	}

	s.writeTokenResponse(w, user)
}

// RefreshHandler exchanges a refresh token for a new token pair.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeJSONError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	user, err := s.auth.Refresh(req.RefreshToken)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate refresh token")
		return
	}

	s.writeTokenResponse(w, user)
}

func (s *Server) writeTokenResponse(w http.ResponseWriter, user *store.User) {
	access, refresh, err := s.auth.IssueTokens(user)
	if err != nil {
		log.Printf("Error issuing tokens: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		User:         summarize(user),
	})
}

// MeHandler returns the account that owns the presented token.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	user, err := s.store.UserByID(identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		log.Printf("Error loading user %d: %v", identity.UserID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, summarize(user))
}

// ListUsersHandler returns all registered accounts.
func (s *Server) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	users, err := s.store.Users()
	if err != nil {
		log.Printf("Error listing users: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}

	summaries := make([]userSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, summarize(&users[i]))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// UserHandler returns one account by id.
func (s *Server) UserHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	userID, err := strconv.ParseUint(r.PathValue("userID"), 10, 32)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := s.store.UserByID(uint(userID))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("User with ID %d not found", userID))
			return
		}
		log.Printf("Error loading user %d: %v", userID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, summarize(user))
}

// RoomHandler returns one active room by id.
func (s *Server) RoomHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	roomID, err := strconv.ParseUint(r.PathValue("roomID"), 10, 32)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid room id")
		return
	}

	room, err := s.store.RoomByID(uint(roomID))
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Room with ID %d not found", roomID))
			return
		}
		log.Printf("Error loading room %d: %v", roomID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to load room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// ListRoomsHandler returns all active rooms.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	rooms, err := s.store.ActiveRooms()
	if err != nil {
		log.Printf("Error listing rooms: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// CreateRoomHandler creates a new chat room.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	room, err := s.store.CreateRoom(req.Name, req.Description)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRoom) {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Room with name %q already exists", req.Name))
			return
		}
		log.Printf("Error creating room: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// RoomMessagesHandler serves paginated room history over REST with the same
// contract as the fetch_messages frame.
func (s *Server) RoomMessagesHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticate(r); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	roomID, err := strconv.ParseUint(r.PathValue("roomID"), 10, 32)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid room id")
		return
	}

	exists, err := s.store.RoomExists(uint(roomID))
	if err != nil {
		log.Printf("Error resolving room %d: %v", roomID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}
	if !exists {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Room with ID %d not found", roomID))
		return
	}

	cfg := currentConfig()
	limit := cfg.HistoryPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > cfg.HistoryFetchMax {
		limit = cfg.HistoryFetchMax
	}

	var cursor *uint
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid cursor")
			return
		}
		value := uint(parsed)
		cursor = &value
	}

	messages, hasMore, err := s.store.RecentMessages(uint(roomID), limit, cursor)
	if err != nil {
		log.Printf("Error fetching messages for room %d: %v", roomID, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to fetch messages")
		return
	}

	payloads := make([]messagePayload, 0, len(messages))
	for _, m := range messages {
		payloads = append(payloads, payloadFromMessage(m, ""))
	}
	var nextCursor *uint
	if hasMore && len(messages) > 0 {
		oldest := messages[0].ID
		nextCursor = &oldest
	}

	writeJSON(w, http.StatusOK, historyData{
		Messages:   payloads,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	})
}
