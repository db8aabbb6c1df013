package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlor-chat/parlor/internal/auth"
	"github.com/parlor-chat/parlor/internal/store"
)

var dbSeq int64

const testOrigin = "http://localhost:8080"

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	st, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	return st
}

func newTestAuth(st *store.Store) (*auth.Service, *auth.JWTManager) {
	manager := auth.NewJWTManager(auth.JWTConfig{
		SecretKey:            "test-secret",
		Issuer:               "parlor-test",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: time.Hour,
	})
	return auth.NewService(manager, auth.NewPasswordHasher(), st), manager
}

// newTestApp spins up a full server over an in-memory store with a running
// hub and an httptest listener.
func newTestApp(t *testing.T) (*Server, *store.Store, *auth.JWTManager, *httptest.Server) {
	t.Helper()

	SetConfig(&Config{
		AllowedOrigins: []string{testOrigin},
		RateLimit:      RateLimitConfig{Burst: 1000, RefillInterval: time.Second},
	})
	t.Cleanup(func() { SetConfig(nil) })

	st := newTestStore(t)
	authService, manager := newTestAuth(st)
	srv := New(st, authService)
	go srv.Hub().Run()

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		if err := srv.Hub().Shutdown(2 * time.Second); err != nil {
			t.Logf("Hub shutdown: %v", err)
		}
	})
	return srv, st, manager, ts
}

// seedUser creates an account and returns it with a valid access token.
func seedUser(t *testing.T, st *store.Store, manager *auth.JWTManager, username, email string) (*store.User, string) {
	t.Helper()

	user, err := st.CreateUser(username, email, "hashed")
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	token, err := manager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		t.Fatalf("GenerateAccessToken() failed: %v", err)
	}
	return user, token
}

func seedRoom(t *testing.T, st *store.Store, name string) *store.Room {
	t.Helper()

	room, err := st.CreateRoom(name, "")
	if err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}
	return room
}

// dialRoom opens a websocket connection to the room endpoint with the token
// in the query string.
func dialRoom(t *testing.T, ts *httptest.Server, roomID uint, token string) *websocket.Conn {
	t.Helper()
	return dialPath(t, ts, fmt.Sprintf("/ws/%d", roomID), token)
}

func dialPath(t *testing.T, ts *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	if token != "" {
		url += "?token=" + token
	}

	headers := http.Header{}
	headers.Set("Origin", testOrigin)

	conn, resp, err := websocket.DefaultDialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Dial(%s) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readFrame decodes the next frame from the connection.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() failed: %v", err)
	}
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}
	return frame
}

// expectPolicyViolation asserts that the next read fails with a 1008 close
// carrying the given reason.
func expectPolicyViolation(t *testing.T, conn *websocket.Conn, reason string) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() failed: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("Expected connection to be closed")
	}
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("Expected CloseError, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("Expected close code %d, got %d", websocket.ClosePolicyViolation, closeErr.Code)
	}
	if closeErr.Text != reason {
		t.Errorf("Expected close reason %q, got %q", reason, closeErr.Text)
	}
}

func frameType(frame map[string]any) string {
	s, _ := frame["type"].(string)
	return s
}

func frameData(t *testing.T, frame map[string]any) map[string]any {
	t.Helper()
	data, ok := frame["data"].(map[string]any)
	if !ok {
		t.Fatalf("Frame has no data object: %v", frame)
	}
	return data
}
