// Package server manages individual websocket clients, handling read/write
// pumps, protocol dispatch, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parlor-chat/parlor/internal/auth"
	"github.com/parlor-chat/parlor/internal/store"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client represents one live, authenticated, room-scoped websocket
// connection. It is owned by the handler goroutines that run its pumps; the
// registry holds only a routing reference.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	store    *store.Store
	identity auth.Identity
	roomID   uint
	addr     string

	closed    atomic.Bool
	closeOnce sync.Once

	maxMessageSize  int64
	rateLimiter     *rateLimiter
	rateLimit       RateLimitConfig
	historyPageSize int
	fetchLimitMax   int
}

// NewClient creates a Client for an upgraded connection. The send channel is
// buffered so broadcast passes never block on this peer.
func NewClient(conn *websocket.Conn, hub *Hub, st *store.Store, identity auth.Identity, roomID uint, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		id:              uuid.NewString(),
		conn:            conn,
		send:            make(chan []byte, 256),
		hub:             hub,
		store:           st,
		identity:        identity,
		roomID:          roomID,
		addr:            addr,
		maxMessageSize:  cfg.MaxMessageSize,
		rateLimiter:     newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:       cfg.RateLimit,
		historyPageSize: cfg.HistoryPageSize,
		fetchLimitMax:   cfg.HistoryFetchMax,
	}
}

// Identity returns the immutable identity that owns this connection.
func (c *Client) Identity() auth.Identity {
	return c.identity
}

// RoomID returns the room this connection is joined to.
func (c *Client) RoomID() uint {
	return c.roomID
}

// closeSend marks the client dead and closes its outbound channel exactly
// once, regardless of how many teardown paths race to it.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// reply sends a frame to this connection only. A false return means the
// connection is dead and the serving loop must stop.
func (c *Client) reply(frame []byte) bool {
	return c.hub.Broadcaster().SendTo(c, frame)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// logReadError logs the read failure that ended the serving loop with the
// appropriate severity.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Frame from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Printf("Unexpected websocket error from %s: %v", c.addr, err)
	default:
		log.Printf("Websocket read error from %s: %v", c.addr, err)
	}
}

// readPump is the serving loop: one inbound frame at a time, in receipt
// order, until disconnect or a failed reply. Its deferred teardown
// deregisters the connection exactly once.
func (c *Client) readPump() {
	defer func() {
		c.hub.Detach(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, rawFrame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			break
		}

		if c.rateLimiter != nil && !c.rateLimiter.allow() {
			log.Printf("Rate limit exceeded for %s (%d frames per %s)", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
			if !c.reply(newErrorFrame("Rate limit exceeded")) {
				break
			}
			continue
		}

		if !c.handleFrame(rawFrame) {
			break
		}
	}
}

// handleFrame interprets one inbound frame. Protocol errors are answered
// with an error frame and the loop continues; only a failed reply returns
// false.
func (c *Client) handleFrame(rawFrame []byte) bool {
	var frame inboundFrame
	if err := json.Unmarshal(rawFrame, &frame); err != nil {
		return c.reply(newErrorFrame("Invalid JSON format"))
	}

	switch frame.Type {
	case frameTypeMessage:
		return c.handleMessageFrame(frame)
	case frameTypeFetchMessages:
		return c.handleFetchFrame(frame)
	default:
		return c.reply(newErrorFrame(fmt.Sprintf("Unknown message type: %s", frame.Type)))
	}
}

// handleMessageFrame persists the message and broadcasts it to the whole
// room, sender included, so everyone learns the server-assigned id and
// timestamp through the same path.
func (c *Client) handleMessageFrame(frame inboundFrame) bool {
	content := strings.TrimSpace(frame.Content)
	if content == "" {
		return c.reply(newErrorFrame("Message content cannot be empty"))
	}

	err := c.hub.Publish(c.roomID, nil, func() ([]byte, error) {
		message, err := c.store.CreateMessage(content, c.identity.UserID, c.roomID)
		if err != nil {
			return nil, err
		}
		return newMessageFrame(message, c.identity.Username), nil
	})
	if err != nil {
		if errors.Is(err, ErrHubClosed) {
			// The message may already be persisted; the broadcast is dropped
			// because the hub is going away, and so is this loop.
			log.Printf("Dropping broadcast from %s: %v", c.addr, err)
			return false
		}
		log.Printf("Error saving message from %s: %v", c.addr, err)
		return c.reply(newErrorFrame("Failed to save message"))
	}
	return true
}

// handleFetchFrame serves a paginated history request with a unicast reply.
func (c *Client) handleFetchFrame(frame inboundFrame) bool {
	limit := c.historyPageSize
	if frame.Limit != nil && *frame.Limit > 0 {
		limit = *frame.Limit
	}
	if limit > c.fetchLimitMax {
		limit = c.fetchLimitMax
	}

	messages, hasMore, err := c.store.RecentMessages(c.roomID, limit, frame.Cursor)
	if err != nil {
		log.Printf("Error fetching messages for %s: %v", c.addr, err)
		return c.reply(newErrorFrame("Failed to fetch messages"))
	}
	return c.reply(newHistoryFrame(messages, hasMore))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Printf("Error setting write deadline for %s: %v", c.addr, err)
				return
			}
			if !ok {
				c.writeCloseMessage()
				return
			}
			// One frame per websocket message; peers decode each
			// message as a single JSON document.
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error writing frame to %s: %v", c.addr, err)
				}
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// closeConnection safely closes the websocket connection.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection in writePump: %v", err)
	}
}

func (c *Client) writeCloseMessage() {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
}

// writePing keeps the connection alive between frames.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing ping message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}
