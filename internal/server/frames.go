// Package server frame definitions: the JSON protocol units multiplexed over
// each websocket connection.
package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/parlor-chat/parlor/internal/store"
)

// Wire names of the recognized frame kinds.
const (
	frameTypeMessage       = "message"
	frameTypeFetchMessages = "fetch_messages"
	frameTypeHistory       = "messages_history"
	frameTypeError         = "error"
)

// inboundFrame is the superset of fields a client may send. Type selects the
// operation; the remaining fields are interpreted per kind.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Cursor  *uint  `json:"cursor,omitempty"`
	Limit   *int   `json:"limit,omitempty"`
}

// messagePayload is the outbound representation of one stored message.
type messagePayload struct {
	ID        uint   `json:"id"`
	Content   string `json:"content"`
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	RoomID    uint   `json:"room_id"`
	CreatedAt string `json:"created_at"`
}

type messageFrame struct {
	Type string         `json:"type"`
	Data messagePayload `json:"data"`
}

type historyData struct {
	Messages   []messagePayload `json:"messages"`
	HasMore    bool             `json:"has_more"`
	NextCursor *uint            `json:"next_cursor"`
}

type historyFrame struct {
	Type string      `json:"type"`
	Data historyData `json:"data"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func payloadFromMessage(m store.Message, username string) messagePayload {
	if username == "" {
		username = m.User.Username
	}
	return messagePayload{
		ID:        m.ID,
		Content:   m.Content,
		UserID:    m.UserID,
		Username:  username,
		RoomID:    m.RoomID,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// newMessageFrame encodes a broadcastable message frame. The author's
// username is passed explicitly so broadcasts do not depend on the
// association being loaded.
func newMessageFrame(m *store.Message, username string) []byte {
	payload, err := json.Marshal(messageFrame{
		Type: frameTypeMessage,
		Data: payloadFromMessage(*m, username),
	})
	if err != nil {
		// Frame types contain only marshalable fields.
		panic(fmt.Sprintf("marshal message frame: %v", err))
	}
	return payload
}

// newHistoryFrame encodes a page of messages oldest-first. When more history
// exists the cursor for the next page is the id of the oldest message in
// this page.
func newHistoryFrame(messages []store.Message, hasMore bool) []byte {
	payloads := make([]messagePayload, 0, len(messages))
	for _, m := range messages {
		payloads = append(payloads, payloadFromMessage(m, ""))
	}

	var nextCursor *uint
	if hasMore && len(messages) > 0 {
		oldest := messages[0].ID
		nextCursor = &oldest
	}

	payload, err := json.Marshal(historyFrame{
		Type: frameTypeHistory,
		Data: historyData{Messages: payloads, HasMore: hasMore, NextCursor: nextCursor},
	})
	if err != nil {
		panic(fmt.Sprintf("marshal history frame: %v", err))
	}
	return payload
}

func newErrorFrame(message string) []byte {
	payload, err := json.Marshal(errorFrame{Type: frameTypeError, Message: message})
	if err != nil {
		panic(fmt.Sprintf("marshal error frame: %v", err))
	}
	return payload
}
