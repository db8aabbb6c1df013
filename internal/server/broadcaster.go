// Package server room broadcaster: best-effort, at-most-once fan-out of one
// frame to the live members of a room.
package server

import (
	"log"
)

// Broadcaster delivers outbound frames to room members and reconciles
// delivery failures by evicting dead connections from the registry.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast delivers the frame to every member of the room except exclude.
// Delivery is attempted independently per member: one failure neither aborts
// nor reorders delivery to the rest. Failed members are evicted in a second
// phase after the whole pass completes. Writes are never retried.
func (b *Broadcaster) Broadcast(roomID uint, frame []byte, exclude *Client) {
	members := b.registry.MembersOf(roomID)

	var failed []*Client
	for _, c := range members {
		if exclude != nil && c == exclude {
			continue
		}
		if !b.send(c, frame) {
			failed = append(failed, c)
		}
	}

	b.evict(failed)
}

// SendTo delivers a frame to a single connection. It returns false if the
// connection is already deregistered or the write fails; the connection is
// evicted and the caller must stop using it.
func (b *Broadcaster) SendTo(c *Client, frame []byte) bool {
	if b.send(c, frame) {
		return true
	}
	b.evict([]*Client{c})
	return false
}

// send queues the frame on the connection's outbound channel without
// blocking. A full buffer counts as a delivery failure: a peer that cannot
// drain its queue must not stall the room.
func (b *Broadcaster) send(c *Client, frame []byte) (ok bool) {
	// The send channel may be closed concurrently by eviction on another
	// goroutine's broadcast pass.
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	if !b.registry.registered(c) || c.closed.Load() {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) evict(failed []*Client) {
	for _, c := range failed {
		b.registry.Leave(c)
		c.closeSend()
		log.Printf("Client %s (%s) evicted after failed delivery", c.id, c.addr)
	}
}
