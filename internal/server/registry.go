// Package server connection registry: the concurrency-safe bidirectional
// index between rooms and live connections.
package server

import (
	"errors"
	"sync"
)

// ErrAlreadyJoined is returned when a connection that is already registered
// attempts a second join. A connection belongs to exactly one room for its
// lifetime; rejoining requires a new connection.
var ErrAlreadyJoined = errors.New("connection already joined a room")

// Registry tracks which connections belong to which room. Both indexes are
// guarded by one RWMutex; no operation performs I/O under the lock, so
// critical sections stay short regardless of peer responsiveness.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uint]map[*Client]struct{}
	conns map[*Client]uint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[uint]map[*Client]struct{}),
		conns: make(map[*Client]uint),
	}
}

// Join adds the connection to the room's member set and records the reverse
// mapping. The update is atomic: a concurrent broadcast sees the membership
// either before or after the join, never partially. Joining an already
// registered connection is a programming fault and returns ErrAlreadyJoined
// without touching either index.
func (r *Registry) Join(c *Client, roomID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; ok {
		return ErrAlreadyJoined
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[roomID] = members
	}
	members[c] = struct{}{}
	r.conns[c] = roomID
	return nil
}

// Leave removes the connection from its room and the reverse mapping. It is
// a no-op if the connection is not registered: disconnects race with
// broadcast eviction and both paths call Leave. Empty room entries are
// removed so idle rooms carry no bookkeeping.
func (r *Registry) Leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.conns[c]
	if !ok {
		return
	}
	delete(r.conns, c)

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// MembersOf returns a point-in-time copy of the room's member set. The
// snapshot is safe to iterate while concurrent joins and leaves mutate the
// registry.
func (r *Registry) MembersOf(roomID uint) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	snapshot := make([]*Client, 0, len(members))
	for c := range members {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

// Count returns the number of connections currently joined to the room.
func (r *Registry) Count(roomID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Contains reports whether any connection owned by the user is currently in
// the room.
func (r *Registry) Contains(userID, roomID uint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.rooms[roomID] {
		if c.identity.UserID == userID {
			return true
		}
	}
	return false
}

// registered reports whether the connection is currently in the registry.
func (r *Registry) registered(c *Client) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[c]
	return ok
}

// connections returns a snapshot of every registered connection, used during
// shutdown.
func (r *Registry) connections() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]*Client, 0, len(r.conns))
	for c := range r.conns {
		snapshot = append(snapshot, c)
	}
	return snapshot
}
