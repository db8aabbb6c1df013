// Package server coordinates client registration, message broadcast, and
// connection cleanup for the Parlor websocket system via the Hub type.
package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrHubClosed is returned by Publish when the hub is shutting down and the
// frame can no longer be queued for broadcast.
var ErrHubClosed = errors.New("hub is shutting down")

// BroadcastMessage is one queued fan-out: a frame bound for every member of
// a room, optionally excluding one connection.
type BroadcastMessage struct {
	RoomID  uint
	Payload []byte
	Exclude *Client
}

// Hub owns the registry and broadcaster and runs the fan-out loop. Handlers
// attach and detach connections synchronously; broadcasts funnel through one
// channel so fan-out passes for a room never interleave.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	broadcast   chan BroadcastMessage

	publishMu    sync.Mutex
	publishLocks map[uint]*sync.Mutex

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub ready to manage websocket connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()
	return &Hub{
		registry:     registry,
		broadcaster:  NewBroadcaster(registry),
		broadcast:    make(chan BroadcastMessage, 64),
		publishLocks: make(map[uint]*sync.Mutex),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Broadcaster returns the hub's room broadcaster.
func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// Run drains the broadcast queue until Shutdown. It should be called in its
// own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return
		case bm := <-h.broadcast:
			h.broadcaster.Broadcast(bm.RoomID, bm.Payload, bm.Exclude)
		}
	}
}

// Attach registers the connection with its room and starts the write pump.
// The read pump is started separately by Serve once the handler has sent the
// initial history frame.
func (h *Hub) Attach(c *Client, roomID uint) error {
	if err := h.registry.Join(c, roomID); err != nil {
		return err
	}
	log.Printf("Client %s (%s) joined room %d as %q. Members: %d",
		c.id, c.addr, roomID, c.identity.Username, h.registry.Count(roomID))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	return nil
}

// Serve starts the connection's read loop.
func (h *Hub) Serve(c *Client) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// Detach removes the connection from the registry and closes its outbound
// channel. It is idempotent and completes synchronously, so teardown never
// leaves a stale registry entry behind.
func (h *Hub) Detach(c *Client) {
	h.registry.Leave(c)
	c.closeSend()
}

// Publish runs persist under the room's publish lock and queues the returned
// frame for broadcast. Serializing persist and enqueue per room guarantees
// that delivery order equals persistence order. During shutdown the persist
// may have completed while the broadcast can no longer be queued; that case
// returns ErrHubClosed.
func (h *Hub) Publish(roomID uint, exclude *Client, persist func() ([]byte, error)) error {
	mu := h.publishLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	payload, err := persist()
	if err != nil {
		return err
	}

	// The broadcast buffer may still accept sends after cancellation, so the
	// done check must win when both cases are ready.
	select {
	case <-h.ctx.Done():
		return ErrHubClosed
	default:
	}

	select {
	case h.broadcast <- BroadcastMessage{RoomID: roomID, Payload: payload, Exclude: exclude}:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) publishLock(roomID uint) *sync.Mutex {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	mu, ok := h.publishLocks[roomID]
	if !ok {
		mu = &sync.Mutex{}
		h.publishLocks[roomID] = mu
	}
	return mu
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.registry.connections()
	for _, c := range clients {
		h.Detach(c)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection from %s: %v", c.addr, err)
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown stops the fan-out loop, closes all connections, and waits for the
// pump goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
