package server

import (
	"testing"
)

func drainOne(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.send:
		return frame
	default:
		t.Fatal("Expected a queued frame")
		return nil
	}
}

func TestBroadcastDeliversToAllMembers(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)

	clients := []*Client{newBareClient(1), newBareClient(2), newBareClient(3)}
	for _, c := range clients {
		if err := reg.Join(c, 7); err != nil {
			t.Fatalf("Join() failed: %v", err)
		}
	}

	frame := []byte(`{"type":"message"}`)
	b.Broadcast(7, frame, nil)

	for i, c := range clients {
		got := drainOne(t, c)
		if string(got) != string(frame) {
			t.Errorf("Client %d received %q, want %q", i, got, frame)
		}
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)

	sender := newBareClient(1)
	peer := newBareClient(2)
	for _, c := range []*Client{sender, peer} {
		if err := reg.Join(c, 7); err != nil {
			t.Fatalf("Join() failed: %v", err)
		}
	}

	b.Broadcast(7, []byte("x"), sender)

	drainOne(t, peer)
	select {
	case frame := <-sender.send:
		t.Errorf("Excluded sender received frame %q", frame)
	default:
	}
}

func TestBroadcastEvictsFailedMember(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)

	healthy := []*Client{newBareClient(1), newBareClient(2)}
	// An unbuffered channel makes every non-blocking send fail, modeling a
	// peer that never drains its queue.
	stuck := &Client{id: "stuck", send: make(chan []byte)}

	for _, c := range healthy {
		if err := reg.Join(c, 7); err != nil {
			t.Fatalf("Join() failed: %v", err)
		}
	}
	if err := reg.Join(stuck, 7); err != nil {
		t.Fatalf("Join(stuck) failed: %v", err)
	}

	b.Broadcast(7, []byte("x"), nil)

	for i, c := range healthy {
		if got := drainOne(t, c); string(got) != "x" {
			t.Errorf("Healthy client %d received %q", i, got)
		}
	}

	if reg.Count(7) != 2 {
		t.Errorf("Expected failing member to be evicted, Count=%d", reg.Count(7))
	}
	if reg.registered(stuck) {
		t.Error("Expected stuck client to be deregistered")
	}
	if !stuck.closed.Load() {
		t.Error("Expected stuck client to be marked closed")
	}

	// A second broadcast must succeed for the survivors and skip the evicted
	// connection entirely.
	b.Broadcast(7, []byte("y"), nil)
	for i, c := range healthy {
		if got := drainOne(t, c); string(got) != "y" {
			t.Errorf("Healthy client %d received %q after eviction", i, got)
		}
	}
}

func TestSendToDeliversAndReportsFailure(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)

	c := newBareClient(1)
	if err := reg.Join(c, 7); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}

	if !b.SendTo(c, []byte("hello")) {
		t.Fatal("SendTo() failed for a registered connection")
	}
	if got := drainOne(t, c); string(got) != "hello" {
		t.Errorf("Received %q, want %q", got, "hello")
	}

	reg.Leave(c)
	if b.SendTo(c, []byte("again")) {
		t.Error("SendTo() succeeded for a deregistered connection")
	}
}

func TestSendToClosedChannelDoesNotPanic(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg)

	c := newBareClient(1)
	if err := reg.Join(c, 7); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	c.closeSend()

	if b.SendTo(c, []byte("x")) {
		t.Error("SendTo() succeeded on a closed connection")
	}
	if reg.registered(c) {
		t.Error("Expected closed connection to be evicted")
	}
}
