package server

import (
	"errors"
	"sync"
	"testing"

	"github.com/parlor-chat/parlor/internal/auth"
)

func newBareClient(userID uint) *Client {
	return &Client{
		id:       "test",
		send:     make(chan []byte, 4),
		identity: auth.Identity{UserID: userID, Username: "tester", Active: true},
	}
}

func TestRegistryJoinAndMembers(t *testing.T) {
	reg := NewRegistry()
	a := newBareClient(1)
	b := newBareClient(2)

	if err := reg.Join(a, 7); err != nil {
		t.Fatalf("Join(a) failed: %v", err)
	}
	if err := reg.Join(b, 7); err != nil {
		t.Fatalf("Join(b) failed: %v", err)
	}

	members := reg.MembersOf(7)
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}
	if reg.Count(7) != 2 {
		t.Errorf("Expected Count(7)=2, got %d", reg.Count(7))
	}
	if !reg.Contains(1, 7) || !reg.Contains(2, 7) {
		t.Error("Expected Contains to report both users in room 7")
	}
	if reg.Contains(1, 8) {
		t.Error("Expected Contains to be false for a different room")
	}
}

func TestRegistryDoubleJoinIsFault(t *testing.T) {
	reg := NewRegistry()
	a := newBareClient(1)

	if err := reg.Join(a, 7); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	if err := reg.Join(a, 8); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("Expected ErrAlreadyJoined, got %v", err)
	}

	// The failed join must not have moved the connection.
	if reg.Count(7) != 1 || reg.Count(8) != 0 {
		t.Errorf("Registry mutated by failed join: room7=%d room8=%d", reg.Count(7), reg.Count(8))
	}
}

func TestRegistryLeaveIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	a := newBareClient(1)

	if err := reg.Join(a, 7); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}

	reg.Leave(a)
	if reg.Count(7) != 0 {
		t.Errorf("Expected empty room after Leave, got %d members", reg.Count(7))
	}

	// Second Leave must be a harmless no-op.
	reg.Leave(a)
	if reg.Count(7) != 0 {
		t.Errorf("Expected empty room after double Leave, got %d members", reg.Count(7))
	}

	if reg.registered(a) {
		t.Error("Expected connection to be deregistered")
	}
}

func TestRegistryEmptyRoomEntriesRemoved(t *testing.T) {
	reg := NewRegistry()
	a := newBareClient(1)

	if err := reg.Join(a, 7); err != nil {
		t.Fatalf("Join() failed: %v", err)
	}
	reg.Leave(a)

	reg.mu.RLock()
	_, exists := reg.rooms[7]
	reg.mu.RUnlock()
	if exists {
		t.Error("Expected empty room entry to be removed")
	}
}

func TestRegistrySnapshotImmuneToMutation(t *testing.T) {
	reg := NewRegistry()
	a := newBareClient(1)
	b := newBareClient(2)

	if err := reg.Join(a, 7); err != nil {
		t.Fatalf("Join(a) failed: %v", err)
	}
	if err := reg.Join(b, 7); err != nil {
		t.Fatalf("Join(b) failed: %v", err)
	}

	snapshot := reg.MembersOf(7)
	reg.Leave(a)
	reg.Leave(b)

	if len(snapshot) != 2 {
		t.Errorf("Snapshot changed under mutation: %d members", len(snapshot))
	}
	if reg.Count(7) != 0 {
		t.Errorf("Expected empty room, got %d members", reg.Count(7))
	}
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			c := newBareClient(userID)
			roomID := userID % 5
			if err := reg.Join(c, roomID); err != nil {
				t.Errorf("Join() failed: %v", err)
				return
			}
			reg.MembersOf(roomID)
			reg.Leave(c)
		}(uint(i))
	}
	wg.Wait()

	for roomID := uint(0); roomID < 5; roomID++ {
		if reg.Count(roomID) != 0 {
			t.Errorf("Expected room %d to be empty, got %d members", roomID, reg.Count(roomID))
		}
	}
}
