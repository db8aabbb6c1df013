package server

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.allow() {
			t.Fatalf("Request %d within burst was denied", i)
		}
	}
	if rl.allow() {
		t.Error("Request beyond burst was allowed")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := newRateLimiter(2, 20*time.Millisecond)

	if !rl.allow() || !rl.allow() {
		t.Fatal("Burst requests were denied")
	}
	if rl.allow() {
		t.Fatal("Request beyond burst was allowed")
	}

	time.Sleep(50 * time.Millisecond)
	if !rl.allow() {
		t.Error("Expected a token after the refill interval")
	}
}

func TestRateLimiterClampsInvalidParameters(t *testing.T) {
	rl := newRateLimiter(0, -time.Second)

	if !rl.allow() {
		t.Error("Expected at least one token after clamping capacity")
	}
}
