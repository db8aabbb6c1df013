package server

import (
	"net/http/httptest"
	"testing"
)

func requestWithOrigin(origin string) bool {
	req := httptest.NewRequest("GET", "/ws/1", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return isOriginAllowed(req)
}

func TestOriginAllowedWhenConfigured(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"http://example.com"}})

	if !requestWithOrigin("http://example.com") {
		t.Error("Expected configured origin to be allowed")
	}
	if requestWithOrigin("http://other.com") {
		t.Error("Expected unconfigured origin to be blocked")
	}
}

func TestOriginMissingHeaderBlocked(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"*"}})

	if requestWithOrigin("") {
		t.Error("Expected request without Origin header to be blocked even with wildcard")
	}
}

func TestOriginWildcardAllowsAny(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"*"}})

	for _, origin := range []string{"http://anywhere.com", "https://deep.sub.example.org:8443"} {
		if !requestWithOrigin(origin) {
			t.Errorf("Expected wildcard config to allow %q", origin)
		}
	}
}

func TestOriginNormalization(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"HTTP://Example.COM"}})

	if !requestWithOrigin("http://example.com") {
		t.Error("Expected case-insensitive origin match")
	}
	// Path components in the Origin header are ignored.
	if !requestWithOrigin("http://example.com/some/path") {
		t.Error("Expected path component to be ignored")
	}
	// Scheme is part of the origin.
	if requestWithOrigin("https://example.com") {
		t.Error("Expected scheme mismatch to be blocked")
	}
}

func TestOriginMalformedBlocked(t *testing.T) {
	defer SetConfig(nil)
	SetConfig(&Config{AllowedOrigins: []string{"http://example.com"}})

	for _, origin := range []string{"not-a-url", "://missing-scheme", "http://"} {
		if requestWithOrigin(origin) {
			t.Errorf("Expected malformed origin %q to be blocked", origin)
		}
	}
}
