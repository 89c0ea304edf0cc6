package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPFromRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("unexpected client ip: %q", got)
	}
}

func TestClientIPIgnoresForwardedWhenPeerParseable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected direct peer address, got %q", got)
	}
}

func TestClientIPFallsBackToForwarded(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "not-an-address"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	if got := ClientIP(req); got != "198.51.100.9" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}
