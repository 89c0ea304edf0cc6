package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisSessionStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisSessionStore(mr.Addr(), "", time.Hour), mr
}

func TestRedisSessionRoundTrip(t *testing.T) {
	s, _ := newTestRedisSessionStore(t)
	token, err := s.NewSession("u1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || uid != "u1" {
		t.Fatalf("resolve: uid=%q ok=%v err=%v", uid, ok, err)
	}
}

func TestRedisSessionDelete(t *testing.T) {
	s, _ := newTestRedisSessionStore(t)
	token, err := s.NewSession("u1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err != nil || ok {
		t.Fatalf("expected miss after delete: ok=%v err=%v", ok, err)
	}
	// deleting twice stays quiet
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestRedisSessionExpiry(t *testing.T) {
	s, mr := newTestRedisSessionStore(t)
	token, err := s.NewSession("u1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, err := s.GetUserIDByToken(token); err != nil || ok {
		t.Fatalf("expected expired token miss: ok=%v err=%v", ok, err)
	}
}

func TestRedisSessionUnknownToken(t *testing.T) {
	s, _ := newTestRedisSessionStore(t)
	if _, ok, err := s.GetUserIDByToken("does-not-exist"); err != nil || ok {
		t.Fatalf("expected miss without error: ok=%v err=%v", ok, err)
	}
}
