package storage

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryObjectStoreRoundTrip(t *testing.T) {
	s := NewMemoryObjectStore()
	ctx := context.Background()
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	key := TranscriptImageKey("u1", 0)
	if err := s.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), "image/jpeg"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, contentType, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(data, payload) || contentType != "image/jpeg" {
		t.Fatalf("unexpected object: %v %q", data, contentType)
	}
}

func TestMemoryObjectStoreGetAbsent(t *testing.T) {
	s := NewMemoryObjectStore()
	if _, _, err := s.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for absent key")
	}
}

func TestMemoryObjectStoreDeletePrefix(t *testing.T) {
	s := NewMemoryObjectStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		key := TranscriptImageKey("u1", i)
		if err := s.Put(ctx, key, bytes.NewReader([]byte{1}), 1, "image/png"); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if err := s.Put(ctx, TranscriptImageKey("u2", 0), bytes.NewReader([]byte{1}), 1, "image/png"); err != nil {
		t.Fatalf("put other user: %v", err)
	}
	if err := s.DeletePrefix(ctx, "users/u1/transcript/"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if _, _, err := s.Get(ctx, TranscriptImageKey("u1", 0)); err == nil {
		t.Fatal("expected u1 objects gone")
	}
	if _, _, err := s.Get(ctx, TranscriptImageKey("u2", 0)); err != nil {
		t.Fatalf("other user's object should remain: %v", err)
	}
}

func TestTranscriptImageKey(t *testing.T) {
	if got := TranscriptImageKey("abc", 2); got != "users/abc/transcript/2" {
		t.Fatalf("unexpected key: %q", got)
	}
}
