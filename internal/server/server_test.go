package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"campusai/internal/account"
	"campusai/internal/agent"
	"campusai/internal/knowledge"
	"campusai/internal/storage"
	"campusai/pkg/ai"
	"campusai/pkg/domain"
	"campusai/pkg/store"
)

// scriptedGen answers router calls with a fixed intent and every tool call
// with a fixed reply.
type scriptedGen struct {
	intent string
	reply  string
}

func (g *scriptedGen) GenerateText(_ context.Context, _, userPrompt string) (string, error) {
	if strings.Contains(userPrompt, "Classify the message") {
		return g.intent, nil
	}
	return g.reply, nil
}

func (g *scriptedGen) GenerateVision(_ context.Context, _ string, _ []ai.ImagePart) (string, error) {
	return g.reply, nil
}

type testEnv struct {
	srv *httptest.Server
	mem *store.MemoryStore
	s   *Server
}

func newTestEnv(t *testing.T, gen *scriptedGen) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	accounts, err := account.New(mem, mem)
	if err != nil {
		t.Fatalf("new accounts: %v", err)
	}
	ag, err := agent.New(gen, gen, &knowledge.Base{}, mem)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	s, err := New(Config{
		Agent:    ag,
		Accounts: accounts,
		Store:    mem,
		Objects:  storage.NewMemoryObjectStore(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, mem: mem, s: s}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	fields := make(map[string]json.RawMessage)
	_ = json.NewDecoder(resp.Body).Decode(&fields)
	return resp, fields
}

func (e *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()
	resp, fields := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "long-enough-pass",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup expected 201, got %d", resp.StatusCode)
	}
	var token string
	if err := json.Unmarshal(fields["token"], &token); err != nil || token == "" {
		t.Fatalf("signup token: %q err=%v", token, err)
	}
	return token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	token := env.signUp(t, "kim@example.com")

	resp, fields := e2eLogin(t, env, "kim@example.com", "long-enough-pass")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d", resp.StatusCode)
	}
	var loginToken string
	if err := json.Unmarshal(fields["token"], &loginToken); err != nil || loginToken == "" {
		t.Fatalf("login token: %q err=%v", loginToken, err)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout expected 204, got %d", resp.StatusCode)
	}
	// logged-out token no longer grants access to history
	resp, _ = env.do(t, http.MethodGet, "/api/history", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}

func e2eLogin(t *testing.T, env *testEnv, email, password string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	return env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
}

func TestSignupRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	env.signUp(t, "kim@example.com")
	resp, _ := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "kim@example.com", "password": "long-enough-pass",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

// failingStore simulates a backend outage on email lookups.
type failingStore struct {
	*store.MemoryStore
}

func (f *failingStore) HasUserEmail(string) (bool, error) {
	return false, fmt.Errorf("pq: connection refused")
}

func TestSignupHidesBackendErrors(t *testing.T) {
	mem := store.NewMemoryStore()
	accounts, err := account.New(&failingStore{MemoryStore: mem}, mem)
	if err != nil {
		t.Fatalf("new accounts: %v", err)
	}
	gen := &scriptedGen{intent: "CHAT", reply: "hi"}
	ag, err := agent.New(gen, gen, &knowledge.Base{}, mem)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	s, err := New(Config{Agent: ag, Accounts: accounts, Store: mem})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()
	env := &testEnv{srv: srv, mem: mem, s: s}

	resp, fields := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "kim@example.com", "password": "long-enough-pass",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for backend failure, got %d", resp.StatusCode)
	}
	var msg string
	if err := json.Unmarshal(fields["error"], &msg); err != nil {
		t.Fatalf("error field: %v", err)
	}
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "check email") {
		t.Fatalf("backend detail leaked to the client: %q", msg)
	}
}

func TestSignupShortPasswordStaysBadRequest(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	resp, fields := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "kim@example.com", "password": "short",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var msg string
	if err := json.Unmarshal(fields["error"], &msg); err != nil || !strings.Contains(msg, "at least 8 characters") {
		t.Fatalf("expected password policy message, got %q err=%v", msg, err)
	}
}

func TestAnonymousChatDoesNotPersist(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hello there"})
	resp, fields := env.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat expected 200, got %d", resp.StatusCode)
	}
	var sessionID string
	if err := json.Unmarshal(fields["sessionId"], &sessionID); err != nil || sessionID == "" {
		t.Fatalf("session id: %q err=%v", sessionID, err)
	}
	var replies []domain.ChatMessage
	if err := json.Unmarshal(fields["replies"], &replies); err != nil || len(replies) != 1 {
		t.Fatalf("replies: %v err=%v", replies, err)
	}
	if replies[0].Content != "hello there" {
		t.Fatalf("unexpected reply: %q", replies[0].Content)
	}
}

func TestAuthenticatedChatAppearsInHistory(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hello there"})
	token := env.signUp(t, "kim@example.com")

	resp, _ := env.do(t, http.MethodPost, "/api/chat", token, map[string]string{"message": "hello assistant"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat expected 200, got %d", resp.StatusCode)
	}

	resp, fields := env.do(t, http.MethodGet, "/api/history", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history expected 200, got %d", resp.StatusCode)
	}
	var items []domain.ChatSession
	if err := json.Unmarshal(fields["items"], &items); err != nil || len(items) != 1 {
		t.Fatalf("history items: %v err=%v", items, err)
	}
	if items[0].Summary != "hello assistant" {
		t.Fatalf("unexpected summary: %q", items[0].Summary)
	}
}

func TestConcurrentChatTurnsShareOneSession(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})

	resp, fields := env.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "first"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat expected 200, got %d", resp.StatusCode)
	}
	var sessionID string
	if err := json.Unmarshal(fields["sessionId"], &sessionID); err != nil || sessionID == "" {
		t.Fatalf("session id: %q err=%v", sessionID, err)
	}

	// two tabs hitting the same conversation at once
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]string{
				"sessionId": sessionID,
				"message":   fmt.Sprintf("turn %d", n),
			})
			resp, err := http.Post(env.srv.URL+"/api/chat", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Errorf("concurrent chat %d: %v", n, err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("concurrent chat %d expected 200, got %d", n, resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()

	session, ok := env.s.sessions.Peek(sessionID)
	if !ok {
		t.Fatal("session vanished")
	}
	session.Lock()
	defer session.Unlock()
	// three user turns, three replies
	if len(session.Messages) != 6 {
		t.Fatalf("expected 6 messages after serialized turns, got %d", len(session.Messages))
	}
}

func TestChatTimetableReturnsCleanHTML(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{
		intent: "TIMETABLE",
		reply:  "```html\n<table><tr><td>Data Structures</td></tr></table>\n```",
	})
	resp, fields := env.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "make me a schedule"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat expected 200, got %d", resp.StatusCode)
	}
	var replies []domain.ChatMessage
	if err := json.Unmarshal(fields["replies"], &replies); err != nil || len(replies) != 1 {
		t.Fatalf("replies: %v err=%v", replies, err)
	}
	if replies[0].Kind != domain.KindHTML || !strings.HasPrefix(replies[0].Content, "<table") {
		t.Fatalf("unexpected reply: kind=%s content=%q", replies[0].Kind, replies[0].Content)
	}
}

func TestProfileRoundTripAndSessionReuse(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	resp, fields := env.do(t, http.MethodPut, "/api/profile", "", map[string]any{
		"profile": map[string]any{"major": "Software", "year": 2, "term": 1, "targetCredits": 18},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile put expected 200, got %d", resp.StatusCode)
	}
	var sessionID string
	if err := json.Unmarshal(fields["sessionId"], &sessionID); err != nil || sessionID == "" {
		t.Fatalf("session id: %q err=%v", sessionID, err)
	}

	// update the same session through the sessionId field
	resp, fields = env.do(t, http.MethodPut, "/api/profile", "", map[string]any{
		"sessionId": sessionID,
		"profile":   map[string]any{"major": "Electronics", "year": 3, "term": 2, "targetCredits": 15},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile update expected 200, got %d", resp.StatusCode)
	}
	var got string
	if err := json.Unmarshal(fields["sessionId"], &got); err != nil || got != sessionID {
		t.Fatalf("expected same session, got %q want %q", got, sessionID)
	}
	var profile domain.Profile
	if err := json.Unmarshal(fields["profile"], &profile); err != nil || profile.Major != "Electronics" {
		t.Fatalf("profile: %+v err=%v", profile, err)
	}

	// read the live session back through the header
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/profile", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Session-Id", sessionID)
	getResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("profile get: %v", err)
	}
	defer getResp.Body.Close()
	var getFields struct {
		SessionID string         `json:"sessionId"`
		Profile   domain.Profile `json:"profile"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&getFields); err != nil {
		t.Fatalf("decode profile get: %v", err)
	}
	if getFields.SessionID != sessionID || getFields.Profile.Major != "Electronics" {
		t.Fatalf("unexpected profile read: %+v", getFields)
	}
}

func TestProfileReadDoesNotAllocateSession(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})

	for i := 0; i < 3; i++ {
		resp, fields := env.do(t, http.MethodGet, "/api/profile", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("profile get expected 200, got %d", resp.StatusCode)
		}
		var sessionID string
		if err := json.Unmarshal(fields["sessionId"], &sessionID); err != nil || sessionID != "" {
			t.Fatalf("bare read should not mint a session id, got %q err=%v", sessionID, err)
		}
	}

	env.s.sessions.mu.Lock()
	live := len(env.s.sessions.sessions)
	env.s.sessions.mu.Unlock()
	if live != 0 {
		t.Fatalf("bare reads grew the session map to %d entries", live)
	}
}

func TestTranscriptImagesUpload(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	token := env.signUp(t, "kim@example.com")

	payload := map[string]any{
		"images": []map[string]string{
			{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString([]byte{1, 2, 3})},
		},
	}
	resp, fields := env.do(t, http.MethodPut, "/api/transcript-images", token, payload)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload expected 200, got %d", resp.StatusCode)
	}
	var count int
	if err := json.Unmarshal(fields["count"], &count); err != nil || count != 1 {
		t.Fatalf("count: %d err=%v", count, err)
	}

	resp, _ = env.do(t, http.MethodPut, "/api/transcript-images", token, map[string]any{
		"images": []map[string]string{{"data": "not base64!!"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad base64, got %d", resp.StatusCode)
	}
}

func TestBookmarksLifecycle(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	token := env.signUp(t, "kim@example.com")

	for i := 0; i < 2; i++ {
		resp, _ := env.do(t, http.MethodPost, "/api/bookmarks", token, map[string]string{
			"kind": "html", "content": fmt.Sprintf("<table>%d</table>", i), "note": "timetable",
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("bookmark %d expected 201, got %d", i, resp.StatusCode)
		}
	}
	resp, fields := env.do(t, http.MethodGet, "/api/bookmarks", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list expected 200, got %d", resp.StatusCode)
	}
	var items []domain.Bookmark
	if err := json.Unmarshal(fields["items"], &items); err != nil || len(items) != 2 {
		t.Fatalf("items: %v err=%v", items, err)
	}

	// bookmarks require auth
	resp, _ = env.do(t, http.MethodGet, "/api/bookmarks", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedGen{intent: "CHAT", reply: "hi"})
	resp, _ := env.do(t, http.MethodPost, "/api/chat", "", map[string]string{"message": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLoginRateLimit(t *testing.T) {
	mem := store.NewMemoryStore()
	accounts, err := account.New(mem, mem)
	if err != nil {
		t.Fatalf("new accounts: %v", err)
	}
	gen := &scriptedGen{intent: "CHAT", reply: "hi"}
	ag, err := agent.New(gen, gen, &knowledge.Base{}, mem)
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	s, err := New(Config{
		Agent:                   ag,
		Accounts:                accounts,
		Store:                   mem,
		LoginRateLimitPerMinute: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body := []byte(`{"email":"u@example.com","password":"long-enough-pass"}`)
	resp1, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("first login request failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode == http.StatusTooManyRequests {
		t.Fatalf("first request must not be limited")
	}

	resp2, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("second login request failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
}
