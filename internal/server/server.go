// Package server exposes the assistant over HTTP: auth, profile, transcript
// images, chat turns, history, and bookmarks.
package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campusai/internal/account"
	"campusai/internal/agent"
	"campusai/internal/ratelimit"
	"campusai/internal/storage"
	"campusai/internal/util"
	"campusai/pkg/auth"
	"campusai/pkg/domain"
	"campusai/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Agent    *agent.Agent
	Accounts *account.Service
	Store    store.Store
	Objects  storage.ObjectStore

	RedisAddr     string
	RedisPassword string

	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	MaxImageUploadBytes      int64
}

// Server exposes HTTP endpoints for the assistant. Accounts, Store, and
// Objects may each be nil: the affected endpoints then degrade rather than
// failing startup.
type Server struct {
	agent         *agent.Agent
	accounts      *account.Service
	store         store.Store
	objects       storage.ObjectStore
	sessions      *SessionManager
	mux           *http.ServeMux
	maxImageBytes int64
	signupLimiter *ratelimit.FixedWindowLimiter
	loginLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("server requires an agent")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return ratelimit.NewLocalFixedWindowLimiter(limit, time.Minute)
		}
		prefix := "campusai:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	maxImageBytes := cfg.MaxImageUploadBytes
	if maxImageBytes <= 0 {
		maxImageBytes = 20 << 20
	}
	s := &Server{
		agent:         cfg.Agent,
		accounts:      cfg.Accounts,
		store:         cfg.Store,
		objects:       cfg.Objects,
		sessions:      NewSessionManager(0),
		mux:           http.NewServeMux(),
		maxImageBytes: maxImageBytes,
		signupLimiter: signupLimiter,
		loginLimiter:  loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)

	// conversation, works with or without a logged-in user
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/profile", s.handleProfile)
	s.mux.HandleFunc("/api/transcript-images", s.handleTranscriptImages)

	// account-bound data
	s.mux.Handle("/api/history", s.authenticated(s.handleHistory))
	s.mux.Handle("/api/bookmarks", s.authenticated(s.handleBookmarks))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	if s.accounts == nil {
		return domain.User{}, false
	}
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.accounts.UserFromToken(token)
}

// resolveSession binds the request to a live conversation. Authenticated
// requests attach the user and pull the stored profile into the session on
// first contact.
func (s *Server) resolveSession(r *http.Request, sessionID string) *agent.Session {
	if sessionID == "" {
		sessionID = strings.TrimSpace(r.Header.Get("X-Session-Id"))
	}
	session := s.sessions.GetOrCreate(sessionID)
	session.Lock()
	defer session.Unlock()
	if user, ok := s.authorize(r); ok && session.UserID == "" {
		session.UserID = user.ID
		s.hydrateSession(r, session)
	}
	return session
}

// hydrateSession loads the stored profile and transcript images for a user
// who just attached to a fresh session. Failures degrade to the empty
// profile.
func (s *Server) hydrateSession(r *http.Request, session *agent.Session) {
	if s.store == nil {
		return
	}
	log := util.LoggerFromContext(r.Context())
	profile, ok, err := s.store.GetProfile(session.UserID)
	if err != nil {
		log.Warn("profile load failed, starting with empty profile", "userId", session.UserID, "error", err)
		return
	}
	if !ok {
		return
	}
	session.Profile = profile
	if s.objects == nil {
		return
	}
	for _, key := range profile.ImageKeys {
		data, contentType, err := s.objects.Get(r.Context(), key)
		if err != nil {
			log.Warn("transcript image load failed", "key", key, "error", err)
			continue
		}
		session.Images = append(session.Images, domain.TranscriptImage{MIMEType: contentType, Data: data})
	}
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
		return
	}
	if s.accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are unavailable right now")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.accounts.SignUp(req.Email, req.Password)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	if s.accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are unavailable right now")
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.accounts.Login(req.Email, req.Password)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.accounts == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts are unavailable right now")
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.accounts.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChat runs one orchestration turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	session := s.resolveSession(r, req.SessionID)
	session.Lock()
	defer session.Unlock()

	replies, err := s.agent.HandleTurn(r.Context(), session, message)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("turn failed", "sessionId", session.ID, "error", err)
		// messages appended before the failure are still part of the turn
		writeJSON(w, http.StatusBadGateway, chatResponse{
			SessionID: session.ID,
			Replies:   replies,
			Error:     "the assistant could not finish processing your message",
		})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{SessionID: session.ID, Replies: replies})
}

// handleProfile reads or replaces the session's academic profile. For
// logged-in users the profile is also persisted.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if session, ok := s.sessions.Peek(strings.TrimSpace(r.Header.Get("X-Session-Id"))); ok {
			session.Lock()
			resp := profileResponse{SessionID: session.ID, Profile: session.Profile}
			session.Unlock()
			writeJSON(w, http.StatusOK, resp)
			return
		}
		// a bare read does not allocate conversation state
		var profile domain.Profile
		if user, ok := s.authorize(r); ok && s.store != nil {
			if stored, found, err := s.store.GetProfile(user.ID); err == nil && found {
				profile = stored
			}
		}
		writeJSON(w, http.StatusOK, profileResponse{Profile: profile})
	case http.MethodPut:
		var req profileRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		session := s.resolveSession(r, req.SessionID)
		session.Lock()
		defer session.Unlock()
		profile := req.Profile
		profile.ImageKeys = session.Profile.ImageKeys
		profile.UpdatedAt = time.Now().UTC()
		session.Profile = profile
		if session.UserID != "" && s.store != nil {
			if err := s.store.SaveProfile(session.UserID, profile); err != nil {
				util.LoggerFromContext(r.Context()).Warn("profile save failed, keeping in memory",
					"userId", session.UserID, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, profileResponse{SessionID: session.ID, Profile: session.Profile})
	default:
		methodNotAllowed(w)
	}
}

// handleTranscriptImages replaces the session's transcript image set
// wholesale. For logged-in users the images are also written to object
// storage so a later session can rehydrate them.
func (s *Server) handleTranscriptImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req transcriptImagesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, s.maxImageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	images := make([]domain.TranscriptImage, 0, len(req.Images))
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("image %d is not valid base64", i))
			return
		}
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		images = append(images, domain.TranscriptImage{MIMEType: mime, Data: data})
	}

	session := s.resolveSession(r, req.SessionID)
	session.Lock()
	defer session.Unlock()
	session.Images = images

	if session.UserID != "" && s.objects != nil && s.store != nil {
		s.persistImages(r, session, images)
	}
	writeJSON(w, http.StatusOK, transcriptImagesResponse{SessionID: session.ID, Count: len(images)})
}

func (s *Server) persistImages(r *http.Request, session *agent.Session, images []domain.TranscriptImage) {
	log := util.LoggerFromContext(r.Context())
	keys := make([]string, 0, len(images))
	for i, img := range images {
		key := storage.TranscriptImageKey(session.UserID, i)
		err := s.objects.Put(r.Context(), key, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIMEType)
		if err != nil {
			log.Warn("transcript image save failed, keeping in memory", "key", key, "error", err)
			return
		}
		keys = append(keys, key)
	}
	session.Profile.ImageKeys = keys
	if err := s.store.SaveProfile(session.UserID, session.Profile); err != nil {
		log.Warn("profile image keys save failed", "userId", session.UserID, "error", err)
	}
}

// handleHistory lists the user's stored chat sessions, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, listResponse[domain.ChatSession]{Items: []domain.ChatSession{}})
		return
	}
	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	sessions, err := s.store.ListChatSessions(user.ID, limit)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("history load failed", "userId", user.ID, "error", err)
		writeJSON(w, http.StatusOK, listResponse[domain.ChatSession]{Items: []domain.ChatSession{}})
		return
	}
	writeJSON(w, http.StatusOK, listResponse[domain.ChatSession]{Items: sessions, Count: len(sessions)})
}

// handleBookmarks lists or creates bookmarks. A bookmark stores its own copy
// of the content, detached from the transcript it came from.
func (s *Server) handleBookmarks(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		if s.store == nil {
			writeJSON(w, http.StatusOK, listResponse[domain.Bookmark]{Items: []domain.Bookmark{}})
			return
		}
		bookmarks, err := s.store.ListBookmarks(user.ID)
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("bookmark load failed", "userId", user.ID, "error", err)
			writeJSON(w, http.StatusOK, listResponse[domain.Bookmark]{Items: []domain.Bookmark{}})
			return
		}
		writeJSON(w, http.StatusOK, listResponse[domain.Bookmark]{Items: bookmarks, Count: len(bookmarks)})
	case http.MethodPost:
		if s.store == nil {
			writeError(w, http.StatusServiceUnavailable, "bookmarks are unavailable right now")
			return
		}
		var req bookmarkRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeError(w, http.StatusBadRequest, "content is required")
			return
		}
		kind := domain.MessageKind(req.Kind)
		if kind != domain.KindHTML {
			kind = domain.KindText
		}
		bookmark := domain.Bookmark{
			ID:        util.NewID(),
			UserID:    user.ID,
			Kind:      kind,
			Content:   req.Content,
			Note:      req.Note,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.AddBookmark(user.ID, bookmark); err != nil {
			util.LoggerFromContext(r.Context()).Warn("bookmark save failed", "userId", user.ID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "bookmark could not be saved")
			return
		}
		writeJSON(w, http.StatusCreated, bookmark)
	default:
		methodNotAllowed(w)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type chatRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string               `json:"sessionId"`
	Replies   []domain.ChatMessage `json:"replies"`
	Error     string               `json:"error,omitempty"`
}

type profileRequest struct {
	SessionID string         `json:"sessionId,omitempty"`
	Profile   domain.Profile `json:"profile"`
}

type profileResponse struct {
	SessionID string         `json:"sessionId"`
	Profile   domain.Profile `json:"profile"`
}

type transcriptImagesRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Images    []struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"images"`
}

type transcriptImagesResponse struct {
	SessionID string `json:"sessionId"`
	Count     int    `json:"count"`
}

type bookmarkRequest struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Note    string `json:"note"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// writeAccountError maps recognized account sentinels to their status codes.
// Anything else is a backend failure whose detail stays in the server log.
func writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, account.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, account.ErrEmailAndPasswordRequired), errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("account request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "account request failed, please try again")
	}
}
