// Package account manages user registration, login, and session tokens.
package account

import (
	"fmt"
	"strings"
	"time"

	"campusai/internal/util"
	"campusai/pkg/auth"
	"campusai/pkg/domain"
	"campusai/pkg/store"
)

// Service wires user storage and session issuance together.
type Service struct {
	store    store.Store
	sessions store.SessionStore
}

// New constructs the account service. Both dependencies are required.
func New(dataStore store.Store, sessionStore store.SessionStore) (*Service, error) {
	if dataStore == nil {
		return nil, fmt.Errorf("account service requires a data store")
	}
	if sessionStore == nil {
		return nil, fmt.Errorf("account service requires a session store")
	}
	return &Service{store: dataStore, sessions: sessionStore}, nil
}

// SignUp registers a new user and issues a session token.
func (s *Service) SignUp(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := s.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	return s.issueToken(user)
}

// Login validates credentials and issues a session token.
func (s *Service) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := s.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	return s.issueToken(user)
}

func (s *Service) issueToken(user domain.User) (domain.User, string, error) {
	token, err := s.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves a user from a session token.
func (s *Service) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := s.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := s.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// Logout invalidates a session token.
func (s *Service) Logout(token string) error {
	return s.sessions.DeleteSession(token)
}
