// Package agent routes each user message to LLM-backed tools and drives the
// per-turn orchestration loop.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campusai/internal/knowledge"
	"campusai/internal/util"
	"campusai/pkg/ai"
	"campusai/pkg/domain"
	"campusai/pkg/store"
)

// quotaMessage is shown when the model stays rate limited after backoff.
const quotaMessage = "The assistant is over its request quota right now. Please try again in a moment."

// summaryRunes bounds the history-list summary derived from the first user
// message of a session.
const summaryRunes = 15

// Session carries the mutable state of one interactive conversation. The
// orchestration loop receives it explicitly; there is no ambient per-user
// state anywhere else.
type Session struct {
	mu sync.Mutex

	ID            string
	UserID        string
	Profile       domain.Profile
	Images        []domain.TranscriptImage
	Messages      []domain.ChatMessage
	Summary       string
	LastTimetable string
}

// Lock serializes access to the session state. Callers that share a session
// across requests hold it for the whole of any read or mutation, so two
// concurrent turns on the same conversation run one after the other.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Authenticated reports whether the session belongs to a logged-in user.
func (s *Session) Authenticated() bool {
	return s.UserID != ""
}

// Agent wires the router, the tool set, the knowledge base, and optional
// persistence together.
type Agent struct {
	text   ai.TextGenerator
	vision ai.VisionGenerator
	kb     *knowledge.Base
	router *Router
	store  store.Store
}

// New constructs the agent. The store may be nil: persistence then degrades
// to memory-only sessions.
func New(text ai.TextGenerator, vision ai.VisionGenerator, kb *knowledge.Base, dataStore store.Store) (*Agent, error) {
	if text == nil || vision == nil {
		return nil, fmt.Errorf("agent requires text and vision generators")
	}
	if kb == nil {
		kb = &knowledge.Base{}
	}
	return &Agent{
		text:   text,
		vision: vision,
		kb:     kb,
		router: NewRouter(text),
		store:  dataStore,
	}, nil
}

// HandleTurn processes one user message: route, run each selected tool in
// order, append results to the transcript, then persist for authenticated
// users. It returns the assistant messages produced this turn.
//
// Tool failures it recognizes (rate-limit exhaustion, missing preconditions)
// become ordinary assistant messages and the remaining intents still run.
// An unrecognized model failure aborts the rest of the turn; messages
// already appended stay in the transcript.
func (a *Agent) HandleTurn(ctx context.Context, session *Session, message string) ([]domain.ChatMessage, error) {
	log := util.LoggerFromContext(ctx)

	session.Messages = append(session.Messages, newMessage(domain.RoleUser, message, domain.KindText))
	if session.Summary == "" {
		session.Summary = summarize(message)
	}

	intents, err := a.router.Route(ctx, message)
	if err != nil {
		if ai.IsRateLimited(err) {
			reply := a.appendAssistant(session, quotaMessage, domain.KindText)
			a.persist(ctx, session)
			return []domain.ChatMessage{reply}, nil
		}
		a.persist(ctx, session)
		return nil, err
	}
	log.Info("routed message", "sessionId", session.ID, "intents", intents)

	var replies []domain.ChatMessage
	for _, intent := range intents {
		content, kind, err := a.runIntent(ctx, session, intent, message)
		if err != nil {
			if ai.IsRateLimited(err) {
				replies = append(replies, a.appendAssistant(session, quotaMessage, domain.KindText))
				continue
			}
			a.persist(ctx, session)
			return replies, fmt.Errorf("run intent %s: %w", intent, err)
		}
		replies = append(replies, a.appendAssistant(session, content, kind))
	}

	a.persist(ctx, session)
	return replies, nil
}

func (a *Agent) runIntent(ctx context.Context, session *Session, intent domain.Intent, message string) (string, domain.MessageKind, error) {
	switch intent {
	case domain.IntentTimetable:
		return a.generateTimetable(ctx, session, message)
	case domain.IntentGraduation:
		content, err := a.auditGraduation(ctx, session)
		return content, domain.KindText, err
	case domain.IntentQA:
		content, err := a.answerQuestion(ctx, session.Profile, message)
		return content, domain.KindText, err
	default:
		content, err := a.smallTalk(ctx, message)
		return content, domain.KindText, err
	}
}

func (a *Agent) appendAssistant(session *Session, content string, kind domain.MessageKind) domain.ChatMessage {
	msg := newMessage(domain.RoleAssistant, content, kind)
	session.Messages = append(session.Messages, msg)
	return msg
}

// persist flushes the transcript for authenticated users. Store failures
// degrade to memory-only with a log line; they never reach the user.
func (a *Agent) persist(ctx context.Context, session *Session) {
	if a.store == nil || !session.Authenticated() {
		return
	}
	err := a.store.SaveChatSession(session.UserID, domain.ChatSession{
		ID:        session.ID,
		UserID:    session.UserID,
		Summary:   session.Summary,
		Messages:  session.Messages,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		util.LoggerFromContext(ctx).Warn("transcript save failed, keeping session in memory",
			"sessionId", session.ID, "error", err)
	}
}

func newMessage(role, content string, kind domain.MessageKind) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        util.NewID(),
		Role:      role,
		Content:   content,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

func summarize(message string) string {
	runes := []rune(message)
	if len(runes) <= summaryRunes {
		return message
	}
	return string(runes[:summaryRunes])
}
