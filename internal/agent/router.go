package agent

import (
	"context"
	"fmt"
	"strings"

	"campusai/pkg/ai"
	"campusai/pkg/domain"
)

const routerPrompt = `User message: %q

Classify the message into one or more of these tasks:
1. TIMETABLE: generating, recommending, or amending a course schedule (e.g. "make me a schedule", "drop the first period")
2. GRADUATION: graduation requirements, credit audits, transcript analysis (e.g. "can I graduate?", "does this credit count?")
3. QA: academic regulations, scholarships, general questions about university documents (e.g. "what is the retake credit limit?")
4. CHAT: greetings or small talk

Output only the matching keyword. When the message asks for several tasks,
output an ordered comma-separated list. For example, "explain the retake rule
and then build my schedule" is: QA, TIMETABLE`

// Router classifies a raw user message into an ordered list of intents.
type Router struct {
	gen ai.TextGenerator
}

// NewRouter builds an intent router over a text generator.
func NewRouter(gen ai.TextGenerator) *Router {
	return &Router{gen: gen}
}

// Route asks the model for a classification and parses it. The result is
// never empty: anything unparseable falls back to chat.
func (r *Router) Route(ctx context.Context, message string) ([]domain.Intent, error) {
	raw, err := ai.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return r.gen.GenerateText(ctx, "", fmt.Sprintf(routerPrompt, message))
	})
	if err != nil {
		return nil, fmt.Errorf("route intent: %w", err)
	}
	return ParseIntents(raw), nil
}

// ParseIntents extracts intents from a model classification response. Three
// shapes are tolerated: a single bare keyword, a comma-separated or
// bracketed list of keywords, and free text containing keywords as
// substrings. When nothing matches the result is exactly [CHAT].
//
// In the free-text case a response naming both QA and TIMETABLE yields only
// TIMETABLE. List responses keep both in their stated order.
func ParseIntents(raw string) []domain.Intent {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return []domain.Intent{domain.IntentChat}
	}

	if intents := parseIntentList(s); len(intents) > 0 {
		return intents
	}

	if intent, ok := matchIntent(s); ok {
		return []domain.Intent{intent}
	}

	if intents := scanIntentKeywords(s); len(intents) > 0 {
		return intents
	}

	return []domain.Intent{domain.IntentChat}
}

// parseIntentList handles bracketed or comma-separated keyword lists. Every
// token must be a known keyword for the list shape to be accepted.
func parseIntentList(s string) []domain.Intent {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if !strings.Contains(trimmed, ",") {
		return nil
	}
	var intents []domain.Intent
	seen := make(map[domain.Intent]bool)
	for _, token := range strings.Split(trimmed, ",") {
		intent, ok := matchIntent(token)
		if !ok {
			return nil
		}
		if !seen[intent] {
			seen[intent] = true
			intents = append(intents, intent)
		}
	}
	return intents
}

// matchIntent matches one token against the closed intent vocabulary.
func matchIntent(token string) (domain.Intent, bool) {
	token = strings.Trim(strings.TrimSpace(token), `"'`)
	for _, intent := range domain.KnownIntents {
		if token == string(intent) {
			return intent, true
		}
	}
	return "", false
}

// scanIntentKeywords finds known keywords as substrings of free text, in
// order of first appearance. QA is suppressed when TIMETABLE also appears.
func scanIntentKeywords(s string) []domain.Intent {
	type hit struct {
		intent domain.Intent
		pos    int
	}
	var hits []hit
	for _, intent := range domain.KnownIntents {
		if pos := strings.Index(s, string(intent)); pos >= 0 {
			hits = append(hits, hit{intent: intent, pos: pos})
		}
	}
	if len(hits) == 0 {
		return nil
	}

	hasTimetable := false
	for _, h := range hits {
		if h.intent == domain.IntentTimetable {
			hasTimetable = true
		}
	}

	var intents []domain.Intent
	for _, h := range hits {
		if h.intent == domain.IntentQA && hasTimetable {
			continue
		}
		intents = append(intents, h.intent)
	}
	// order by first appearance
	for i := 1; i < len(intents); i++ {
		for j := i; j > 0; j-- {
			if indexOf(s, intents[j]) < indexOf(s, intents[j-1]) {
				intents[j], intents[j-1] = intents[j-1], intents[j]
			}
		}
	}
	return intents
}

func indexOf(s string, intent domain.Intent) int {
	return strings.Index(s, string(intent))
}
