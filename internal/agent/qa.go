package agent

import (
	"context"
	"fmt"
	"strings"

	"campusai/pkg/ai"
	"campusai/pkg/domain"
)

// kbPromptBudget bounds how much knowledge-base text the Q&A prompt carries.
// Truncation is by rune count and may cut mid-sentence.
const kbPromptBudget = 50000

// answerQuestion grounds a free-text question on the knowledge base and the
// user's academic context.
func (a *Agent) answerQuestion(ctx context.Context, profile domain.Profile, query string) (string, error) {
	var b strings.Builder
	b.WriteString("[Reference documents]\n")
	b.WriteString(a.kb.Prefix(kbPromptBudget))
	b.WriteString("\n\n[Student]\n")
	if profile.Major != "" {
		fmt.Fprintf(&b, "Major: %s, year %d\n", profile.Major, profile.Year)
	}
	b.WriteString("\n[Question]\n")
	b.WriteString(query)
	b.WriteString("\n\nAnswer strictly from the reference documents above. Quote the supporting sentences in double quotes.")

	return ai.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return a.text.GenerateText(ctx, "", b.String())
	})
}
