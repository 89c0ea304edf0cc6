package agent

import (
	"context"
	"fmt"

	"campusai/pkg/ai"
)

const smallTalkSystem = "You are a friendly academic affairs assistant. Keep replies short and helpful."

// smallTalk handles greetings and anything the router could not map to a
// task.
func (a *Agent) smallTalk(ctx context.Context, message string) (string, error) {
	return ai.WithRetry(ctx, func(ctx context.Context) (string, error) {
		return a.text.GenerateText(ctx, smallTalkSystem, fmt.Sprintf("User: %s", message))
	})
}
