package ai

import "context"

// TextGenerator produces a completion for a text-only prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// VisionGenerator produces a completion for a prompt with inline images.
type VisionGenerator interface {
	GenerateVision(ctx context.Context, prompt string, images []ImagePart) (string, error)
}

// GeminiGenerator binds a GeminiClient to a fixed model and implements both
// generator interfaces.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-backed generator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

// GenerateText implements TextGenerator.
func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.client.GenerateText(ctx, g.model, systemPrompt, userPrompt)
}

// GenerateVision implements VisionGenerator.
func (g *GeminiGenerator) GenerateVision(ctx context.Context, prompt string, images []ImagePart) (string, error) {
	return g.client.GenerateVision(ctx, g.model, prompt, images)
}
