package ai

import "context"

// ChatModel is the surface the orchestrator needs from a chat provider.
// GeminiClient implements it; tests substitute fakes.
type ChatModel interface {
	GenerateContent(ctx context.Context, model string, req GenerateRequest) (Content, error)
}

// ImageModel generates inline image bytes from a prompt.
type ImageModel interface {
	GenerateImage(ctx context.Context, model, prompt string) (*InlineData, error)
}
