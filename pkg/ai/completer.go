package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrRateLimited is returned when the upstream provider throttles the request.
var ErrRateLimited = errors.New("upstream rate limited")

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("empty completion")

// Message is one conversation entry sent to a provider.
// Role is "user" or "assistant"; the system instruction is passed separately.
type Message struct {
	Role    string
	Content string
}

// Completer produces the next assistant message for a conversation.
// Gemini, Ollama and OpenAI-compatible backends implement this interface.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error)
}

// BackendConfig selects and configures a completion backend.
type BackendConfig struct {
	Backend string // openai, gemini or ollama
	Model   string
	APIKey  string
	BaseURL string
}

// NewCompleter builds the Completer named by cfg.Backend.
func NewCompleter(cfg BackendConfig) (Completer, error) {
	var (
		c   Completer
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "openai":
		c, err = NewOpenAICompleter(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "gemini":
		c, err = NewGeminiCompleter(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "ollama":
		c, err = NewOllamaCompleter(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown completion backend: %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
