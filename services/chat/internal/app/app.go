package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"learnhub/internal/util"
	"learnhub/pkg/ai"
)

// DefaultSystemPrompt is prepended to every conversation.
const DefaultSystemPrompt = "You are the LearnHub course assistant. Help learners pick courses from the catalog and answer questions about the topics they study. Keep answers short and friendly."

// FunctionName is the audience of service tokens accepted by this proxy.
const FunctionName = "chat"

const (
	defaultMaxMessages = 20
	maxContentBytes    = 32 << 10
)

var upstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "learnhub_chat_upstream_total",
	Help: "Completion backend calls by provider and outcome.",
}, []string{"provider", "outcome"})

// Turn is one transcript entry.
type Turn struct {
	Role    string `json:"role" validate:"oneof=user assistant"`
	Content string `json:"content" validate:"required,maxbytes"`
}

// Request is the body of a chat completion call.
type Request struct {
	Messages []Turn `json:"messages" validate:"min=1,max=100,dive"`
	APIKey   string `json:"apiKey,omitempty"`
}

// CompleterFactory builds a backend bound to a caller supplied API key.
type CompleterFactory func(apiKey string) (ai.Completer, error)

// Config holds runtime configuration for the chat proxy.
type Config struct {
	Backend      ai.BackendConfig
	Completer    ai.Completer
	Factory      CompleterFactory
	SystemPrompt string
	MaxMessages  int
	// AllowClientAPIKey lets a request carry its own provider key.
	AllowClientAPIKey bool
}

// App relays transcripts to the configured completion backend.
type App struct {
	provider          string
	completer         ai.Completer
	factory           CompleterFactory
	systemPrompt      string
	maxMessages       int
	allowClientAPIKey bool
	validate          *validator.Validate
}

func New(cfg Config) (*App, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Backend.Backend))
	if provider == "" {
		provider = "custom"
	}
	completer := cfg.Completer
	if completer == nil {
		var err error
		completer, err = ai.NewCompleter(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("init completion backend: %w", err)
		}
	}
	factory := cfg.Factory
	if factory == nil {
		backend := cfg.Backend
		factory = func(apiKey string) (ai.Completer, error) {
			backend.APIKey = apiKey
			return ai.NewCompleter(backend)
		}
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxContentBytes
	})
	return &App{
		provider:          provider,
		completer:         completer,
		factory:           factory,
		systemPrompt:      prompt,
		maxMessages:       maxMessages,
		allowClientAPIKey: cfg.AllowClientAPIKey,
		validate:          v,
	}, nil
}

// Complete validates the request, trims the transcript to the most recent
// messages and returns the backend's reply.
func (a *App) Complete(ctx context.Context, req Request) (string, error) {
	if err := a.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	completer := a.completer
	if key := strings.TrimSpace(req.APIKey); key != "" && a.allowClientAPIKey {
		c, err := a.factory(key)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		completer = c
	}

	turns := req.Messages
	if len(turns) > a.maxMessages {
		turns = turns[len(turns)-a.maxMessages:]
	}
	messages := make([]ai.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, ai.Message{Role: t.Role, Content: t.Content})
	}

	logger := util.LoggerFromContext(ctx)
	reply, err := completer.Complete(ctx, a.systemPrompt, messages)
	switch {
	case errors.Is(err, ai.ErrRateLimited):
		upstreamCalls.WithLabelValues(a.provider, "rate_limited").Inc()
		logger.Warn("completion backend rate limited", "provider", a.provider)
		return "", ErrRateLimited
	case errors.Is(err, ai.ErrEmptyResponse):
		upstreamCalls.WithLabelValues(a.provider, "empty").Inc()
		return "", ErrEmptyReply
	case err != nil:
		upstreamCalls.WithLabelValues(a.provider, "error").Inc()
		logger.Error("completion backend failed", "provider", a.provider, "err", err)
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if strings.TrimSpace(reply) == "" {
		upstreamCalls.WithLabelValues(a.provider, "empty").Inc()
		return "", ErrEmptyReply
	}
	upstreamCalls.WithLabelValues(a.provider, "ok").Inc()
	return reply, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Messages":
		return "messages must contain between 1 and 100 entries"
	case "Role":
		return "role must be user or assistant"
	case "Content":
		if fe.Tag() == "maxbytes" {
			return "message content exceeds 32 KiB"
		}
		return "message content is required"
	}
	return fe.Error()
}
