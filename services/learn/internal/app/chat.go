package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"learnhub/internal/util"
	"learnhub/pkg/domain"
	"learnhub/services/learn/internal/functions"
)

// FallbackReply is shown when the assistant cannot answer.
const FallbackReply = "Sorry, I'm having trouble responding right now. Please try again in a moment."

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ChatReply is the assistant side of a turn.
type ChatReply struct {
	Message  string `json:"message"`
	Degraded bool   `json:"degraded,omitempty"`
}

type chatRequest struct {
	Messages []domain.ChatTurn `json:"messages"`
}

type chatResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SendTurn relays the transcript to the completion function and returns the
// assistant reply. Upstream problems degrade to FallbackReply; the only error
// is a malformed transcript.
func (a *App) SendTurn(ctx context.Context, user domain.User, transcript []domain.ChatTurn) (ChatReply, error) {
	if len(transcript) == 0 {
		return ChatReply{}, fmt.Errorf("%w: no messages", ErrInvalidTranscript)
	}
	for i, turn := range transcript {
		if turn.Role != domain.RoleUser && turn.Role != domain.RoleAssistant {
			return ChatReply{}, fmt.Errorf("%w: message %d has role %q", ErrInvalidTranscript, i, turn.Role)
		}
	}
	last := transcript[len(transcript)-1]
	if last.Role != domain.RoleUser || strings.TrimSpace(last.Content) == "" {
		return ChatReply{}, fmt.Errorf("%w: last message must be a non-empty user message", ErrInvalidTranscript)
	}

	a.persistChat(ctx, user, last.Content, false)

	window := transcript
	if len(window) > a.chatMaxTurns {
		window = window[len(window)-a.chatMaxTurns:]
	}
	var resp chatResponse
	err := a.functions.Invoke(ctx, functions.Chat, chatRequest{Messages: window}, &resp)

	reason := ""
	switch {
	case err != nil:
		reason = "upstream"
		var apiErr *functions.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
			reason = "rate_limited"
		}
	case resp.Error != "":
		reason = "upstream"
		err = errors.New(resp.Error)
	case strings.TrimSpace(resp.Message) == "":
		reason = "empty"
	}

	reply := ChatReply{Message: resp.Message}
	if reason != "" {
		chatFallbacks.WithLabelValues(reason).Inc()
		util.LoggerFromContext(ctx).Warn("chat relay degraded", "reason", reason, "turns", len(window), "err", err)
		reply = ChatReply{Message: FallbackReply, Degraded: true}
	}
	a.persistChat(ctx, user, reply.Message, true)
	return reply, nil
}

func (a *App) persistChat(ctx context.Context, user domain.User, text string, assistant bool) {
	if user.Anonymous() {
		return
	}
	err := a.store.AppendChatMessage(ctx, domain.ChatMessage{
		ID:          util.NewID(),
		UserID:      user.ID,
		Message:     text,
		IsAssistant: assistant,
		CreatedAt:   a.now(),
	})
	if err != nil {
		util.LoggerFromContext(ctx).Warn("persist chat message failed", "assistant", assistant, "err", err)
	}
}

// ChatHistory returns the user's most recent messages, oldest first.
func (a *App) ChatHistory(ctx context.Context, user domain.User, limit int) ([]domain.ChatMessage, error) {
	if user.Anonymous() {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	msgs, err := a.store.ListChatMessages(ctx, user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return msgs, nil
}
