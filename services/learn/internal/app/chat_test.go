package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"learnhub/pkg/domain"
	"learnhub/services/learn/internal/functions"
)

func userTurn(s string) domain.ChatTurn { return domain.ChatTurn{Role: domain.RoleUser, Content: s} }

func TestSendTurnRelaysAndPersists(t *testing.T) {
	env := newTestEnv(t, nil)
	env.invoker.handlers[functions.Chat] = func([]byte) (any, error) {
		return map[string]string{"message": "Start with Go Basics."}, nil
	}
	ctx := context.Background()
	reply, err := env.app.SendTurn(ctx, alice, []domain.ChatTurn{userTurn("Which course first?")})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Degraded || reply.Message != "Start with Go Basics." {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	msgs, _ := env.app.ChatHistory(ctx, alice, 0)
	if len(msgs) != 2 || msgs[0].IsAssistant || !msgs[1].IsAssistant {
		t.Fatalf("expected user then assistant message, got %+v", msgs)
	}
}

func TestSendTurnCapsTranscript(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.ChatMaxTurns = 3 })
	env.invoker.handlers[functions.Chat] = func([]byte) (any, error) {
		return map[string]string{"message": "ok"}, nil
	}
	transcript := []domain.ChatTurn{
		userTurn("1"), {Role: domain.RoleAssistant, Content: "2"}, userTurn("3"),
		{Role: domain.RoleAssistant, Content: "4"}, userTurn("5"),
	}
	if _, err := env.app.SendTurn(context.Background(), anon, transcript); err != nil {
		t.Fatalf("send: %v", err)
	}
	var body chatRequest
	if err := json.Unmarshal(env.invoker.lastBody(functions.Chat), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 3 || body.Messages[0].Content != "3" || body.Messages[2].Content != "5" {
		t.Fatalf("expected the last 3 turns, got %+v", body.Messages)
	}
}

func TestSendTurnDegradesOnUpstreamFailure(t *testing.T) {
	cases := []struct {
		name    string
		handler func([]byte) (any, error)
		reason  string
	}{
		{"rate limited", func([]byte) (any, error) {
			return nil, &functions.APIError{Status: http.StatusTooManyRequests, Message: "rate limited"}
		}, "rate_limited"},
		{"transport", func([]byte) (any, error) { return nil, errors.New("connection refused") }, "upstream"},
		{"error payload", func([]byte) (any, error) { return map[string]string{"error": "model overloaded"}, nil }, "upstream"},
		{"empty", func([]byte) (any, error) { return map[string]string{"message": "  "}, nil }, "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.invoker.handlers[functions.Chat] = tc.handler
			before := testutil.ToFloat64(chatFallbacks.WithLabelValues(tc.reason))
			reply, err := env.app.SendTurn(context.Background(), alice, []domain.ChatTurn{userTurn("hello")})
			if err != nil {
				t.Fatalf("send must not fail: %v", err)
			}
			if !reply.Degraded || reply.Message != FallbackReply {
				t.Fatalf("expected fallback, got %+v", reply)
			}
			if got := testutil.ToFloat64(chatFallbacks.WithLabelValues(tc.reason)); got != before+1 {
				t.Fatalf("fallback counter for %s: %v -> %v", tc.reason, before, got)
			}
			msgs, _ := env.app.ChatHistory(context.Background(), alice, 10)
			if len(msgs) != 2 || msgs[1].Message != FallbackReply {
				t.Fatalf("expected persisted fallback, got %+v", msgs)
			}
		})
	}
}

func TestSendTurnAnonymousNotPersisted(t *testing.T) {
	env := newTestEnv(t, nil)
	env.invoker.handlers[functions.Chat] = func([]byte) (any, error) {
		return map[string]string{"message": "hi"}, nil
	}
	if _, err := env.app.SendTurn(context.Background(), anon, []domain.ChatTurn{userTurn("hello")}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.app.ChatHistory(context.Background(), anon, 10); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if n, _ := env.store.CountChatMessages(context.Background(), "", false); n != 0 {
		t.Fatalf("anonymous turns must not be stored")
	}
}

func TestSendTurnRejectsBadTranscript(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	bad := [][]domain.ChatTurn{
		nil,
		{{Role: domain.RoleAssistant, Content: "hi"}},
		{userTurn("   ")},
		{{Role: "system", Content: "x"}, userTurn("hi")},
	}
	for i, transcript := range bad {
		if _, err := env.app.SendTurn(ctx, alice, transcript); !errors.Is(err, ErrInvalidTranscript) {
			t.Fatalf("case %d: expected ErrInvalidTranscript, got %v", i, err)
		}
	}
	if env.invoker.callCount(functions.Chat) != 0 {
		t.Fatalf("invalid transcripts must not reach the relay")
	}
}
