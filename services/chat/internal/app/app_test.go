package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"learnhub/pkg/ai"
)

type recordingCompleter struct {
	system   string
	messages []ai.Message
	reply    string
	err      error
}

func (c *recordingCompleter) Complete(_ context.Context, systemPrompt string, messages []ai.Message) (string, error) {
	c.system = systemPrompt
	c.messages = messages
	return c.reply, c.err
}

func userTurn(s string) Turn { return Turn{Role: "user", Content: s} }

func TestCompletePrependsSystemPromptAndTrims(t *testing.T) {
	c := &recordingCompleter{reply: "Start with Go Basics."}
	a, err := New(Config{Completer: c, MaxMessages: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := Request{Messages: []Turn{userTurn("a"), {Role: "assistant", Content: "b"}, userTurn("c")}}
	reply, err := a.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "Start with Go Basics." {
		t.Fatalf("reply = %q", reply)
	}
	if c.system != DefaultSystemPrompt {
		t.Fatalf("system prompt = %q", c.system)
	}
	if len(c.messages) != 2 || c.messages[0].Role != "assistant" || c.messages[1].Content != "c" {
		t.Fatalf("unexpected messages: %+v", c.messages)
	}
}

func TestCompleteValidation(t *testing.T) {
	a, err := New(Config{Completer: &recordingCompleter{reply: "x"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	many := make([]Turn, 101)
	for i := range many {
		many[i] = userTurn("hi")
	}
	cases := []struct {
		req  Request
		want string
	}{
		{Request{}, "between 1 and 100"},
		{Request{Messages: many}, "between 1 and 100"},
		{Request{Messages: []Turn{{Role: "system", Content: "x"}}}, "role"},
		{Request{Messages: []Turn{userTurn("")}}, "required"},
		{Request{Messages: []Turn{userTurn(strings.Repeat("a", 32<<10+1))}}, "32 KiB"},
	}
	for i, tc := range cases {
		_, err := a.Complete(context.Background(), tc.req)
		if !errors.Is(err, ErrInvalidRequest) || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("case %d: expected %q, got %v", i, tc.want, err)
		}
	}
	if _, err := a.Complete(context.Background(), Request{Messages: []Turn{userTurn(strings.Repeat("a", 32<<10))}}); err != nil {
		t.Fatalf("32 KiB content should pass: %v", err)
	}
}

func TestCompleteMapsUpstreamErrors(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{ai.ErrRateLimited, ErrRateLimited},
		{ai.ErrEmptyResponse, ErrEmptyReply},
		{errors.New("boom"), ErrUpstream},
	}
	for _, tc := range cases {
		a, err := New(Config{Backend: ai.BackendConfig{Backend: "ollama"}, Completer: &recordingCompleter{err: tc.err}})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if _, err := a.Complete(context.Background(), Request{Messages: []Turn{userTurn("hi")}}); !errors.Is(err, tc.want) {
			t.Fatalf("upstream %v: expected %v, got %v", tc.err, tc.want, err)
		}
	}
}

func TestCompleteCountsOutcomes(t *testing.T) {
	a, err := New(Config{Backend: ai.BackendConfig{Backend: "gemini"}, Completer: &recordingCompleter{reply: "  "}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := testutil.ToFloat64(upstreamCalls.WithLabelValues("gemini", "empty"))
	if _, err := a.Complete(context.Background(), Request{Messages: []Turn{userTurn("hi")}}); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
	if got := testutil.ToFloat64(upstreamCalls.WithLabelValues("gemini", "empty")); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestClientAPIKeyHonouredOnlyWhenAllowed(t *testing.T) {
	base := &recordingCompleter{reply: "server key"}
	client := &recordingCompleter{reply: "client key"}
	var gotKey string
	factory := func(key string) (ai.Completer, error) {
		gotKey = key
		return client, nil
	}
	req := Request{Messages: []Turn{userTurn("hi")}, APIKey: "sk-user"}

	a, _ := New(Config{Completer: base, Factory: factory})
	if reply, _ := a.Complete(context.Background(), req); reply != "server key" || gotKey != "" {
		t.Fatalf("client key must be ignored by default: reply=%q key=%q", reply, gotKey)
	}
	a, _ = New(Config{Completer: base, Factory: factory, AllowClientAPIKey: true})
	if reply, _ := a.Complete(context.Background(), req); reply != "client key" || gotKey != "sk-user" {
		t.Fatalf("client key not used: reply=%q key=%q", reply, gotKey)
	}
}
