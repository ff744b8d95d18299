package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"learnhub/internal/servicetoken"
	"learnhub/pkg/ai"
	"learnhub/services/chat/internal/app"
)

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Complete(context.Context, string, []ai.Message) (string, error) {
	return s.reply, s.err
}

func newChatServer(t *testing.T, completer ai.Completer, verifier *servicetoken.Verifier) *httptest.Server {
	t.Helper()
	a, err := app.New(app.Config{Completer: completer})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: a, ServiceTokens: verifier}).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, url, token string, body any) (int, map[string]string) {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url+"/chat", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post chat: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

var hello = map[string]any{"messages": []map[string]string{{"role": "user", "content": "hello"}}}

func TestChatReply(t *testing.T) {
	srv := newChatServer(t, stubCompleter{reply: "Hi there!"}, nil)
	status, body := postChat(t, srv.URL, "", hello)
	if status != http.StatusOK || body["message"] != "Hi there!" {
		t.Fatalf("chat: %d %v", status, body)
	}
	status, _ = postChat(t, srv.URL, "", map[string]any{"messages": []any{}})
	if status != http.StatusBadRequest {
		t.Fatalf("empty transcript: expected 400, got %d", status)
	}
}

func TestChatUpstreamStatuses(t *testing.T) {
	srv := newChatServer(t, stubCompleter{err: ai.ErrRateLimited}, nil)
	status, body := postChat(t, srv.URL, "", hello)
	if status != http.StatusTooManyRequests || body["error"] != "rate limited" {
		t.Fatalf("rate limited: %d %v", status, body)
	}
	srv = newChatServer(t, stubCompleter{err: context.DeadlineExceeded}, nil)
	status, body = postChat(t, srv.URL, "", hello)
	if status != http.StatusBadGateway || body["error"] == "" {
		t.Fatalf("upstream failure: %d %v", status, body)
	}
}

func TestChatRequiresServiceToken(t *testing.T) {
	dir := t.TempDir()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o600); err != nil {
		t.Fatalf("write public key: %v", err)
	}

	verifier, err := servicetoken.NewVerifier(servicetoken.VerifierOptions{
		PublicKeyPath:  pubPath,
		Audience:       "chat",
		AllowedIssuers: []string{"learnhub-learn"},
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	signer, err := servicetoken.NewSigner(servicetoken.SignerOptions{PrivateKeyPath: privPath, Issuer: "learnhub-learn"})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	srv := newChatServer(t, stubCompleter{reply: "ok"}, verifier)

	status, _ := postChat(t, srv.URL, "", hello)
	if status != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", status)
	}
	wrongAud, _ := signer.Sign("create-checkout-session")
	status, _ = postChat(t, srv.URL, wrongAud, hello)
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong audience: expected 401, got %d", status)
	}
	token, err := signer.Sign("chat")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	status, body := postChat(t, srv.URL, token, hello)
	if status != http.StatusOK || body["message"] != "ok" {
		t.Fatalf("valid token: %d %v", status, body)
	}
}
