package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadStripe(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "8092"
provider: "Stripe"
successURL: "https://learnhub.example/courses/{courseId}?checkout=success"
cancelURL: "https://learnhub.example/courses/{courseId}"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Provider != "stripe" || cfg.StripeSecretKey != "sk_test_123" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := map[string]FileConfig{
		"missing provider":     {Port: "8092"},
		"unknown provider":     {Port: "8092", Provider: "paypal"},
		"stripe without key":   {Port: "8092", Provider: "stripe", SuccessURL: "s", CancelURL: "c"},
		"stripe without urls":  {Port: "8092", Provider: "stripe", StripeSecretKey: "sk"},
		"midtrans without key": {Port: "8092", Provider: "midtrans"},
	}
	for name, cfg := range cases {
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := validateConfig(FileConfig{Port: "8092", Provider: "midtrans", MidtransServerKey: "SB-Mid-server-x"}); err != nil {
		t.Fatalf("valid midtrans config rejected: %v", err)
	}
}
