package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"learnhub/internal/servicetoken"
	"learnhub/internal/util"
	"learnhub/pkg/ai"
	"learnhub/services/chat/internal/app"
	"learnhub/services/chat/internal/config"
	"learnhub/services/chat/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger("chat", cfg.LogLevel)

	appCore, err := app.New(app.Config{
		Backend: ai.BackendConfig{
			Backend: cfg.Backend,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
		},
		SystemPrompt:      cfg.SystemPrompt,
		MaxMessages:       cfg.MaxMessages,
		AllowClientAPIKey: cfg.AllowClientAPIKey,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	var verifier *servicetoken.Verifier
	if cfg.ServiceTokenPublicKeyPath != "" {
		leeway, err := config.ParseDuration("serviceTokenLeeway", cfg.ServiceTokenLeeway)
		if err != nil {
			util.Fatal("failed to parse service token leeway", "err", err)
		}
		verifier, err = servicetoken.NewVerifier(servicetoken.VerifierOptions{
			PublicKeyPath:  cfg.ServiceTokenPublicKeyPath,
			Audience:       app.FunctionName,
			AllowedIssuers: cfg.ServiceTokenIssuers,
			Leeway:         leeway,
		})
		if err != nil {
			util.Fatal("failed to init service token verifier", "err", err)
		}
	} else {
		slog.Warn("service token verification disabled: serviceTokenPublicKeyPath not set")
	}

	httpServer := server.New(server.Config{App: appCore, ServiceTokens: verifier})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("chat server listening", "addr", addr, "backend", cfg.Backend, "model", cfg.Model)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
