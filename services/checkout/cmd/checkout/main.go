package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"learnhub/internal/servicetoken"
	"learnhub/internal/util"
	"learnhub/pkg/payment"
	"learnhub/services/checkout/internal/app"
	"learnhub/services/checkout/internal/config"
	"learnhub/services/checkout/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger("checkout", cfg.LogLevel)

	var provider payment.Provider
	switch cfg.Provider {
	case "stripe":
		provider, err = payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			Currency:   cfg.Currency,
			SuccessURL: cfg.SuccessURL,
			CancelURL:  cfg.CancelURL,
			APIBaseURL: cfg.StripeAPIBaseURL,
		})
	case "midtrans":
		provider, err = payment.NewMidtransProvider(payment.MidtransConfig{
			ServerKey:  cfg.MidtransServerKey,
			Production: cfg.MidtransProduction,
			FinishURL:  cfg.SuccessURL,
		})
	}
	if err != nil {
		util.Fatal("failed to init checkout provider", "provider", cfg.Provider, "err", err)
	}
	appCore, err := app.New(provider)
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
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("checkout server listening", "addr", addr, "provider", appCore.Provider())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
