package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learnhub/internal/servicetoken"
	"learnhub/internal/usertoken"
	"learnhub/internal/util"
	"learnhub/pkg/events"
	"learnhub/pkg/storage"
	"learnhub/pkg/store"
	"learnhub/services/learn/internal/app"
	"learnhub/services/learn/internal/config"
	"learnhub/services/learn/internal/functions"
	"learnhub/services/learn/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger("learn", cfg.LogLevel)

	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		util.Fatal("failed to parse jwt leeway", "err", err)
	}
	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.JWKSURL,
		HMACSecret: cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}

	fnConfig := functions.Config{BaseURL: cfg.FunctionsBaseURL, URLs: cfg.FunctionURLs}
	if cfg.ServiceTokenPrivateKeyPath != "" {
		ttl, err := config.ParseDuration("serviceTokenTTL", cfg.ServiceTokenTTL)
		if err != nil {
			util.Fatal("failed to parse service token ttl", "err", err)
		}
		signer, err := servicetoken.NewSigner(servicetoken.SignerOptions{
			PrivateKeyPath: cfg.ServiceTokenPrivateKeyPath,
			KeyID:          cfg.ServiceTokenKeyID,
			Issuer:         "learnhub-learn",
			TTL:            ttl,
		})
		if err != nil {
			util.Fatal("failed to init service token signer", "err", err)
		}
		fnConfig.Signer = signer
	} else {
		slog.Warn("service token signing disabled: serviceTokenPrivateKeyPath not set")
	}
	fnClient, err := functions.NewClient(fnConfig)
	if err != nil {
		util.Fatal("failed to init functions client", "err", err)
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		util.Fatal("failed to init event publisher", "err", err)
	}
	defer publisher.Close()

	var materials storage.MaterialStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init object storage", "err", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("object storage bucket check failed", "bucket", cfg.MinioBucket, "err", err)
		}
		cancel()
		materials = minioStore
	}

	appCore, err := app.New(app.Config{
		Store:                  dataStore,
		Functions:              fnClient,
		Events:                 publisher,
		Materials:              materials,
		PaymentMode:            cfg.PaymentMode,
		ChatMaxTurns:           cfg.ChatMaxTurns,
		ReviewMinCommentLength: cfg.ReviewMinCommentLength,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	if appCore.PaymentMode() == app.PaymentModeDemo {
		slog.Warn("demo payment mode: card and UPI confirmations are not verified")
	}
	if cfg.CatalogPath != "" {
		courses, err := app.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			util.Fatal("failed to load catalog", "path", cfg.CatalogPath, "err", err)
		}
		if err := appCore.SeedCatalog(context.Background(), courses); err != nil {
			util.Fatal("failed to seed catalog", "err", err)
		}
		slog.Info("catalog seeded", "courses", len(courses))
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trustedProxyCidrs", "err", err)
	}
	httpServer, err := server.New(server.Config{
		App:                        appCore,
		TokenVerifier:              tokenVerifier,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		ChatRateLimitPerMinute:     cfg.ChatRateLimitPerMinute,
		PurchaseRateLimitPerMinute: cfg.PurchaseRateLimitPerMinute,
		AllowedOrigins:             cfg.AllowedOrigins,
		TrustedProxies:             trusted,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("learn server listening", "addr", addr, "payment_mode", appCore.PaymentMode())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newPublisher(cfg config.FileConfig) (events.Publisher, error) {
	switch cfg.EventsBackend {
	case "redis":
		return events.NewRedisStreamPublisher(events.RedisStreamConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.EventsStream,
		})
	case "amqp":
		return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return events.NopPublisher{}, nil
	}
}
