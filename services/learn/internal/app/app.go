package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"learnhub/internal/util"
	"learnhub/pkg/events"
	"learnhub/pkg/payment"
	"learnhub/pkg/storage"
	"learnhub/pkg/store"
)

const (
	PaymentModeDemo = "demo"
	PaymentModeLive = "live"

	defaultChatMaxTurns           = 20
	defaultReviewMinCommentLength = 10
	materialLinkTTL               = 15 * time.Minute
	eventPublishTimeout           = 2 * time.Second
)

// FunctionInvoker calls a named remote function.
type FunctionInvoker interface {
	Invoke(ctx context.Context, name string, body, out any) error
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	Functions  FunctionInvoker
	Events     events.Publisher
	Materials  storage.MaterialStore
	Authorizer payment.Authorizer

	// PaymentMode "demo" enables the simulated card and manual UPI
	// confirmation paths; "live" only offers hosted checkout.
	PaymentMode            string
	ChatMaxTurns           int
	ReviewMinCommentLength int
}

// App implements the marketplace flows: enrollment gate, purchase, chat relay,
// reviews, catalog, profile and course materials.
type App struct {
	store      store.Store
	functions  FunctionInvoker
	events     events.Publisher
	materials  storage.MaterialStore
	authorizer payment.Authorizer
	validate   *validator.Validate

	paymentMode      string
	chatMaxTurns     int
	minCommentLength int
	now              func() time.Time
}

// New constructs the application. A Postgres store is opened from
// DatabaseURL when no Store is injected.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	if cfg.Functions == nil {
		return nil, errors.New("functions client required")
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.PaymentMode))
	switch mode {
	case "":
		mode = PaymentModeLive
	case PaymentModeDemo, PaymentModeLive:
	default:
		return nil, fmt.Errorf("unknown payment mode: %s", cfg.PaymentMode)
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = payment.SimulatedAuthorizer{}
	}
	maxTurns := cfg.ChatMaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultChatMaxTurns
	}
	minComment := cfg.ReviewMinCommentLength
	if minComment <= 0 {
		minComment = defaultReviewMinCommentLength
	}

	a := &App{
		store:            dataStore,
		functions:        cfg.Functions,
		events:           publisher,
		materials:        cfg.Materials,
		authorizer:       authorizer,
		paymentMode:      mode,
		chatMaxTurns:     maxTurns,
		minCommentLength: minComment,
		now:              func() time.Time { return time.Now().UTC() },
	}
	a.validate = a.newValidator()
	return a, nil
}

// PaymentMode reports the configured payment mode.
func (a *App) PaymentMode() string {
	return a.paymentMode
}

// publish sends an event without letting a broker outage fail the caller.
func (a *App) publish(ctx context.Context, evtType, userID, courseID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("encode event payload failed", "type", evtType, "err", err)
		return
	}
	evt := events.Event{
		ID:         util.NewID(),
		Type:       evtType,
		UserID:     userID,
		CourseID:   courseID,
		OccurredAt: a.now(),
		Payload:    raw,
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := a.events.Publish(pubCtx, evt); err != nil {
		util.LoggerFromContext(ctx).Warn("publish event failed", "type", evtType, "course_id", courseID, "err", err)
	}
}
