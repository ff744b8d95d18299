package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"learnhub/internal/util"
	"learnhub/pkg/payment"
)

// FunctionName is the audience of service tokens accepted by this proxy.
const FunctionName = "create-checkout-session"

var (
	ErrInvalidRequest = errors.New("invalid checkout request")
	ErrProvider       = errors.New("checkout provider failed")
)

var checkoutSessions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "learnhub_checkout_sessions_total",
	Help: "Hosted checkout sessions by provider and outcome.",
}, []string{"provider", "outcome"})

// App opens hosted checkout sessions with the configured provider.
type App struct {
	provider payment.Provider
}

func New(provider payment.Provider) (*App, error) {
	if provider == nil {
		return nil, errors.New("checkout provider required")
	}
	return &App{provider: provider}, nil
}

// Provider names the configured backend.
func (a *App) Provider() string {
	return a.provider.Name()
}

// CreateSession validates the hand-off payload and asks the provider for a
// checkout page.
func (a *App) CreateSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.CourseTitle = strings.TrimSpace(req.CourseTitle)
	name := a.provider.Name()
	if err := req.Validate(); err != nil {
		checkoutSessions.WithLabelValues(name, "invalid").Inc()
		return payment.CheckoutSession{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	session, err := a.provider.CreateSession(ctx, req)
	if err != nil {
		checkoutSessions.WithLabelValues(name, "error").Inc()
		util.LoggerFromContext(ctx).Error("create checkout session failed", "provider", name, "course_id", req.CourseID, "err", err)
		return payment.CheckoutSession{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	checkoutSessions.WithLabelValues(name, "created").Inc()
	util.LoggerFromContext(ctx).Info("checkout session created", "provider", name, "course_id", req.CourseID, "session_id", session.ID, "amount_minor", req.AmountMinorUnits)
	return session, nil
}
