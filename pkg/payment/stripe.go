package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeConfig configures a StripeProvider.
type StripeConfig struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
	// APIBaseURL overrides the Stripe API endpoint (used against stripe-mock).
	APIBaseURL string
}

// StripeProvider creates Stripe Checkout Sessions.
type StripeProvider struct {
	sc         *client.API
	currency   string
	successURL string
	cancelURL  string
}

func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, errors.New("stripe secret key required")
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
		return nil, errors.New("stripe success and cancel urls required")
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	var backends *stripe.Backends
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"); base != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(base),
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}
	sc := &client.API{}
	sc.Init(key, backends)
	return &StripeProvider{sc: sc, currency: currency, successURL: cfg.SuccessURL, cancelURL: cfg.CancelURL}, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		return CheckoutSession{}, err
	}
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(expandURL(p.successURL, req.CourseID)),
		CancelURL:  stripe.String(expandURL(p.cancelURL, req.CourseID)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(p.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.CourseTitle),
					},
					UnitAmount: stripe.Int64(req.AmountMinorUnits),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("course_id", req.CourseID)

	sess, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	if sess.URL == "" {
		return CheckoutSession{}, errors.New("stripe checkout session has no url")
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}
