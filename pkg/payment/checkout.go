package payment

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidCheckout is returned for a malformed checkout request.
var ErrInvalidCheckout = errors.New("invalid checkout request")

// CheckoutRequest is the hand-off payload of a hosted checkout.
type CheckoutRequest struct {
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	CourseID         string `json:"courseId"`
	CourseTitle      string `json:"courseTitle"`
}

// Validate checks the request before it reaches a provider.
func (r CheckoutRequest) Validate() error {
	if r.AmountMinorUnits <= 0 {
		return errors.Join(ErrInvalidCheckout, errors.New("amountMinorUnits must be positive"))
	}
	if strings.TrimSpace(r.CourseID) == "" {
		return errors.Join(ErrInvalidCheckout, errors.New("courseId is required"))
	}
	if strings.TrimSpace(r.CourseTitle) == "" {
		return errors.Join(ErrInvalidCheckout, errors.New("courseTitle is required"))
	}
	return nil
}

// CheckoutSession is the provider's answer: where to send the buyer.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Provider opens a hosted checkout page.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

// expandURL substitutes the {courseId} placeholder of a redirect template.
func expandURL(tmpl, courseID string) string {
	return strings.ReplaceAll(tmpl, "{courseId}", courseID)
}
