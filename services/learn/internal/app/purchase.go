package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"learnhub/internal/util"
	"learnhub/pkg/domain"
	"learnhub/pkg/payment"
	"learnhub/services/learn/internal/functions"
)

// PurchaseState is a step of the purchase flow.
type PurchaseState string

const (
	StateIdle            PurchaseState = "idle"
	StateChecking        PurchaseState = "checking"
	StateFreeGrant       PurchaseState = "free_grant"
	StateAwaitingPayment PurchaseState = "awaiting_payment"
	StateProcessing      PurchaseState = "processing"
	StateRedirected      PurchaseState = "redirected"
	StateGranted         PurchaseState = "granted"
)

// Purchase drives one attempt to obtain access to a course. The completion
// callback fires at most once per Purchase.
type Purchase struct {
	app       *App
	user      domain.User
	courseID  string
	onGranted func(courseID string)
	once      sync.Once

	mu              sync.Mutex
	state           PurchaseState
	course          domain.Course
	alreadyEnrolled bool
	checkoutURL     string
}

// NewPurchase starts a purchase attempt in the idle state.
func (a *App) NewPurchase(user domain.User, courseID string, onGranted func(courseID string)) *Purchase {
	return &Purchase{
		app:       a,
		user:      user,
		courseID:  strings.TrimSpace(courseID),
		onGranted: onGranted,
		state:     StateIdle,
	}
}

func (p *Purchase) State() PurchaseState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// AlreadyEnrolled reports whether the grant found an existing enrollment.
func (p *Purchase) AlreadyEnrolled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alreadyEnrolled
}

// CheckoutURL is the hosted checkout page after BeginCheckout.
func (p *Purchase) CheckoutURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkoutURL
}

// transition moves to next when the current state is one of from.
func (p *Purchase) transition(next PurchaseState, from ...PurchaseState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range from {
		if p.state == s {
			p.state = next
			purchaseTransitions.WithLabelValues(string(next)).Inc()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.state, next)
}

func (p *Purchase) set(next PurchaseState) {
	p.mu.Lock()
	p.state = next
	p.mu.Unlock()
	purchaseTransitions.WithLabelValues(string(next)).Inc()
}

func (p *Purchase) complete(res GrantResult) {
	p.mu.Lock()
	p.state = StateGranted
	p.alreadyEnrolled = p.alreadyEnrolled || res.AlreadyEnrolled
	p.mu.Unlock()
	purchaseTransitions.WithLabelValues(string(StateGranted)).Inc()
	p.once.Do(func() {
		if p.onGranted != nil {
			p.onGranted(p.courseID)
		}
	})
}

// Open checks access and decides the next step: granted for enrolled users
// and free courses, awaiting_payment otherwise.
func (p *Purchase) Open(ctx context.Context) error {
	if p.user.Anonymous() {
		return ErrUnauthenticated
	}
	if p.State() == StateGranted {
		return nil
	}
	if err := p.transition(StateChecking, StateIdle, StateAwaitingPayment, StateRedirected); err != nil {
		return err
	}
	course, err := p.app.GetCourse(ctx, p.courseID)
	if err != nil {
		p.set(StateIdle)
		return err
	}
	p.mu.Lock()
	p.course = course
	p.mu.Unlock()

	status, err := p.app.CheckEnrollment(ctx, p.user, course.ID)
	if err != nil {
		// Treated as not enrolled; a later grant resolves a duplicate.
		util.LoggerFromContext(ctx).Warn("enrollment check failed during purchase", "course_id", course.ID, "err", err)
	}
	if status.Enrolled {
		p.mu.Lock()
		p.alreadyEnrolled = true
		p.mu.Unlock()
		p.complete(GrantResult{AlreadyEnrolled: true})
		return nil
	}
	if !course.Free() {
		p.set(StateAwaitingPayment)
		return nil
	}

	p.set(StateFreeGrant)
	res, err := p.app.GrantEnrollment(ctx, p.user, course.ID, "free", "")
	if err != nil {
		p.set(StateIdle)
		return err
	}
	p.complete(res)
	return nil
}

// PayWithCard validates the card, authorizes it with the simulated gateway
// and grants the enrollment.
func (p *Purchase) PayWithCard(ctx context.Context, card payment.CardDetails) error {
	if p.app.paymentMode != PaymentModeDemo {
		return ErrPaymentMethodBlocked
	}
	if p.State() != StateAwaitingPayment {
		return fmt.Errorf("%w: card payment from %s", ErrInvalidTransition, p.State())
	}
	card, err := payment.ValidateCard(card)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPayment, strings.TrimPrefix(err.Error(), payment.ErrInvalidCard.Error()+": "))
	}
	if err := p.transition(StateProcessing, StateAwaitingPayment); err != nil {
		return err
	}
	p.mu.Lock()
	course := p.course
	p.mu.Unlock()
	txID, err := p.app.authorizer.Authorize(ctx, payment.ToMinorUnits(course.Price), card)
	if err != nil {
		p.set(StateAwaitingPayment)
		util.LoggerFromContext(ctx).Warn("card authorization failed", "course_id", p.courseID, "last4", card.Last4(), "err", err)
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	return p.grantPaid(ctx, "card", txID)
}

// ConfirmManualPayment accepts the user's statement that an out-of-band UPI
// transfer with the given reference was made.
func (p *Purchase) ConfirmManualPayment(ctx context.Context, reference string) error {
	if p.app.paymentMode != PaymentModeDemo {
		return ErrPaymentMethodBlocked
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return fmt.Errorf("%w: payment reference is required", ErrInvalidPayment)
	}
	if err := p.transition(StateProcessing, StateAwaitingPayment); err != nil {
		return err
	}
	return p.grantPaid(ctx, "upi", reference)
}

func (p *Purchase) grantPaid(ctx context.Context, method, txID string) error {
	res, err := p.app.GrantEnrollment(ctx, p.user, p.courseID, method, txID)
	if err != nil {
		p.set(StateAwaitingPayment)
		util.LoggerFromContext(ctx).Warn("grant after payment failed", "course_id", p.courseID, "method", method, "err", err)
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	p.complete(res)
	return nil
}

type checkoutResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// BeginCheckout hands the purchase off to the hosted checkout provider and
// returns the page to redirect to. Completion is not observed here: the next
// Open re-checks enrollment.
func (p *Purchase) BeginCheckout(ctx context.Context) (string, error) {
	if err := p.transition(StateProcessing, StateAwaitingPayment); err != nil {
		return "", err
	}
	p.mu.Lock()
	course := p.course
	p.mu.Unlock()

	req := payment.CheckoutRequest{
		AmountMinorUnits: payment.ToMinorUnits(course.Price),
		CourseID:         course.ID,
		CourseTitle:      course.Title,
	}
	var resp checkoutResponse
	err := p.app.functions.Invoke(ctx, functions.CreateCheckoutSession, req, &resp)
	if err == nil && resp.Error != "" {
		err = errors.New(resp.Error)
	}
	if err == nil && strings.TrimSpace(resp.URL) == "" {
		err = errors.New("checkout session has no url")
	}
	if err != nil {
		p.set(StateAwaitingPayment)
		util.LoggerFromContext(ctx).Warn("create checkout session failed", "course_id", course.ID, "err", err)
		return "", fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}
	p.mu.Lock()
	p.state = StateRedirected
	p.checkoutURL = resp.URL
	p.mu.Unlock()
	purchaseTransitions.WithLabelValues(string(StateRedirected)).Inc()
	return resp.URL, nil
}
