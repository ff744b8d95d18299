package app

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"learnhub/pkg/payment"
)

type fakeProvider struct {
	got payment.CheckoutRequest
	err error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateSession(_ context.Context, req payment.CheckoutRequest) (payment.CheckoutSession, error) {
	f.got = req
	if f.err != nil {
		return payment.CheckoutSession{}, f.err
	}
	return payment.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil
}

func TestCreateSession(t *testing.T) {
	p := &fakeProvider{}
	a, err := New(p)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := testutil.ToFloat64(checkoutSessions.WithLabelValues("fake", "created"))
	s, err := a.CreateSession(context.Background(), payment.CheckoutRequest{AmountMinorUnits: 300, CourseID: " sql-201 ", CourseTitle: "SQL"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.URL != "https://pay.example.com/cs_1" || p.got.CourseID != "sql-201" {
		t.Fatalf("session=%+v request=%+v", s, p.got)
	}
	if got := testutil.ToFloat64(checkoutSessions.WithLabelValues("fake", "created")); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	a, _ := New(&fakeProvider{err: errors.New("card_declined")})
	if _, err := a.CreateSession(context.Background(), payment.CheckoutRequest{AmountMinorUnits: 0, CourseID: "x", CourseTitle: "X"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := a.CreateSession(context.Background(), payment.CheckoutRequest{AmountMinorUnits: 100, CourseID: "x", CourseTitle: "X"}); !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error without provider")
	}
}
