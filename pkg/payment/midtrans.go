package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

// MidtransConfig configures a MidtransProvider.
type MidtransConfig struct {
	ServerKey  string
	Production bool
	FinishURL  string
}

// snapCreator is the part of snap.Client used here.
type snapCreator interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

// MidtransProvider creates Midtrans Snap transactions.
type MidtransProvider struct {
	snap      snapCreator
	finishURL string
}

func NewMidtransProvider(cfg MidtransConfig) (*MidtransProvider, error) {
	key := strings.TrimSpace(cfg.ServerKey)
	if key == "" {
		return nil, errors.New("midtrans server key required")
	}
	var c snap.Client
	if cfg.Production {
		c.New(key, midtrans.Production)
	} else {
		c.New(key, midtrans.Sandbox)
	}
	return &MidtransProvider{snap: &c, finishURL: cfg.FinishURL}, nil
}

func (p *MidtransProvider) Name() string { return "midtrans" }

func (p *MidtransProvider) CreateSession(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if err := req.Validate(); err != nil {
		return CheckoutSession{}, err
	}
	snapReq := buildSnapRequest(req, p.finishURL)
	resp, merr := p.snap.CreateTransaction(snapReq)
	if merr != nil {
		return CheckoutSession{}, fmt.Errorf("midtrans snap transaction: %s", merr.Error())
	}
	if resp == nil || resp.RedirectURL == "" {
		return CheckoutSession{}, errors.New("midtrans snap transaction has no redirect url")
	}
	return CheckoutSession{ID: snapReq.TransactionDetails.OrderID, URL: resp.RedirectURL}, nil
}

func buildSnapRequest(req CheckoutRequest, finishURL string) *snap.Request {
	orderID := req.CourseID + "-" + uuid.NewString()
	gross := FromMinorUnits(req.AmountMinorUnits)
	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    req.CourseID,
				Name:  truncate(req.CourseTitle, 50),
				Price: gross,
				Qty:   1,
			},
		},
	}
	if finishURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: expandURL(finishURL, req.CourseID)}
	}
	return snapReq
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
