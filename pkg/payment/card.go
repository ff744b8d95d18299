package payment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidCard is wrapped by every card validation failure.
var ErrInvalidCard = errors.New("invalid card details")

var expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)

var cardValidate = newCardValidator()

func newCardValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("mmyy", func(fl validator.FieldLevel) bool {
		return expiryPattern.MatchString(fl.Field().String())
	})
	return v
}

// CardDetails are the fields of the simulated card form.
type CardDetails struct {
	Number string `json:"number" validate:"required,number,len=16"`
	Expiry string `json:"expiry" validate:"required,mmyy"`
	CVV    string `json:"cvv" validate:"required,number,min=3,max=4"`
	Name   string `json:"name" validate:"required"`
}

// Last4 returns the trailing digits of the card number.
func (c CardDetails) Last4() string {
	if len(c.Number) < 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// NormalizeCard strips spaces and dashes from the number and trims the other fields.
func NormalizeCard(c CardDetails) CardDetails {
	c.Number = strings.NewReplacer(" ", "", "-", "").Replace(c.Number)
	c.Expiry = strings.TrimSpace(c.Expiry)
	c.CVV = strings.TrimSpace(c.CVV)
	c.Name = strings.TrimSpace(c.Name)
	return c
}

// ValidateCard normalizes the details and checks their format. Only the
// format is checked: there is no Luhn or issuer validation.
func ValidateCard(c CardDetails) (CardDetails, error) {
	c = NormalizeCard(c)
	if err := cardValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return c, fmt.Errorf("%w: %s", ErrInvalidCard, cardMessage(verrs[0], c))
		}
		return c, fmt.Errorf("%w: %v", ErrInvalidCard, err)
	}
	return c, nil
}

func cardMessage(fe validator.FieldError, c CardDetails) string {
	switch fe.Field() {
	case "Number":
		if fe.Tag() == "len" {
			return fmt.Sprintf("card number must be 16 digits, got %d", len(c.Number))
		}
		return "card number must contain only digits"
	case "Expiry":
		return "expiry must be MM/YY"
	case "CVV":
		return "cvv must be 3 or 4 digits"
	case "Name":
		return "cardholder name is required"
	}
	return fe.Error()
}

// Authorizer charges a validated card and returns a transaction id.
type Authorizer interface {
	Authorize(ctx context.Context, amountMinor int64, card CardDetails) (string, error)
}

// SimulatedAuthorizer approves every charge without contacting a gateway.
type SimulatedAuthorizer struct{}

func (SimulatedAuthorizer) Authorize(ctx context.Context, _ int64, _ CardDetails) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "sim_" + uuid.NewString(), nil
}
