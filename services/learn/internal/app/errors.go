package app

import "errors"

var (
	ErrUnauthenticated      = errors.New("sign in required")
	ErrCourseNotFound       = errors.New("course not found")
	ErrAlreadyReviewed      = errors.New("you have already reviewed this course")
	ErrInvalidReview        = errors.New("invalid review")
	ErrInvalidPayment       = errors.New("invalid payment details")
	ErrPaymentFailed        = errors.New("payment failed, please try again")
	ErrPaymentMethodBlocked = errors.New("payment method not available")
	ErrCheckoutFailed       = errors.New("could not start checkout, please try again")
	ErrInvalidTransition    = errors.New("purchase is not in a state that allows this step")
	ErrInvalidTranscript    = errors.New("invalid chat transcript")
	ErrNotEnrolled          = errors.New("enrollment required")
	ErrNoMaterial           = errors.New("course has no downloadable material")
	ErrMaterialsUnavailable = errors.New("course materials unavailable")
)
