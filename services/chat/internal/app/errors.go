package app

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid chat request")
	ErrRateLimited    = errors.New("rate limited")
	ErrUpstream       = errors.New("completion backend failed")
	ErrEmptyReply     = errors.New("completion backend returned no text")
)
