package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for row ids, request ids and
// event ids.
func NewID() string {
	return uuid.NewString()
}
