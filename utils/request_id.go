package utils

import "github.com/google/uuid"

// RequestIDKey is the gin context key and response header carrying the request id.
const RequestIDKey = "X-Request-ID"

// NewRequestID returns a random request id.
func NewRequestID() string {
	return uuid.NewString()
}
