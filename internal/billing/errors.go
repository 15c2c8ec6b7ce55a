package billing

import "errors"

// Webhook errors.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
)

// Repository errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrBusinessNotFound     = errors.New("business not found")
)

// ErrProvider wraps failures of the payment provider API.
var ErrProvider = errors.New("payment provider error")
