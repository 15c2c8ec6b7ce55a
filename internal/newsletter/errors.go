package newsletter

import (
	"errors"
	"fmt"
)

// Send failure classes. Senders wrap provider errors with one of these so
// operators can tell them apart in the run outcome.
var (
	ErrInvalidRecipient    = errors.New("invalid recipient")
	ErrRateLimited         = errors.New("provider rate limit exceeded")
	ErrProviderUnavailable = errors.New("email provider unavailable")
)

// Store and run errors.
var (
	ErrDataAccess         = errors.New("directory store unavailable")
	ErrMalformedRecord    = errors.New("malformed record")
	ErrRunInProgress      = errors.New("another dispatch run is in progress")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrInvalidLinkToken   = errors.New("invalid or expired link token")
	ErrNoDeals            = errors.New("no deals to render")
)

// DataAccessError is returned when the subscriber or deal source fails.
// It is fatal for a dispatch run.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDataAccess) match any DataAccessError.
func (e *DataAccessError) Is(target error) bool {
	return target == ErrDataAccess
}

// SendError records a failed delivery for one subscriber.
type SendError struct {
	SubscriberID string
	Err          error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to subscriber %s: %v", e.SubscriberID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// RenderError records a template failure for one subscriber. The dispatcher
// treats it like a SendError.
type RenderError struct {
	SubscriberID string
	Err          error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render for subscriber %s: %v", e.SubscriberID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}
