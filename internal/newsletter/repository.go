// Package newsletter implements the weekly personalized deals newsletter:
// loading subscribers and recent deals, matching them, rendering and sending.
package newsletter

import (
	"context"
	"time"

	"github.com/bissquit/pnw-deals/internal/domain"
)

// SubscriberLoader reads subscribers with an active newsletter subscription.
type SubscriberLoader interface {
	// ActiveSubscribers returns every active newsletter subscriber with their
	// category and subcategory preferences. A partial list is never returned.
	ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}

// DealLoader reads recently created deals joined with their business.
type DealLoader interface {
	// DealsCreatedSince returns deals created at or after since, newest first.
	DealsCreatedSince(ctx context.Context, since time.Time) ([]domain.Deal, error)
}

// Unsubscriber opts a subscriber out of the newsletter.
type Unsubscriber interface {
	Unsubscribe(ctx context.Context, subscriberID string) error
}

// Repository is the full directory store contract used by this package.
type Repository interface {
	SubscriberLoader
	DealLoader
	Unsubscriber
}
