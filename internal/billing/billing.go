// Package billing handles paid subscriptions: hosted checkout sessions and
// the payment provider's webhook events that move subscribers between
// active and inactive.
package billing

import (
	"context"

	"github.com/bissquit/pnw-deals/internal/domain"
)

// Event types handled by the webhook.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
)

// Checkout metadata keys.
const (
	MetadataUserID     = "user_id"
	MetadataPlanType   = "plan_type"
	MetadataBusinessID = "business_id"
)

// CheckoutRequest describes a checkout session to create.
type CheckoutRequest struct {
	UserID     string          `json:"user_id" validate:"required"`
	Email      string          `json:"email" validate:"required,email"`
	PlanType   domain.PlanType `json:"plan_type" validate:"required,oneof=newsletter business_basic business_premium"`
	PriceID    string          `json:"price_id" validate:"required"`
	BusinessID string          `json:"business_id,omitempty" validate:"required_unless=PlanType newsletter"`
	SuccessURL string          `json:"success_url" validate:"required,url"`
	CancelURL  string          `json:"cancel_url" validate:"required,url"`
}

// CheckoutSession is the provider-independent view of a completed checkout.
type CheckoutSession struct {
	ID             string
	SubscriptionID string
	Metadata       map[string]string
}

// SubscriptionState is the provider's current view of a subscription.
type SubscriptionState struct {
	ID     string
	Status domain.SubscriptionStatus
}

// Event is a verified webhook event. Exactly one payload field is set for
// the event types this package handles.
type Event struct {
	ID              string
	Type            string
	CheckoutSession *CheckoutSession
	Subscription    *SubscriptionState
}

// Provider is the payment processor.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (sessionID string, err error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
	// ConstructEvent verifies the signature header and decodes payload.
	ConstructEvent(payload []byte, signature string) (*Event, error)
}

// Repository persists subscription state.
type Repository interface {
	// UpsertSubscription stores sub keyed by its provider subscription id.
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, providerSubscriptionID string, status domain.SubscriptionStatus) error
	ActivateBusiness(ctx context.Context, businessID string, premium bool) error
}
