package domain

import "time"

// PlanType identifies what a subscription pays for.
type PlanType string

// Plan types.
const (
	PlanTypeNewsletter      PlanType = "newsletter"
	PlanTypeBusinessBasic   PlanType = "business_basic"
	PlanTypeBusinessPremium PlanType = "business_premium"
)

// Valid reports whether p is one of the known plan types.
func (p PlanType) Valid() bool {
	switch p {
	case PlanTypeNewsletter, PlanTypeBusinessBasic, PlanTypeBusinessPremium:
		return true
	}
	return false
}

// IsBusiness reports whether the plan is a business listing plan.
func (p PlanType) IsBusiness() bool {
	return p == PlanTypeBusinessBasic || p == PlanTypeBusinessPremium
}

// SubscriptionStatus mirrors the billing provider's subscription status.
type SubscriptionStatus string

// Subscription statuses used by the newsletter. Other provider statuses
// (past_due, unpaid, incomplete...) are stored verbatim and count as inactive.
const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscriber is a user with an active newsletter subscription and the
// taxonomy nodes they opted into.
type Subscriber struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	CategoryIDs    []string `json:"category_ids"`
	SubcategoryIDs []string `json:"subcategory_ids"`
}

// HasPreferences reports whether the subscriber selected at least one
// category or subcategory.
func (s Subscriber) HasPreferences() bool {
	return len(s.CategoryIDs) > 0 || len(s.SubcategoryIDs) > 0
}

// Subscription is a billing subscription row.
type Subscription struct {
	ID                   string
	UserID               string
	BusinessID           *string
	StripeSubscriptionID string
	PlanType             PlanType
	Status               SubscriptionStatus
	UnsubscribedAt       *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
