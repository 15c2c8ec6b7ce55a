// Package postgres provides PostgreSQL implementation of billing repository.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/pnw-deals/internal/billing"
	"github.com/bissquit/pnw-deals/internal/domain"
)

// Repository implements billing.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertSubscription inserts a subscription or refreshes its status when the
// provider subscription id is already known, so redelivered events are safe.
func (r *Repository) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, business_id, stripe_subscription_id, plan_type, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (stripe_subscription_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		sub.UserID,
		sub.BusinessID,
		sub.StripeSubscriptionID,
		sub.PlanType,
		sub.Status,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// UpdateSubscriptionStatus sets the status of a subscription.
func (r *Repository) UpdateSubscriptionStatus(ctx context.Context, providerSubscriptionID string, status domain.SubscriptionStatus) error {
	query := `
		UPDATE subscriptions
		SET status = $2, updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`
	result, err := r.db.Exec(ctx, query, providerSubscriptionID, status)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

// ActivateBusiness moves a business off the free tier.
func (r *Repository) ActivateBusiness(ctx context.Context, businessID string, premium bool) error {
	query := `
		UPDATE businesses
		SET is_premium = $2, is_free_tier = FALSE
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, businessID, premium)
	if err != nil {
		return fmt.Errorf("activate business: %w", err)
	}
	if result.RowsAffected() == 0 {
		return billing.ErrBusinessNotFound
	}
	return nil
}
