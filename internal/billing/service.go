package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/bissquit/pnw-deals/internal/domain"
	"github.com/bissquit/pnw-deals/internal/pkg/ctxlog"
)

// Service implements billing business logic.
type Service struct {
	provider Provider
	repo     Repository
}

// NewService creates a new billing service.
func NewService(provider Provider, repo Repository) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
	}
}

// CreateCheckout starts a subscription-mode checkout and returns its id.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	sessionID, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: create checkout session: %w", ErrProvider, err)
	}

	ctxlog.FromContext(ctx).Info("checkout session created",
		"session_id", sessionID,
		"user_id", req.UserID,
		"plan_type", req.PlanType,
	)
	return sessionID, nil
}

// HandleWebhook verifies and applies one webhook delivery. Returning an
// error makes the provider redeliver the event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ConstructEvent(payload, signature)
	if err != nil {
		return err
	}

	ctx, logger := ctxlog.With(ctx, "event_id", event.ID, "event_type", event.Type)

	switch event.Type {
	case EventCheckoutSessionCompleted:
		if event.CheckoutSession == nil {
			return fmt.Errorf("%w: missing checkout session", ErrInvalidPayload)
		}
		return s.handleCheckoutCompleted(ctx, event.CheckoutSession)

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		if event.Subscription == nil {
			return fmt.Errorf("%w: missing subscription", ErrInvalidPayload)
		}
		return s.handleSubscriptionChanged(ctx, event.Subscription)

	default:
		logger.Info("unhandled webhook event")
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, session *CheckoutSession) error {
	logger := ctxlog.FromContext(ctx)

	userID := session.Metadata[MetadataUserID]
	if userID == "" {
		logger.Warn("checkout session without user_id metadata, ignoring", "session_id", session.ID)
		return nil
	}
	if session.SubscriptionID == "" {
		logger.Warn("checkout session without subscription, ignoring", "session_id", session.ID)
		return nil
	}

	planType := domain.PlanType(session.Metadata[MetadataPlanType])
	if planType == "" {
		planType = domain.PlanTypeNewsletter
	}
	if !planType.Valid() {
		logger.Warn("checkout session with unknown plan_type, ignoring",
			"session_id", session.ID,
			"plan_type", planType,
		)
		return nil
	}

	state, err := s.provider.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return fmt.Errorf("%w: retrieve subscription: %w", ErrProvider, err)
	}

	sub := &domain.Subscription{
		UserID:               userID,
		StripeSubscriptionID: state.ID,
		PlanType:             planType,
		Status:               state.Status,
	}
	businessID := session.Metadata[MetadataBusinessID]
	if businessID != "" {
		sub.BusinessID = &businessID
	}

	if err := s.repo.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("store subscription: %w", err)
	}

	if businessID != "" && planType.IsBusiness() {
		premium := planType == domain.PlanTypeBusinessPremium
		if err := s.repo.ActivateBusiness(ctx, businessID, premium); err != nil {
			if errors.Is(err, ErrBusinessNotFound) {
				logger.Warn("business from checkout metadata not found", "business_id", businessID)
				return nil
			}
			return fmt.Errorf("activate business: %w", err)
		}
	}

	logger.Info("subscription created",
		"user_id", userID,
		"plan_type", planType,
		"status", state.Status,
		"subscription_id", state.ID,
	)
	return nil
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, state *SubscriptionState) error {
	logger := ctxlog.FromContext(ctx)

	err := s.repo.UpdateSubscriptionStatus(ctx, state.ID, state.Status)
	if errors.Is(err, ErrSubscriptionNotFound) {
		logger.Warn("status change for unknown subscription, ignoring", "subscription_id", state.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}

	logger.Info("subscription status updated", "subscription_id", state.ID, "status", state.Status)
	return nil
}
