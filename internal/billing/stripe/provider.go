// Package stripe implements billing.Provider on top of the Stripe API.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/bissquit/pnw-deals/internal/billing"
	"github.com/bissquit/pnw-deals/internal/domain"
)

// Config holds Stripe configuration.
type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API endpoint.
	APIURL string
}

// Provider implements billing.Provider.
type Provider struct {
	api           *client.API
	webhookSecret string
}

// NewProvider creates a Stripe provider.
func NewProvider(config Config) (*Provider, error) {
	if config.SecretKey == "" {
		return nil, errors.New("stripe provider: secret key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("stripe provider: webhook secret is required")
	}

	var backends *stripeapi.Backends
	if config.APIURL != "" {
		backends = &stripeapi.Backends{
			API: stripeapi.GetBackendWithConfig(stripeapi.APIBackend, &stripeapi.BackendConfig{
				URL:               stripeapi.String(config.APIURL),
				MaxNetworkRetries: stripeapi.Int64(0),
			}),
		}
	}

	api := &client.API{}
	api.Init(config.SecretKey, backends)

	slog.Info("stripe provider configured", "custom_api_url", config.APIURL != "")

	return &Provider{
		api:           api,
		webhookSecret: config.WebhookSecret,
	}, nil
}

// CreateCheckoutSession implements billing.Provider.
func (p *Provider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (string, error) {
	params := &stripeapi.CheckoutSessionParams{
		CustomerEmail:      stripeapi.String(req.Email),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{
				Price:    stripeapi.String(req.PriceID),
				Quantity: stripeapi.Int64(1),
			},
		},
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		SuccessURL: stripeapi.String(req.SuccessURL),
		CancelURL:  stripeapi.String(req.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata(billing.MetadataUserID, req.UserID)
	params.AddMetadata(billing.MetadataPlanType, string(req.PlanType))
	if req.BusinessID != "" {
		params.AddMetadata(billing.MetadataBusinessID, req.BusinessID)
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.ID, nil
}

// GetSubscription implements billing.Provider.
func (p *Provider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.SubscriptionState, error) {
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx

	sub, err := p.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", subscriptionID, err)
	}

	return &billing.SubscriptionState{
		ID:     sub.ID,
		Status: domain.SubscriptionStatus(sub.Status),
	}, nil
}

// ConstructEvent implements billing.Provider.
func (p *Provider) ConstructEvent(payload []byte, signature string) (*billing.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", billing.ErrInvalidSignature, err)
	}

	out := &billing.Event{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case billing.EventCheckoutSessionCompleted:
		var session stripeapi.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %w", billing.ErrInvalidPayload, err)
		}
		out.CheckoutSession = &billing.CheckoutSession{
			ID:       session.ID,
			Metadata: session.Metadata,
		}
		if session.Subscription != nil {
			out.CheckoutSession.SubscriptionID = session.Subscription.ID
		}

	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var sub stripeapi.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: subscription: %w", billing.ErrInvalidPayload, err)
		}
		out.Subscription = &billing.SubscriptionState{
			ID:     sub.ID,
			Status: domain.SubscriptionStatus(sub.Status),
		}
	}

	return out, nil
}
