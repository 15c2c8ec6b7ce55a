// Package resend provides newsletter delivery through the Resend API.
package resend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	resendapi "github.com/resend/resend-go/v2"

	"github.com/bissquit/pnw-deals/internal/newsletter"
)

// Config holds Resend configuration.
type Config struct {
	APIKey string
}

// EmailsAPI is the subset of the Resend client used by Sender.
type EmailsAPI interface {
	SendWithContext(ctx context.Context, params *resendapi.SendEmailRequest) (*resendapi.SendEmailResponse, error)
}

// Sender implements newsletter.Sender with Resend.
type Sender struct {
	emails EmailsAPI
}

// NewSender creates a Resend sender.
func NewSender(config Config) (*Sender, error) {
	if config.APIKey == "" {
		return nil, errors.New("resend sender: api key is required")
	}

	client := resendapi.NewClient(config.APIKey)
	slog.Info("resend sender configured")

	return NewSenderWithAPI(client.Emails), nil
}

// NewSenderWithAPI creates a sender over an existing emails API.
func NewSenderWithAPI(emails EmailsAPI) *Sender {
	return &Sender{emails: emails}
}

// Provider implements newsletter.Sender.
func (s *Sender) Provider() string {
	return "resend"
}

// Send implements newsletter.Sender.
func (s *Sender) Send(ctx context.Context, msg newsletter.Message) error {
	resp, err := s.emails.SendWithContext(ctx, &resendapi.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return classify(ctx, err)
	}

	slog.Debug("email accepted by resend", "message_id", resp.Id)
	return nil
}

// classify maps Resend API errors onto newsletter send errors. The client
// reports API failures as plain errors carrying the response message.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("resend: %w", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return fmt.Errorf("%w: resend: %w", newsletter.ErrRateLimited, err)
	case strings.Contains(msg, "validation_error") || strings.Contains(msg, "invalid `to`") ||
		strings.Contains(msg, "invalid to") || strings.Contains(msg, "422"):
		return fmt.Errorf("%w: resend: %w", newsletter.ErrInvalidRecipient, err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") ||
		strings.Contains(msg, "internal_server_error") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host"):
		return fmt.Errorf("%w: resend: %w", newsletter.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("resend: %w", err)
}
