package newsletter

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Message is one rendered newsletter email addressed to a single recipient.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message through an email provider.
type Sender interface {
	// Send delivers msg. Failures may wrap ErrInvalidRecipient, ErrRateLimited
	// or ErrProviderUnavailable.
	Send(ctx context.Context, msg Message) error
	// Provider returns the provider name used in logs and metrics.
	Provider() string
}

// DryRunSender writes messages to w instead of delivering them.
type DryRunSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewDryRunSender creates a sender that prints every message to w.
func NewDryRunSender(w io.Writer) *DryRunSender {
	return &DryRunSender{w: w}
}

// Provider implements Sender.
func (s *DryRunSender) Provider() string {
	return "dry_run"
}

// Send implements Sender.
func (s *DryRunSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.w, "From: %s\nTo: %s\nSubject: %s\n\n%s\n\n", msg.From, msg.To, msg.Subject, msg.HTML)
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
