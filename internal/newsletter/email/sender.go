// Package email provides newsletter delivery via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/bissquit/pnw-deals/internal/newsletter"
)

// Config holds SMTP sender configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	// DisableTLS skips STARTTLS even when the server offers it.
	DisableTLS bool
}

// Sender implements newsletter.Sender via SMTP.
type Sender struct {
	config Config
	auth   smtp.Auth
	now    func() time.Time
}

// NewSender creates a new SMTP sender.
func NewSender(config Config) (*Sender, error) {
	if config.Host == "" {
		return nil, errors.New("smtp sender: host is required")
	}

	if config.Port == 0 {
		config.Port = 587
	}

	var auth smtp.Auth
	if config.User != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.User, config.Password, config.Host)
	}

	slog.Info("smtp sender configured",
		"smtp_host", config.Host,
		"smtp_port", config.Port,
		"auth", auth != nil,
	)

	return &Sender{
		config: config,
		auth:   auth,
		now:    time.Now,
	}, nil
}

// Provider implements newsletter.Sender.
func (s *Sender) Provider() string {
	return "smtp"
}

// Send implements newsletter.Sender.
func (s *Sender) Send(ctx context.Context, msg newsletter.Message) error {
	body, err := s.buildMessage(msg)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	tlsConfig := &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	return s.sendWithSTARTTLS(ctx, addr, tlsConfig, extractEmail(msg.From), msg.To, body)
}

// buildMessage constructs a single-part HTML message with headers.
func (s *Sender) buildMessage(msg newsletter.Message) ([]byte, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	b.WriteString(fmt.Sprintf("Date: %s\r\n", s.now().Format(time.RFC1123Z)))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	b.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&b)
	if _, err := qp.Write([]byte(msg.HTML)); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	return []byte(b.String()), nil
}

// sendWithSTARTTLS delivers one message, upgrading to TLS when offered.
func (s *Sender) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, from, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial smtp: %w", newsletter.ErrProviderUnavailable, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return classify("create smtp client", err)
	}
	defer func() { _ = client.Close() }()

	if !s.config.DisableTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return classify("starttls", err)
			}
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return classify("auth", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return classify("mail from", err)
	}

	if err := client.Rcpt(to); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return fmt.Errorf("%w: rcpt to: %w", newsletter.ErrInvalidRecipient, err)
		}
		return classify("rcpt to", err)
	}

	w, err := client.Data()
	if err != nil {
		return classify("data", err)
	}
	if _, err := w.Write(msg); err != nil {
		return classify("write message", err)
	}
	if err := w.Close(); err != nil {
		return classify("close data", err)
	}

	return client.Quit()
}

// classify wraps an SMTP error with the matching newsletter send error.
func classify(op string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 421:
			return fmt.Errorf("%w: %s: %w", newsletter.ErrProviderUnavailable, op, err)
		case 450, 451, 452:
			return fmt.Errorf("%w: %s: %w", newsletter.ErrRateLimited, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", newsletter.ErrProviderUnavailable, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}
