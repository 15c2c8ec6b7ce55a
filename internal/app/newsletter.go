package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bissquit/pnw-deals/internal/config"
	"github.com/bissquit/pnw-deals/internal/newsletter"
	"github.com/bissquit/pnw-deals/internal/newsletter/email"
	newsletterpostgres "github.com/bissquit/pnw-deals/internal/newsletter/postgres"
	"github.com/bissquit/pnw-deals/internal/newsletter/resend"
	"github.com/bissquit/pnw-deals/internal/newsletter/ses"
	"github.com/bissquit/pnw-deals/internal/pkg/distlock"
)

// newsletterComponents are shared by the HTTP server and the dispatch command.
type newsletterComponents struct {
	repo       *newsletterpostgres.Repository
	dispatcher *newsletter.Dispatcher
	signer     *newsletter.LinkSigner
	locks      distlock.Factory
}

func buildNewsletter(
	cfg *config.Config,
	db *pgxpool.Pool,
	redisClient *redis.Client,
	sender newsletter.Sender,
) (*newsletterComponents, error) {
	n := cfg.Newsletter

	renderer, err := newsletter.NewRenderer(n.BaseURL, n.Subject)
	if err != nil {
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	var signer *newsletter.LinkSigner
	if n.LinkSecret != "" {
		signer, err = newsletter.NewLinkSigner(n.LinkSecret, n.LinkTTL)
		if err != nil {
			return nil, fmt.Errorf("create link signer: %w", err)
		}
	} else {
		slog.Warn("newsletter.link_secret not set: footer links are unsigned and unsubscribe is disabled")
	}

	repo := newsletterpostgres.NewRepository(db)

	dispatcher := newsletter.NewDispatcher(
		newsletter.Config{
			WindowDays:  n.WindowDays,
			BaseURL:     n.BaseURL,
			From:        n.From,
			Concurrency: n.Concurrency,
			SendTimeout: n.SendTimeout,
			RateLimit:   n.RateLimit,
		},
		repo,
		repo,
		sender,
		renderer,
		newsletter.WithLinkSigner(signer),
	)

	return &newsletterComponents{
		repo:       repo,
		dispatcher: dispatcher,
		signer:     signer,
		locks:      distlock.NewFactory(redisClient, db, n.LockTTL),
	}, nil
}

// newSender creates the delivery provider selected by newsletter.provider.
func newSender(ctx context.Context, cfg *config.Config) (newsletter.Sender, error) {
	switch cfg.Newsletter.Provider {
	case config.ProviderResend:
		return resend.NewSender(resend.Config{APIKey: cfg.Resend.APIKey})
	case config.ProviderSES:
		return ses.NewSender(ctx, ses.Config{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKeyID,
			SecretAccessKey:  cfg.SES.SecretAccessKey,
			ConfigurationSet: cfg.SES.ConfigurationSet,
		})
	case config.ProviderSMTP:
		return email.NewSender(email.Config{
			Host:       cfg.SMTP.Host,
			Port:       cfg.SMTP.Port,
			User:       cfg.SMTP.User,
			Password:   cfg.SMTP.Password,
			DisableTLS: cfg.SMTP.DisableTLS,
		})
	default:
		return nil, fmt.Errorf("unknown newsletter provider %q", cfg.Newsletter.Provider)
	}
}

// newRedisClient returns nil when Redis is not configured.
func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("connected to redis", "addr", opts.Addr)
	return client, nil
}

func newSchedule(cfg config.ScheduleConfig) (newsletter.Schedule, error) {
	weekday, err := newsletter.ParseWeekday(cfg.Weekday)
	if err != nil {
		return newsletter.Schedule{}, err
	}
	return newsletter.Schedule{Weekday: weekday, Hour: cfg.Hour, Minute: cfg.Minute}, nil
}
