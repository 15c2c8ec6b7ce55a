package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bissquit/pnw-deals/internal/config"
	"github.com/bissquit/pnw-deals/internal/newsletter"
)

// DispatchOptions control a single run started from the command line.
type DispatchOptions struct {
	// DryRun renders every message and writes it to Out instead of sending.
	DryRun bool
	Out    io.Writer
}

// Dispatch performs one newsletter run outside the HTTP server. Real runs
// take the same lock as scheduled and manual runs. Logs go to stderr so
// that Out only carries the run output.
func Dispatch(ctx context.Context, cfg *config.Config, opts DispatchOptions) (*newsletter.Outcome, error) {
	slog.SetDefault(newLogger(cfg.Log, os.Stderr))

	db, err := connectDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var sender newsletter.Sender
	if opts.DryRun {
		sender = newsletter.NewDryRunSender(opts.Out)
	} else {
		sender, err = newSender(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create newsletter sender: %w", err)
		}
	}

	redisClient, err := newRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	nl, err := buildNewsletter(cfg, db, redisClient, sender)
	if err != nil {
		return nil, fmt.Errorf("setup newsletter: %w", err)
	}

	if opts.DryRun {
		return nl.dispatcher.Run(ctx)
	}
	return newsletter.RunExclusive(ctx, nl.locks(newsletter.DispatchLockKey), nl.dispatcher)
}
