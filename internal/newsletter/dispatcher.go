package newsletter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bissquit/pnw-deals/internal/domain"
	"github.com/bissquit/pnw-deals/internal/pkg/ctxlog"
)

// Config contains dispatcher configuration.
type Config struct {
	// WindowDays is how far back deals are considered new.
	WindowDays int
	// BaseURL is the public site address used in links.
	BaseURL string
	// From is the sender address of every newsletter.
	From string
	// Concurrency is the number of subscribers processed in parallel.
	Concurrency int
	// SendTimeout bounds a single provider call.
	SendTimeout time.Duration
	// RateLimit caps sends per second. Zero disables the limit.
	RateLimit float64
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		WindowDays:  7,
		From:        "deals@pnwdeals.local",
		Concurrency: 1,
		SendTimeout: 30 * time.Second,
	}
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithStateObserver registers a callback invoked on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

// WithLinkSigner enables signed preference and unsubscribe links.
func WithLinkSigner(signer *LinkSigner) Option {
	return func(d *Dispatcher) {
		d.links.Signer = signer
	}
}

// Dispatcher runs one newsletter batch: load subscribers, load recent deals,
// match, render and send one email per subscriber with matches.
// It keeps no state between runs.
type Dispatcher struct {
	config      Config
	subscribers SubscriberLoader
	deals       DealLoader
	sender      Sender
	renderer    *Renderer
	links       Links
	limiter     *rate.Limiter

	now     func() time.Time
	observe func(State)
}

// NewDispatcher creates a new newsletter dispatcher.
func NewDispatcher(
	config Config,
	subscribers SubscriberLoader,
	deals DealLoader,
	sender Sender,
	renderer *Renderer,
	opts ...Option,
) *Dispatcher {
	defaults := DefaultConfig()
	if config.WindowDays <= 0 {
		config.WindowDays = defaults.WindowDays
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	d := &Dispatcher{
		config:      config,
		subscribers: subscribers,
		deals:       deals,
		sender:      sender,
		renderer:    renderer,
		links:       Links{BaseURL: config.BaseURL},
		now:         time.Now,
	}
	if config.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one dispatch run. A failure to load subscribers or deals
// aborts the run and returns a *DataAccessError with no outcome. Individual
// render and send failures are recorded in the outcome and never stop the run.
func (d *Dispatcher) Run(ctx context.Context) (*Outcome, error) {
	startedAt := d.now().UTC()
	outcome := &Outcome{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Failed:    []Failure{},
	}

	ctx, logger := ctxlog.With(ctx, "run_id", outcome.RunID)

	d.enter(ctx, StateLoadingSubscribers)
	subscribers, err := d.subscribers.ActiveSubscribers(ctx)
	if err != nil {
		return nil, d.abort(ctx, startedAt, "load subscribers", err)
	}

	d.enter(ctx, StateLoadingDeals)
	since := startedAt.Add(-time.Duration(d.config.WindowDays) * 24 * time.Hour)
	deals, err := d.deals.DealsCreatedSince(ctx, since)
	if err != nil {
		return nil, d.abort(ctx, startedAt, "load deals", err)
	}
	deals = withBusiness(ctx, deals)

	outcome.Subscribers = len(subscribers)
	outcome.Deals = len(deals)

	logger.Info("newsletter run loaded",
		"subscribers", len(subscribers),
		"deals", len(deals),
		"since", since,
	)

	if len(deals) == 0 {
		outcome.NothingToSend = true
		return d.finish(ctx, outcome, runResultNothingToSend), nil
	}

	d.enter(ctx, StateSending)
	t := d.sendAll(ctx, subscribers, deals)

	outcome.Sent = t.sent
	outcome.Skipped = t.skipped
	outcome.Failed = append(outcome.Failed, sortFailures(t.failed, subscribers)...)

	return d.finish(ctx, outcome, runResultDone), nil
}

func (d *Dispatcher) enter(ctx context.Context, state State) {
	ctxlog.FromContext(ctx).Debug("newsletter run state", "state", state)
	if d.observe != nil {
		d.observe(state)
	}
}

func (d *Dispatcher) abort(ctx context.Context, startedAt time.Time, op string, err error) error {
	d.enter(ctx, StateAborted)
	recordRun(runResultAborted, d.now().Sub(startedAt), d.now())

	var dataErr *DataAccessError
	if !errors.As(err, &dataErr) {
		dataErr = &DataAccessError{Op: op, Err: err}
	}

	ctxlog.FromContext(ctx).Error("newsletter run aborted", "op", dataErr.Op, "error", dataErr.Err)
	return dataErr
}

func (d *Dispatcher) finish(ctx context.Context, outcome *Outcome, result string) *Outcome {
	d.enter(ctx, StateDone)
	outcome.State = StateDone
	outcome.FinishedAt = d.now().UTC()
	recordRun(result, outcome.FinishedAt.Sub(outcome.StartedAt), outcome.FinishedAt)

	logger := ctxlog.FromContext(ctx)
	for _, f := range outcome.Failed {
		logger.Warn("newsletter not delivered", "subscriber_id", f.SubscriberID, "reason", f.Reason)
	}
	logger.Info("newsletter run finished",
		"nothing_to_send", outcome.NothingToSend,
		"sent", outcome.Sent,
		"skipped", outcome.Skipped,
		"failed", len(outcome.Failed),
		"duration", outcome.FinishedAt.Sub(outcome.StartedAt),
	)
	return outcome
}

func (d *Dispatcher) sendAll(ctx context.Context, subscribers []domain.Subscriber, deals []domain.Deal) *tally {
	t := &tally{}

	if d.config.Concurrency <= 1 {
		for _, sub := range subscribers {
			d.process(ctx, sub, deals, t)
		}
		return t
	}

	var g errgroup.Group
	g.SetLimit(d.config.Concurrency)
	for _, sub := range subscribers {
		g.Go(func() error {
			d.process(ctx, sub, deals, t)
			return nil
		})
	}
	_ = g.Wait()

	return t
}

func (d *Dispatcher) process(ctx context.Context, sub domain.Subscriber, deals []domain.Deal, t *tally) {
	provider := d.sender.Provider()
	logger := ctxlog.FromContext(ctx).With("subscriber_id", sub.ID)

	matched := Match(sub, deals)
	if len(matched) == 0 {
		t.recordSkipped()
		recordEmail(provider, emailStatusSkipped)
		logger.Debug("no matching deals, skipping subscriber")
		return
	}

	subject, body, err := d.render(sub, matched)
	if err != nil {
		renderErr := &RenderError{SubscriberID: sub.ID, Err: err}
		t.recordFailure(sub.ID, err, renderErr)
		recordEmail(provider, emailStatusFailed)
		logger.Error("failed to render newsletter", "error", err)
		return
	}

	msg := Message{
		From:    d.config.From,
		To:      sub.Email,
		Subject: subject,
		HTML:    body,
	}
	if err := d.deliver(ctx, msg); err != nil {
		sendErr := &SendError{SubscriberID: sub.ID, Err: err}
		t.recordFailure(sub.ID, err, sendErr)
		recordEmail(provider, emailStatusFailed)
		logger.Error("failed to send newsletter",
			"provider", provider,
			"to", ctxlog.RedactEmail(sub.Email),
			"error", err,
		)
		return
	}

	t.recordSent()
	recordEmail(provider, emailStatusSent)
	logger.Info("newsletter sent",
		"provider", provider,
		"to", ctxlog.RedactEmail(sub.Email),
		"deals", len(matched),
	)
}

func (d *Dispatcher) render(sub domain.Subscriber, matched []domain.Deal) (subject, body string, err error) {
	preferencesURL, unsubscribeURL, err := d.links.Footer(sub.ID)
	if err != nil {
		return "", "", err
	}

	return d.renderer.Render(EmailData{
		Subscriber:     sub,
		Deals:          matched,
		GeneratedAt:    d.now(),
		PreferencesURL: preferencesURL,
		UnsubscribeURL: unsubscribeURL,
	})
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	start := time.Now()
	err := d.sender.Send(sendCtx, msg)
	recordSendDuration(d.sender.Provider(), time.Since(start))

	if err != nil && ctx.Err() == nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("send timed out after %s: %w", d.config.SendTimeout, err)
	}
	return err
}

// withBusiness drops deals whose business is missing. Loaders already
// exclude them; this keeps the matcher and renderer safe from a loader that
// does not.
func withBusiness(ctx context.Context, deals []domain.Deal) []domain.Deal {
	kept := deals[:0:0]
	for _, deal := range deals {
		if deal.Business == nil {
			ctxlog.FromContext(ctx).Warn("deal has no business, excluding", "deal_id", deal.ID)
			continue
		}
		kept = append(kept, deal)
	}
	if dropped := len(deals) - len(kept); dropped > 0 {
		RecordDealsWithoutBusiness(dropped)
	}
	return kept
}

// sortFailures orders failures like the subscriber list so concurrent runs
// report deterministically.
func sortFailures(failed []Failure, subscribers []domain.Subscriber) []Failure {
	position := make(map[string]int, len(subscribers))
	for i, sub := range subscribers {
		position[sub.ID] = i
	}
	sort.SliceStable(failed, func(i, j int) bool {
		return position[failed[i].SubscriberID] < position[failed[j].SubscriberID]
	})
	return failed
}
