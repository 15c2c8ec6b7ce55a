package newsletter

import (
	"sync"
	"time"
)

// State is a dispatch run state.
type State string

// Dispatch states. A run moves forward through loading_subscribers,
// loading_deals and sending to done, or stops in aborted when a load fails.
const (
	StateLoadingSubscribers State = "loading_subscribers"
	StateLoadingDeals       State = "loading_deals"
	StateSending            State = "sending"
	StateDone               State = "done"
	StateAborted            State = "aborted"
)

// Failure describes one subscriber whose email was not delivered.
type Failure struct {
	SubscriberID string `json:"subscriber_id"`
	Reason       string `json:"reason"`
	Err          error  `json:"-"`
}

// Outcome is the result of a completed dispatch run.
type Outcome struct {
	RunID         string    `json:"run_id"`
	State         State     `json:"state"`
	NothingToSend bool      `json:"nothing_to_send"`
	Subscribers   int       `json:"subscribers"`
	Deals         int       `json:"deals"`
	Sent          int       `json:"sent"`
	Skipped       int       `json:"skipped"`
	Failed        []Failure `json:"failed"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// tally accumulates per-subscriber results. Safe for concurrent use.
type tally struct {
	mu      sync.Mutex
	sent    int
	skipped int
	failed  []Failure
}

func (t *tally) recordSent() {
	t.mu.Lock()
	t.sent++
	t.mu.Unlock()
}

func (t *tally) recordSkipped() {
	t.mu.Lock()
	t.skipped++
	t.mu.Unlock()
}

func (t *tally) recordFailure(subscriberID string, reason error, err error) {
	t.mu.Lock()
	t.failed = append(t.failed, Failure{
		SubscriberID: subscriberID,
		Reason:       reason.Error(),
		Err:          err,
	})
	t.mu.Unlock()
}
