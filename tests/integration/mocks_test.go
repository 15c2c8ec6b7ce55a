//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// fakeStripe serves the subset of the Stripe API the billing provider calls.
type fakeStripe struct {
	srv *httptest.Server

	mu            sync.Mutex
	subscriptions map[string]string // id -> status
	sessions      int
}

func newFakeStripe() *fakeStripe {
	f := &fakeStripe{subscriptions: make(map[string]string)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeStripe) URL() string { return f.srv.URL }

func (f *fakeStripe) Close() { f.srv.Close() }

// SetSubscription makes GET /v1/subscriptions/{id} return status.
func (f *fakeStripe) SetSubscription(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions[id] = status
}

func (f *fakeStripe) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		f.sessions++
		fmt.Fprintf(w, `{"id": "cs_test_%d", "object": "checkout.session"}`, f.sessions)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/subscriptions/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
		status, ok := f.subscriptions[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error": {"type": "invalid_request_error", "message": "No such subscription"}}`)
			return
		}
		fmt.Fprintf(w, `{"id": %q, "object": "subscription", "status": %q}`, id, status)

	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"type": "invalid_request_error", "message": "unknown endpoint"}}`)
	}
}
