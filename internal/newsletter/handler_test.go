package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/pnw-deals/internal/pkg/distlock"
)

// mockUnsubscriber implements Unsubscriber for testing.
type mockUnsubscriber struct {
	ids []string
	err error
}

func (m *mockUnsubscriber) Unsubscribe(_ context.Context, subscriberID string) error {
	if m.err != nil {
		return m.err
	}
	m.ids = append(m.ids, subscriberID)
	return nil
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterAdminRoutes(r)
		h.RegisterPublicRoutes(r)
	})
	return r
}

func TestHandler_Dispatch(t *testing.T) {
	tests := []struct {
		name       string
		lock       *mockLock
		runner     *mockRunner
		wantStatus int
	}{
		{
			name:       "success",
			lock:       &mockLock{},
			runner:     &mockRunner{outcome: &Outcome{RunID: "r1", State: StateDone, Sent: 3, Failed: []Failure{}}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "run in progress",
			lock:       &mockLock{held: true},
			runner:     &mockRunner{},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "store unavailable",
			lock:       &mockLock{},
			runner:     &mockRunner{err: &DataAccessError{Op: "load subscribers", Err: errors.New("refused")}},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.runner, func(string) distlock.DistLock { return tt.lock }, nil, &mockUnsubscriber{})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/newsletter/dispatch", nil)
			rec := httptest.NewRecorder()
			newTestRouter(h).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var body struct {
				Data Outcome `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "r1", body.Data.RunID)
			assert.Equal(t, 3, body.Data.Sent)
		})
	}
}

func TestHandler_Unsubscribe(t *testing.T) {
	signer, err := NewLinkSigner("secret", time.Hour)
	require.NoError(t, err)

	unsubToken, err := signer.Sign("user-1", LinkPurposeUnsubscribe)
	require.NoError(t, err)
	prefToken, err := signer.Sign("user-1", LinkPurposePreferences)
	require.NoError(t, err)

	tests := []struct {
		name       string
		query      string
		unsubErr   error
		wantStatus int
		wantIDs    []string
	}{
		{"valid token", "?token=" + unsubToken, nil, http.StatusOK, []string{"user-1"}},
		{"missing token", "", nil, http.StatusBadRequest, nil},
		{"preferences token rejected", "?token=" + prefToken, nil, http.StatusBadRequest, nil},
		{"garbage token", "?token=abc", nil, http.StatusBadRequest, nil},
		{"no subscription", "?token=" + unsubToken, ErrSubscriberNotFound, http.StatusNotFound, nil},
		{"store error", "?token=" + unsubToken, errors.New("boom"), http.StatusInternalServerError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsub := &mockUnsubscriber{err: tt.unsubErr}
			h := NewHandler(&mockRunner{}, nil, signer, unsub)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/newsletter/unsubscribe"+tt.query, nil)
			rec := httptest.NewRecorder()
			newTestRouter(h).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantIDs, unsub.ids)
		})
	}
}
