package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(provider *mockProvider, repo *mockRepository) http.Handler {
	r := chi.NewRouter()
	NewHandler(NewService(provider, repo)).RegisterRoutes(r)
	return r
}

func TestHandler_CreateCheckout(t *testing.T) {
	valid := `{
		"user_id": "u1",
		"email": "user@example.com",
		"plan_type": "newsletter",
		"price_id": "price_1",
		"success_url": "https://pnwdeals.example/success",
		"cancel_url": "https://pnwdeals.example/cancel"
	}`

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", valid, http.StatusOK},
		{"invalid json", "{", http.StatusBadRequest},
		{"bad email", strings.Replace(valid, "user@example.com", "nope", 1), http.StatusBadRequest},
		{"unknown plan", strings.Replace(valid, `"newsletter"`, `"gold"`, 1), http.StatusBadRequest},
		{"business plan without business", strings.Replace(valid, `"newsletter"`, `"business_basic"`, 1), http.StatusBadRequest},
		{"unknown field", strings.Replace(valid, `"user_id"`, `"coupon": "FREE", "user_id"`, 1), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{sessionID: "cs_1"}
			req := httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			newTestRouter(provider, newMockRepository()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, provider.checkouts)
				return
			}

			var body struct {
				Data CheckoutResponse `json:"data"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "cs_1", body.Data.SessionID)
		})
	}
}

func TestHandler_CreateCheckout_ReportsJSONFieldNames(t *testing.T) {
	body := `{"user_id": "u1", "email": "nope", "plan_type": "newsletter", "price_id": "p",
		"success_url": "https://pnwdeals.example/s", "cancel_url": "https://pnwdeals.example/c"}`
	req := httptest.NewRequest(http.MethodPost, "/billing/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()

	newTestRouter(&mockProvider{}, newMockRepository()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Error struct {
			Message string              `json:"message"`
			Details []map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "validation error", resp.Error.Message)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "email", resp.Error.Details[0]["field"])
	assert.Equal(t, "email", resp.Error.Details[0]["message"])
}

func TestHandler_Webhook(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		provider := &mockProvider{event: &Event{ID: "evt_1", Type: "invoice.paid"}}
		req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(`{}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		rec := httptest.NewRecorder()

		newTestRouter(provider, newMockRepository()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())
	})

	t.Run("invalid signature", func(t *testing.T) {
		provider := &mockProvider{eventErr: ErrInvalidSignature}
		req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		newTestRouter(provider, newMockRepository()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid signature")
	})

	t.Run("payload too large", func(t *testing.T) {
		provider := &mockProvider{event: &Event{Type: "invoice.paid"}}
		req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(strings.Repeat("x", maxWebhookBody+1)))
		rec := httptest.NewRecorder()

		newTestRouter(provider, newMockRepository()).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
