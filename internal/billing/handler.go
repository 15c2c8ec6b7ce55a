package billing

import (
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bissquit/pnw-deals/internal/pkg/httputil"
)

// maxWebhookBody bounds webhook payloads.
const maxWebhookBody = 65536

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrInvalidSignature, Status: http.StatusBadRequest, Message: "invalid signature"},
	{Error: ErrInvalidPayload, Status: http.StatusBadRequest, Message: "invalid payload"},
	{Error: ErrProvider, Status: http.StatusBadGateway, Message: "payment provider unavailable"},
}

// Handler handles HTTP requests for the billing module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new billing handler.
func NewHandler(service *Service) *Handler {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:   service,
		validator: v,
	}
}

// RegisterRoutes registers billing routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout", h.CreateCheckout)
	r.Post("/billing/webhook", h.Webhook)
}

// CheckoutResponse is returned by CreateCheckout.
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
}

// CreateCheckout handles POST /billing/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sessionID, err := h.service.CreateCheckout(r.Context(), req)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, CheckoutResponse{SessionID: sessionID})
}

// Webhook handles POST /billing/webhook.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "payload too large or unreadable")
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
