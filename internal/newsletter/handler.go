package newsletter

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bissquit/pnw-deals/internal/pkg/ctxlog"
	"github.com/bissquit/pnw-deals/internal/pkg/distlock"
	"github.com/bissquit/pnw-deals/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrRunInProgress, Status: http.StatusConflict, Message: "a newsletter run is already in progress"},
	{Error: ErrDataAccess, Status: http.StatusServiceUnavailable, Message: "directory store unavailable"},
	{Error: ErrInvalidLinkToken, Status: http.StatusBadRequest, Message: "invalid or expired link"},
	{Error: ErrSubscriberNotFound, Status: http.StatusNotFound, Message: "subscription not found"},
}

// Handler handles HTTP requests for the newsletter module.
type Handler struct {
	runner       Runner
	newLock      distlock.Factory
	signer       *LinkSigner
	unsubscriber Unsubscriber
}

// NewHandler creates a new newsletter handler.
func NewHandler(runner Runner, newLock distlock.Factory, signer *LinkSigner, unsubscriber Unsubscriber) *Handler {
	return &Handler{
		runner:       runner,
		newLock:      newLock,
		signer:       signer,
		unsubscriber: unsubscriber,
	}
}

// RegisterAdminRoutes registers routes that require the admin token.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/newsletter/dispatch", h.Dispatch)
}

// RegisterPublicRoutes registers routes reachable from email links.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/newsletter/unsubscribe", h.Unsubscribe)
}

// Dispatch handles POST /newsletter/dispatch.
func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	outcome, err := RunExclusive(r.Context(), h.newLock(DispatchLockKey), h.runner)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, outcome)
}

// Unsubscribe handles GET /newsletter/unsubscribe?token=.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" || h.signer == nil {
		httputil.HandleError(r.Context(), w, ErrInvalidLinkToken, errorMappings)
		return
	}

	subscriberID, err := h.signer.Verify(token, LinkPurposeUnsubscribe)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	if err := h.unsubscriber.Unsubscribe(r.Context(), subscriberID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	ctxlog.FromContext(r.Context()).Info("subscriber unsubscribed", "subscriber_id", subscriberID)
	httputil.Text(w, http.StatusOK, "You have been unsubscribed from the PNW Deals newsletter.")
}
