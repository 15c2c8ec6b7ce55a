package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/pnw-deals/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// Unmatched errors are logged and answered with 500. Mapped 5xx errors are
// logged too since the client only sees the generic message.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if !errors.Is(err, m.Error) {
			continue
		}
		msg := m.Message
		if msg == "" {
			msg = err.Error()
		}
		if m.Status >= http.StatusInternalServerError {
			ctxlog.FromContext(ctx).Error("request failed", "status", m.Status, "error", err)
		}
		Error(w, m.Status, msg)
		return
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
