package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errMissing = errors.New("missing")
	errBusy    = errors.New("busy")
)

func TestHandleError(t *testing.T) {
	mappings := []ErrorMapping{
		{Error: errMissing, Status: http.StatusNotFound, Message: "thing not found"},
		{Error: errBusy, Status: http.StatusConflict},
	}

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"mapped with message", errMissing, http.StatusNotFound, "thing not found"},
		{"wrapped", fmt.Errorf("lookup: %w", errMissing), http.StatusNotFound, "thing not found"},
		{"mapped without message", errBusy, http.StatusConflict, "busy"},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(context.Background(), rec, tt.err, mappings)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body struct {
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantMessage, body.Error.Message)
		})
	}
}
