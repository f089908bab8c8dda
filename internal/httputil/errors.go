package httputil

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dishly/dishly/internal/interaction"
)

// WriteBackendError maps a failed backend call onto the client response.
// Client errors keep their status and message, a failed envelope on a 2xx
// becomes a 422, and everything else is a 502.
func WriteBackendError(w http.ResponseWriter, op string, err error) {
	var remote *interaction.RemoteError
	switch {
	case errors.Is(err, interaction.ErrUnauthenticated):
		WriteError(w, http.StatusUnauthorized, interaction.LoginRequiredMessage)
	case errors.Is(err, interaction.ErrMissingIdentifier):
		WriteError(w, http.StatusBadRequest, interaction.MissingItemMessage)
	case errors.As(err, &remote) && remote.Status < 500:
		status := remote.Status
		if status < 400 {
			status = http.StatusUnprocessableEntity
		}
		WriteError(w, status, interaction.UserMessage(err))
	default:
		slog.Error("backend call failed", "op", op, "error", err)
		WriteError(w, http.StatusBadGateway, interaction.UserMessage(err))
	}
}
