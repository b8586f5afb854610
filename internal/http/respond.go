package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fiado/internal/auth"
	"fiado/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// respondError maps domain errors onto HTTP statuses. Unknown errors
// become opaque 500s so internals never leak to clients.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, core.ErrForbidden):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidProduct),
		errors.Is(err, core.ErrInvalidMonthKey),
		errors.Is(err, core.ErrInvalidPayment),
		errors.Is(err, core.ErrOverPayment):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrNoOpenStatement),
		errors.Is(err, core.ErrStatementNotFound),
		errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrStoreNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrDuplicateOpenStatement),
		errors.Is(err, core.ErrStatementNotOpen),
		errors.Is(err, core.ErrUserExists):
		status, message = http.StatusConflict, err.Error()
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"url", r.URL.Path,
			"error", err)
	}
	respondJSON(w, status, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
