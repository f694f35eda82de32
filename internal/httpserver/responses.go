package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"huddle/internal/domain"
	"huddle/internal/logger"
)

// errorResponse is the stable error shape: a machine-readable tag plus a
// human-readable message. RecipientID rides along only for the
// not-registered guard.
type errorResponse struct {
	Error       domain.Code `json:"error"`
	Message     string      `json:"message"`
	RecipientID int64       `json:"recipient_id,omitempty"`
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError translates the error taxonomy into HTTP. Backing-store
// failures are logged in full and surfaced as a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var app *domain.AppError
	if !errors.As(err, &app) {
		app = domain.Internal("internal server error")
		app.Err = err
	}

	switch app.Code {
	case domain.CodeUnauthenticated:
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: app.Code, Message: app.Message})
	case domain.CodeAccessDenied:
		writeJSON(w, http.StatusForbidden, errorResponse{Error: app.Code, Message: app.Message})
	case domain.CodeValidation:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: app.Code, Message: app.Message})
	case domain.CodeRecipientNotRegistered:
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:       app.Code,
			Message:     app.Message,
			RecipientID: app.RecipientID,
		})
	case domain.CodeNotFound:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: app.Code, Message: app.Message})
	case domain.CodeConflict:
		writeJSON(w, http.StatusConflict, errorResponse{Error: app.Code, Message: app.Message})
	default:
		logger.Log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", string(app.Code)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   domain.CodeInternal,
			Message: "internal server error",
		})
	}
}
