package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/combat-engine/internal/errs"
)

type ErrorResponse struct {
	Error    string            `json:"error"`
	Code     errs.Code         `json:"code,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// statusOf maps a domain error to its HTTP status.
func statusOf(err error) int {
	return errs.GetCode(err).HTTPStatus()
}

// messageOf hides causes of upstream and internal failures from clients.
func messageOf(err error) string {
	var e *errs.Error
	if !errors.As(err, &e) {
		return "Internal server error"
	}
	switch e.Code {
	case errs.CodeUpstreamUnavailable:
		return "Service temporarily unavailable"
	case errs.CodeInternal:
		return "Internal server error"
	}
	return e.Message
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", errs.GetCode(err))
	} else {
		logger.Warn("Request rejected", "error", err, "code", errs.GetCode(err))
	}
	writeJSON(w, logger, status, ErrorResponse{
		Error:    messageOf(err),
		Code:     errs.GetCode(err),
		Metadata: errs.GetMetadata(err),
	})
}

func writeBadRequest(w http.ResponseWriter, logger *slog.Logger, msg string) {
	writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Error: msg, Code: errs.CodeValidationFailed})
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
