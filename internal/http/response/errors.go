package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes v as the JSON body with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// WriteErrorWithDetails writes a structured JSON error response with additional details
func WriteErrorWithDetails(w http.ResponseWriter, statusCode int, message, code, details string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code, Details: details})
}

// Common error codes
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeInvalidToken  = "INVALID_TOKEN"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeInvalidState  = "INVALID_STATE"
	CodeBadgeMissing  = "BADGE_MISSING"
	CodeOutOfWindow   = "OUT_OF_WINDOW"
	CodeBadgeFailed   = "BADGE_GENERATION_FAILED"
)

// FromError maps a domain error onto a status and error code. Anything it does
// not recognise is logged and reported as a 500 without its message.
func FromError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		ve  *domain.ValidationError
		ae  *domain.AuthError
		fe  *domain.ForbiddenError
		nfe *domain.NotFoundError
		ce  *domain.ConflictError
		qe  *domain.QuotaExceededError
		ise *domain.InvalidStateError
		bme *domain.BadgeMissingError
		owe *domain.OutOfWindowError
		bge *domain.BadgeGenerationError
	)
	switch {
	case errors.As(err, &ve):
		WriteError(w, http.StatusBadRequest, ve.Error(), CodeInvalidInput)
	case errors.As(err, &ae):
		WriteError(w, http.StatusUnauthorized, ae.Error(), CodeUnauthorized)
	case errors.As(err, &fe):
		WriteError(w, http.StatusForbidden, fe.Error(), CodeForbidden)
	case errors.As(err, &nfe):
		WriteError(w, http.StatusNotFound, nfe.Error(), CodeNotFound)
	case errors.As(err, &ce):
		WriteError(w, http.StatusConflict, ce.Error(), CodeConflict)
	case errors.As(err, &qe):
		WriteError(w, http.StatusBadRequest, qe.Error(), CodeQuotaExceeded)
	case errors.As(err, &ise):
		WriteError(w, http.StatusBadRequest, ise.Error(), CodeInvalidState)
	case errors.As(err, &bme):
		WriteError(w, http.StatusBadRequest, bme.Error(), CodeBadgeMissing)
	case errors.As(err, &owe):
		WriteError(w, http.StatusBadRequest, owe.Error(), CodeOutOfWindow)
	case errors.As(err, &bge):
		logger.ErrorContext(ctx, "Badge generation failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "QR code generation failed", CodeBadgeFailed)
	default:
		logger.ErrorContext(ctx, "Request failed", "error", err)
		InternalError(w, "Internal server error")
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}
