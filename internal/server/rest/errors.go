package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/filevault/internal/common"
)

// Machine-readable error codes returned in {"error": {"code", "message"}}.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeAccessDenied    = "ACCESS_DENIED"
	CodeNotFound        = "NOT_FOUND"
	CodeTooManyAttempts = "TOO_MANY_ATTEMPTS"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL_ERROR"
)

const retryAfterSeconds = "5"

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// classify maps a service error to a response. Internal details never reach
// the client; the caller logs them.
func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, common.ErrTooManyAttempts):
		return http.StatusTooManyRequests, CodeTooManyAttempts, "too many failed attempts, try again later"
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrInvalidKey):
		return http.StatusForbidden, CodeAccessDenied, "access denied"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, CodeNotFound, "file not found"
	case errors.Is(err, common.ErrTransient):
		return http.StatusServiceUnavailable, CodeUnavailable, "storage temporarily unavailable"
	case errors.Is(err, common.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge, err.Error()
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, CodeValidation, err.Error()
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, CodeUnauthorized, "authentication required"
	case errors.Is(err, common.ErrorInternal), errors.Is(err, common.ErrIntegrity):
		return http.StatusInternalServerError, CodeInternal, "internal error"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

// classifyKeyed is classify for download and delete, where a missing file,
// a foreign file and a wrong key must look the same.
func classifyKeyed(err error) (int, string, string) {
	if common.IsDeny(err) {
		return http.StatusForbidden, CodeAccessDenied, "access denied"
	}
	return classify(err)
}
