// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
)

// statusFor maps error codes to HTTP status codes for API responses.
func statusFor(code ErrorCode) int {
	switch code {
	case ErrCodeCampaignValidationFailed, ErrCodeImportFailed, ErrCodeInvalidStateTransition, ErrCodeUnknownChannel:
		return http.StatusBadRequest
	case ErrCodeCampaignNotFound, ErrCodeTemplateNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP renders an error as a JSON response in the StandardError shape.
func WriteHTTP(w http.ResponseWriter, err error) {
	stdErr := Normalize(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(stdErr.Code))
	_ = json.NewEncoder(w).Encode(stdErr)
}
