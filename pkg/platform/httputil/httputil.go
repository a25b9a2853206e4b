// Package httputil writes JSON responses and maps coded errors onto HTTP
// status codes with stable, per-code messages.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "mutuelle/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeForbidden:            http.StatusForbidden,
	dErrors.CodeInvalidInput:         http.StatusBadRequest,
	dErrors.CodeMemberNotFound:       http.StatusNotFound,
	dErrors.CodeNotFound:             http.StatusNotFound,
	dErrors.CodeSubscriptionInactive: http.StatusConflict,
	dErrors.CodeQuotaExhausted:       http.StatusConflict,
	dErrors.CodeBusy:                 http.StatusServiceUnavailable,
	dErrors.CodeReaderError:          http.StatusUnprocessableEntity,
	dErrors.CodeConflict:             http.StatusConflict,
	dErrors.CodeUnauthorized:         http.StatusUnauthorized,
	dErrors.CodeRateLimited:          http.StatusTooManyRequests,
	dErrors.CodeInternal:             http.StatusInternalServerError,
	dErrors.CodeInvariantViolation:   http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a code.
func StatusFor(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"error_description,omitempty"`
}

// WriteError renders err. The message is the stable text for the code; the
// error's own detail is exposed as error_description only for client-side
// failures, never for internal ones.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)

	body := ErrorBody{Error: string(code), Message: dErrors.Message(code)}
	var de *dErrors.Error
	if status < http.StatusInternalServerError && errors.As(err, &de) && de.Message != "" {
		body.Description = de.Message
	}
	WriteJSON(w, status, body)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodes a bounded request body into v, rejecting unknown fields
// and trailing data.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid JSON body")
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeInvalidInput, "unexpected data after JSON body")
	}
	return nil
}
